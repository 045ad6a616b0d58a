// Package gateway exposes the draft state to browser clients: an
// incremental polling interface keyed by a since timestamp, a team view,
// registration and bid placement, and a websocket push channel.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/draftwire/draftwire/internal/models"
	"github.com/draftwire/draftwire/internal/store"
)

// Enqueuer is the outbound half of the server link, as the gateway needs
// it: registrations and bids go out through here.
type Enqueuer interface {
	EnqueueBidder(draftID, name string) error
	EnqueueBid(bid models.Bid) error
}

// Gateway serves the browser-facing HTTP interface.
type Gateway struct {
	store       *store.Store
	link        Enqueuer
	broadcaster *Broadcaster
}

// New creates a gateway over the store and the server link.
func New(s *store.Store, link Enqueuer, broadcaster *Broadcaster) *Gateway {
	return &Gateway{store: s, link: link, broadcaster: broadcaster}
}

// Routes builds the gateway router.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", g.handleHealthz)
	r.Route("/drafts/{draftID}", func(r chi.Router) {
		r.Get("/updates", g.handleUpdates)
		r.Get("/team", g.handleTeam)
		r.Post("/register", g.handleRegister)
		r.Post("/bid", g.handleBid)
		r.Get("/ws", g.handleWS)
	})

	return r
}

// handleUpdates answers "what changed since T". A missing since defaults
// to the epoch; a malformed since fails the request so pollers can detect
// protocol drift instead of silently resyncing from scratch.
func (g *Gateway) handleUpdates(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "malformed since timestamp", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	set, err := g.store.ChangesSince(draftID, since)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, set)
}

// teamResponse is the payload of the team view.
type teamResponse struct {
	Manager string            `json:"manager"`
	Team    []models.TeamSlot `json:"team"`
}

func (g *Gateway) handleTeam(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	manager := r.URL.Query().Get("manager")
	if manager == "" {
		http.Error(w, "manager is required", http.StatusBadRequest)
		return
	}

	team, err := g.store.Team(draftID, manager)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, teamResponse{Manager: manager, Team: team})
}

// handleRegister gets or creates the manager locally and queues the
// bidder announcement; the manager stays unverified until the auction
// server acknowledges it with a bidder message.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	name := r.URL.Query().Get("manager")
	if name == "" {
		http.Error(w, "manager is required", http.StatusBadRequest)
		return
	}

	manager, err := g.store.RegisterManager(draftID, name)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	if err := g.link.EnqueueBidder(draftID, name); err != nil {
		log.Error().Err(err).Str("manager", name).Msg("failed to queue registration")
		http.Error(w, "registration could not be queued", http.StatusServiceUnavailable)
		return
	}
	g.writeJSON(w, http.StatusAccepted, manager)
}

// bidRequest is the body of a bid placement.
type bidRequest struct {
	Manager string `json:"manager"`
	Amount  int    `json:"amount"`
}

// handleBid places a bid against the single currently open auction.
func (g *Gateway) handleBid(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed bid body", http.StatusBadRequest)
		return
	}
	if req.Manager == "" || req.Amount <= 0 {
		http.Error(w, "manager and a positive amount are required", http.StatusBadRequest)
		return
	}

	bid, err := g.store.PlaceBid(draftID, req.Manager, req.Amount)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	if err := g.link.EnqueueBid(*bid); err != nil {
		log.Error().Err(err).Str("bid_id", bid.ID.String()).Msg("failed to queue bid")
		http.Error(w, "bid could not be queued", http.StatusServiceUnavailable)
		return
	}
	g.writeJSON(w, http.StatusAccepted, bid)
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	if _, err := g.store.Draft(draftID); err != nil {
		g.writeStoreError(w, err)
		return
	}
	if err := g.broadcaster.Subscribe(w, r, draftID); err != nil {
		log.Error().Err(err).Str("draft_id", draftID).Msg("websocket subscribe failed")
	}
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Debug().Err(err).Msg("failed to write health check response")
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (g *Gateway) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDraftNotFound),
		errors.Is(err, store.ErrManagerNotFound),
		errors.Is(err, store.ErrPlayerNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrNoOpenAuction),
		errors.Is(err, store.ErrMultipleOpenAuctions):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrInsufficientBudget):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Error().Err(err).Msg("gateway request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
