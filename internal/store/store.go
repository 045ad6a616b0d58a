// Package store owns the shared draft state for one session: drafts,
// managers, players, and queued bids. It is the only mutable owner of
// these collections; the receiver and the gateway handlers mutate through
// its operations, and every mutation stamps the entity's modification
// time from the injected clock inside the same critical section.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/draftwire/draftwire/internal/events"
	"github.com/draftwire/draftwire/internal/models"
)

var (
	ErrDraftNotFound        = errors.New("draft not found")
	ErrManagerNotFound      = errors.New("manager not found")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrDuplicateOrder       = errors.New("duplicate player order")
	ErrInvalidDraft         = errors.New("invalid draft")
	ErrInsufficientBudget   = errors.New("bid exceeds manager budget")
	ErrNoOpenAuction        = errors.New("no open auction")
	ErrMultipleOpenAuctions = errors.New("multiple open auctions")
	ErrBidNotFound          = errors.New("bid not found")
)

// Store is the in-memory draft state store. All operations are safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	drafts   map[string]*models.Draft
	managers map[string]map[string]*models.Manager // draft id -> name
	players  map[string]map[int]*models.Player     // draft id -> auction id
	bids     map[uuid.UUID]*models.Bid

	publisher events.Publisher
}

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the clock used for modification stamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithPublisher attaches a change-event publisher. Events are emitted
// after each manager or player mutation.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:    clockwork.NewRealClock(),
		drafts:   make(map[string]*models.Draft),
		managers: make(map[string]map[string]*models.Manager),
		players:  make(map[string]map[int]*models.Player),
		bids:     make(map[uuid.UUID]*models.Bid),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertDraft creates or replaces the draft record for id.
func (s *Store) UpsertDraft(id string, maxManagers int, quota []models.Position) (*models.Draft, error) {
	if maxManagers <= 0 {
		return nil, fmt.Errorf("%w: max managers must be positive", ErrInvalidDraft)
	}
	if len(quota) == 0 {
		return nil, fmt.Errorf("%w: quota must not be empty", ErrInvalidDraft)
	}
	for _, pos := range quota {
		if !models.ValidPosition(pos) {
			return nil, fmt.Errorf("%w: unknown position %q in quota", ErrInvalidDraft, pos)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := &models.Draft{
		ID:          id,
		MaxManagers: maxManagers,
		Quota:       append([]models.Position(nil), quota...),
		Modified:    s.clock.Now(),
	}
	s.drafts[id] = draft
	cp := copyDraft(draft)
	return &cp, nil
}

// Draft returns a copy of the draft record.
func (s *Store) Draft(id string) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	cp := copyDraft(draft)
	return &cp, nil
}

// Reset atomically purges all managers, players, and bids belonging to
// the draft. The draft record itself survives, restamped, and a draft
// change event goes out so subscribers learn the session restarted.
func (s *Store) Reset(draftID string) error {
	s.mu.Lock()
	draft, ok := s.drafts[draftID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	delete(s.managers, draftID)
	delete(s.players, draftID)
	for id, bid := range s.bids {
		if bid.DraftID == draftID {
			delete(s.bids, id)
		}
	}
	draft.Modified = s.clock.Now()
	cp := copyDraft(draft)
	s.mu.Unlock()

	s.publishDraft(cp)
	return nil
}

// RegisterManager gets or creates the manager named name in the draft,
// unverified. A manager that already exists is returned unchanged, so a
// repeated registration never creates a duplicate.
func (s *Store) RegisterManager(draftID, name string) (*models.Manager, error) {
	s.mu.Lock()
	manager, created, err := s.getOrCreateManager(draftID, name)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	cp := copyManager(manager)
	s.mu.Unlock()

	if created {
		s.publishManager(cp)
	}
	return &cp, nil
}

// VerifyManager applies the server's bidder acknowledgment: get or create
// the manager, set its budget, and mark it verified.
func (s *Store) VerifyManager(draftID, name string, budget int) (*models.Manager, error) {
	s.mu.Lock()
	manager, _, err := s.getOrCreateManager(draftID, name)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	manager.Budget = budget
	manager.Verified = true
	manager.Modified = s.clock.Now()
	cp := copyManager(manager)
	s.mu.Unlock()

	s.publishManager(cp)
	return &cp, nil
}

// Manager returns a copy of one manager.
func (s *Store) Manager(draftID, name string) (*models.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manager, ok := s.managers[draftID][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in draft %s", ErrManagerNotFound, name, draftID)
	}
	cp := copyManager(manager)
	return &cp, nil
}

// CreatePlayer adds a player announced by the auction schedule. A player
// already known under (draft, auctionID) is left untouched; a colliding
// order for a different auction id violates the (draft, order) invariant.
func (s *Store) CreatePlayer(draftID string, auctionID, order int, name string, position models.Position, value int) (*models.Player, error) {
	if !models.ValidPosition(position) {
		return nil, fmt.Errorf("unknown position %q", position)
	}

	s.mu.Lock()
	if _, ok := s.drafts[draftID]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	if existing, ok := s.players[draftID][auctionID]; ok {
		cp := copyPlayer(existing)
		s.mu.Unlock()
		return &cp, nil
	}
	for _, p := range s.players[draftID] {
		if p.Order == order {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: order %d in draft %s", ErrDuplicateOrder, order, draftID)
		}
	}

	player := &models.Player{
		DraftID:   draftID,
		AuctionID: auctionID,
		Order:     order,
		Name:      name,
		Position:  position,
		Value:     value,
		Modified:  s.clock.Now(),
	}
	if s.players[draftID] == nil {
		s.players[draftID] = make(map[int]*models.Player)
	}
	s.players[draftID][auctionID] = player
	cp := copyPlayer(player)
	s.mu.Unlock()

	s.publishPlayer(cp)
	return &cp, nil
}

// PlayerDefaults are placeholder attributes for a player first seen via a
// start message rather than an auction announcement.
type PlayerDefaults struct {
	Name     string
	Position models.Position
	Value    int
}

// SetPlayerTimer sets the countdown on the player with the given auction
// id, creating the player from defaults if the schedule never announced
// it.
func (s *Store) SetPlayerTimer(draftID string, auctionID, timer int, defaults PlayerDefaults) (*models.Player, error) {
	if timer < 0 {
		return nil, fmt.Errorf("negative timer %d", timer)
	}

	s.mu.Lock()
	if _, ok := s.drafts[draftID]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	player, ok := s.players[draftID][auctionID]
	if !ok {
		player = &models.Player{
			DraftID:   draftID,
			AuctionID: auctionID,
			Order:     s.nextFreeOrderLocked(draftID, auctionID),
			Name:      defaults.Name,
			Position:  defaults.Position,
			Value:     defaults.Value,
		}
		if s.players[draftID] == nil {
			s.players[draftID] = make(map[int]*models.Player)
		}
		s.players[draftID][auctionID] = player
	}
	t := timer
	player.Timer = &t
	player.Modified = s.clock.Now()
	cp := copyPlayer(player)
	s.mu.Unlock()

	s.publishPlayer(cp)
	return &cp, nil
}

// nextFreeOrderLocked picks an order for a placeholder player: from, or
// the first larger value not already taken. Orders stay unique per draft
// even when auction ids overlap the announced order range.
func (s *Store) nextFreeOrderLocked(draftID string, from int) int {
	used := make(map[int]bool, len(s.players[draftID]))
	for _, p := range s.players[draftID] {
		used[p.Order] = true
	}
	order := from
	for used[order] {
		order++
	}
	return order
}

// BidderUpdate carries the optional high-bidder half of a status or stop
// message.
type BidderUpdate struct {
	Bidder string
	Amount int
}

// SetPlayerStatus applies a status message: reset the timer and, when a
// high bidder is reported, record the bidder and amount on the player.
// The whole update is all-or-nothing.
func (s *Store) SetPlayerStatus(draftID string, auctionID, timer int, update *BidderUpdate) (*models.Player, error) {
	if timer < 0 {
		return nil, fmt.Errorf("negative timer %d", timer)
	}

	s.mu.Lock()
	player, ok := s.players[draftID][auctionID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: auction %d in draft %s", ErrPlayerNotFound, auctionID, draftID)
	}
	if update != nil {
		if _, ok := s.managers[draftID][update.Bidder]; !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s in draft %s", ErrManagerNotFound, update.Bidder, draftID)
		}
		amount := update.Amount
		player.Manager = update.Bidder
		player.Bid = &amount
	}
	t := timer
	player.Timer = &t
	player.Modified = s.clock.Now()
	cp := copyPlayer(player)
	s.mu.Unlock()

	s.publishPlayer(cp)
	return &cp, nil
}

// SettleAuction applies a stop message: clear the timer and, when a
// winning bidder is reported, record the winner on the player and debit
// the winner's budget. Player and manager are stamped in the same atomic
// update. The auction server is authoritative for settlement, so the
// debit is applied even when it drives the budget negative; that case is
// logged.
func (s *Store) SettleAuction(draftID string, auctionID int, update *BidderUpdate) (*models.Player, error) {
	s.mu.Lock()
	player, ok := s.players[draftID][auctionID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: auction %d in draft %s", ErrPlayerNotFound, auctionID, draftID)
	}

	var managerCopy *models.Manager
	if update != nil {
		manager, ok := s.managers[draftID][update.Bidder]
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s in draft %s", ErrManagerNotFound, update.Bidder, draftID)
		}
		now := s.clock.Now()
		amount := update.Amount
		manager.Budget -= amount
		manager.Modified = now
		player.Manager = update.Bidder
		player.Bid = &amount
		if manager.Budget < 0 {
			log.Warn().
				Str("draft_id", draftID).
				Str("manager", manager.Name).
				Int("budget", manager.Budget).
				Msg("settlement drove manager budget negative")
		}
		mc := copyManager(manager)
		managerCopy = &mc
	}
	player.Timer = nil
	player.Modified = s.clock.Now()
	cp := copyPlayer(player)
	s.mu.Unlock()

	if managerCopy != nil {
		s.publishManager(*managerCopy)
	}
	s.publishPlayer(cp)
	return &cp, nil
}

// OpenPlayer returns the single player in the draft whose auction round
// is in progress. Zero open rounds or more than one are both errors; the
// bid placement path requires the single-open-auction invariant.
func (s *Store) OpenPlayer(draftID string) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	open, err := s.openPlayerLocked(draftID)
	if err != nil {
		return nil, err
	}
	cp := copyPlayer(open)
	return &cp, nil
}

func (s *Store) openPlayerLocked(draftID string) (*models.Player, error) {
	var open *models.Player
	for _, p := range s.players[draftID] {
		if p.Timer != nil && *p.Timer > 0 {
			if open != nil {
				return nil, fmt.Errorf("%w: draft %s", ErrMultipleOpenAuctions, draftID)
			}
			open = p
		}
	}
	if open == nil {
		return nil, fmt.Errorf("%w: draft %s", ErrNoOpenAuction, draftID)
	}
	return open, nil
}

// PlaceBid records a bid by the manager against the currently open
// player. The amount must not exceed the manager's budget at the time of
// placement. The bid starts unprocessed; the sender marks it processed
// once the message is on the wire.
func (s *Store) PlaceBid(draftID, managerName string, amount int) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	open, err := s.openPlayerLocked(draftID)
	if err != nil {
		return nil, err
	}
	manager, ok := s.managers[draftID][managerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s in draft %s", ErrManagerNotFound, managerName, draftID)
	}
	if amount > manager.Budget {
		return nil, fmt.Errorf("%w: %d > %d", ErrInsufficientBudget, amount, manager.Budget)
	}

	bid := &models.Bid{
		ID:        uuid.New(),
		DraftID:   draftID,
		AuctionID: open.AuctionID,
		Order:     open.Order,
		Manager:   managerName,
		Amount:    amount,
		CreatedAt: s.clock.Now(),
	}
	s.bids[bid.ID] = bid
	cp := *bid
	return &cp, nil
}

// MarkBidProcessed flips the processed flag. It is applied exactly once,
// after the sender has successfully written the bid message.
func (s *Store) MarkBidProcessed(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bid, ok := s.bids[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBidNotFound, id)
	}
	bid.Processed = true
	return nil
}

// Bids returns copies of all bids recorded for the draft, oldest first.
func (s *Store) Bids(draftID string) []models.Bid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Bid
	for _, bid := range s.bids {
		if bid.DraftID == draftID {
			out = append(out, *bid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) getOrCreateManager(draftID, name string) (*models.Manager, bool, error) {
	if _, ok := s.drafts[draftID]; !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	if manager, ok := s.managers[draftID][name]; ok {
		return manager, false, nil
	}
	manager := &models.Manager{
		DraftID:  draftID,
		Name:     name,
		Modified: s.clock.Now(),
	}
	if s.managers[draftID] == nil {
		s.managers[draftID] = make(map[string]*models.Manager)
	}
	s.managers[draftID][name] = manager
	return manager, true, nil
}

func (s *Store) publishDraft(d models.Draft) {
	s.publish(events.KindDraft, d.ID, d, d.Modified)
}

func (s *Store) publishManager(m models.Manager) {
	s.publish(events.KindManager, m.DraftID, m, m.Modified)
}

func (s *Store) publishPlayer(p models.Player) {
	s.publish(events.KindPlayer, p.DraftID, p, p.Modified)
}

func (s *Store) publish(kind events.Kind, draftID string, entity any, at time.Time) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(entity)
	if err != nil {
		log.Error().Err(err).Str("draft_id", draftID).Msg("failed to marshal change event")
		return
	}
	err = s.publisher.Publish(context.Background(), events.ChangeEvent{
		DraftID: draftID,
		Kind:    kind,
		Entity:  data,
		At:      at,
	})
	if err != nil {
		log.Error().Err(err).Str("draft_id", draftID).Msg("failed to publish change event")
	}
}

func copyDraft(d *models.Draft) models.Draft {
	cp := *d
	cp.Quota = append([]models.Position(nil), d.Quota...)
	return cp
}

func copyManager(m *models.Manager) models.Manager {
	return *m
}

func copyPlayer(p *models.Player) models.Player {
	cp := *p
	if p.Bid != nil {
		v := *p.Bid
		cp.Bid = &v
	}
	if p.Timer != nil {
		v := *p.Timer
		cp.Timer = &v
	}
	return cp
}
