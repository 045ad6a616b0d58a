package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwire/draftwire/internal/models"
	"github.com/draftwire/draftwire/internal/store"
)

// fakeLink records what the gateway queues for the wire.
type fakeLink struct {
	bidders []string
	bids    []models.Bid
	err     error
}

func (f *fakeLink) EnqueueBidder(draftID, name string) error {
	if f.err != nil {
		return f.err
	}
	f.bidders = append(f.bidders, name)
	return nil
}

func (f *fakeLink) EnqueueBid(bid models.Bid) error {
	if f.err != nil {
		return f.err
	}
	f.bids = append(f.bids, bid)
	return nil
}

func newTestGateway(t *testing.T) (*Gateway, *store.Store, *fakeLink, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := store.New(store.WithClock(clock))
	_, err := s.UpsertDraft("d1", 10, []models.Position{models.PositionQB, models.PositionRB})
	require.NoError(t, err)

	link := &fakeLink{}
	g := New(s, link, NewBroadcaster(DefaultBroadcastConfig()))
	return g, s, link, clock
}

func TestUpdates(t *testing.T) {
	g, s, _, clock := newTestGateway(t)

	_, err := s.VerifyManager("d1", "Sam", 200)
	require.NoError(t, err)
	_, err = s.CreatePlayer("d1", 7, 1, "Brady", models.PositionQB, 20)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drafts/d1/updates", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var set store.ChangeSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	assert.Len(t, set.Managers, 1)
	assert.Len(t, set.Players, 1)
	assert.True(t, set.Time.Equal(clock.Now()), "response time should be server time")

	t.Run("since excludes already-seen entities", func(t *testing.T) {
		since := set.Time.Format(time.RFC3339Nano)
		rec := httptest.NewRecorder()
		g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drafts/d1/updates?since="+since, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var next store.ChangeSet
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
		assert.Empty(t, next.Managers)
		assert.Empty(t, next.Players)
	})

	t.Run("malformed since fails the request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drafts/d1/updates?since=yesterday", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown draft is not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drafts/nope/updates", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRegister(t *testing.T) {
	g, s, link, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/drafts/d1/register?manager=Sam", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	m, err := s.Manager("d1", "Sam")
	require.NoError(t, err)
	assert.False(t, m.Verified, "verification belongs to the auction server")
	assert.Equal(t, []string{"Sam"}, link.bidders)

	t.Run("missing manager name", func(t *testing.T) {
		rec := httptest.NewRecorder()
		g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/drafts/d1/register", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPlaceBid(t *testing.T) {
	g, s, link, _ := newTestGateway(t)

	_, err := s.VerifyManager("d1", "Sam", 100)
	require.NoError(t, err)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/drafts/d1/bid", strings.NewReader(body))
		g.Routes().ServeHTTP(rec, req)
		return rec
	}

	t.Run("no open auction conflicts", func(t *testing.T) {
		assert.Equal(t, http.StatusConflict, post(`{"manager":"Sam","amount":10}`).Code)
	})

	_, err = s.CreatePlayer("d1", 7, 1, "Brady", models.PositionQB, 20)
	require.NoError(t, err)
	_, err = s.SetPlayerTimer("d1", 7, 30, store.PlayerDefaults{})
	require.NoError(t, err)

	t.Run("bid above budget is unprocessable", func(t *testing.T) {
		assert.Equal(t, http.StatusUnprocessableEntity, post(`{"manager":"Sam","amount":500}`).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, post(`{"manager":`).Code)
	})

	t.Run("unknown manager", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, post(`{"manager":"Ghost","amount":10}`).Code)
	})

	t.Run("valid bid is queued", func(t *testing.T) {
		rec := post(`{"manager":"Sam","amount":42}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var bid models.Bid
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bid))
		assert.Equal(t, 7, bid.AuctionID)
		assert.False(t, bid.Processed)

		require.Len(t, link.bids, 1)
		assert.Equal(t, 42, link.bids[0].Amount)
	})
}

func TestTeam(t *testing.T) {
	g, s, _, _ := newTestGateway(t)

	_, err := s.VerifyManager("d1", "Sam", 200)
	require.NoError(t, err)
	_, err = s.CreatePlayer("d1", 1, 1, "Brady", models.PositionQB, 20)
	require.NoError(t, err)
	_, err = s.SettleAuction("d1", 1, &store.BidderUpdate{Bidder: "Sam", Amount: 20})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drafts/d1/team?manager=Sam", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp teamResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Sam", resp.Manager)
	require.Len(t, resp.Team, 2)
	assert.Equal(t, "Brady", resp.Team[0].Player)

	t.Run("unknown manager", func(t *testing.T) {
		rec := httptest.NewRecorder()
		g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drafts/d1/team?manager=Ghost", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	g, _, _, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	g.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
