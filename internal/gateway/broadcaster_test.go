package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwire/draftwire/internal/events"
	"github.com/draftwire/draftwire/internal/models"
	"github.com/draftwire/draftwire/internal/store"
)

func TestWebsocketReceivesChangeEvents(t *testing.T) {
	bus := events.NewBus(16)
	s := store.New(store.WithPublisher(bus))
	_, err := s.UpsertDraft("d1", 10, []models.Position{models.PositionQB})
	require.NoError(t, err)

	broadcaster := NewBroadcaster(DefaultBroadcastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx, bus)

	g := New(s, &fakeLink{}, broadcaster)
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/drafts/d1/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	waitForSubscriber(t, broadcaster, "d1")

	_, err = s.VerifyManager("d1", "Sam", 200)
	require.NoError(t, err)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var event events.ChangeEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "d1", event.DraftID)
	assert.Equal(t, events.KindManager, event.Kind)

	var manager models.Manager
	require.NoError(t, json.Unmarshal(event.Entity, &manager))
	assert.Equal(t, "Sam", manager.Name)
	assert.True(t, manager.Verified)
}

func TestWebsocketUnknownDraftRejected(t *testing.T) {
	s := store.New()
	g := New(s, &fakeLink{}, NewBroadcaster(DefaultBroadcastConfig()))
	server := httptest.NewServer(g.Routes())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/drafts/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestBroadcastSurvivesConcurrentDisconnects(t *testing.T) {
	// Subscribers dropping out while events are in flight must never
	// crash the broadcast loop, even with a tiny send buffer.
	bus := events.NewBus(256)
	s := store.New(store.WithPublisher(bus))
	_, err := s.UpsertDraft("d1", 10, []models.Position{models.PositionQB})
	require.NoError(t, err)

	cfg := DefaultBroadcastConfig()
	cfg.SendBuffer = 1
	broadcaster := NewBroadcaster(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx, bus)

	g := New(s, &fakeLink{}, broadcaster)
	server := httptest.NewServer(g.Routes())
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/drafts/d1/ws"

	churned := make(chan struct{})
	go func() {
		defer close(churned)
		for i := 0; i < 50; i++ {
			ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				continue
			}
			ws.Close()
		}
	}()

	for i := 0; i < 200; i++ {
		_, err := s.VerifyManager("d1", "Sam", 200)
		require.NoError(t, err)
	}
	<-churned

	deadline := time.Now().Add(2 * time.Second)
	for broadcaster.SubscriberCount("d1") > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Zero(t, broadcaster.SubscriberCount("d1"), "closed subscribers must leave the pool")
}

func waitForSubscriber(t *testing.T, b *Broadcaster, draftID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.SubscriberCount(draftID) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("subscriber never registered")
}
