package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/draftwire/draftwire/internal/events"
)

// Broadcaster pushes change events to websocket subscribers so browsers
// can skip polling. Connections are pooled per draft.
type Broadcaster struct {
	mu          sync.RWMutex
	connections map[string]map[*conn]bool // draft id -> connections
	upgrader    websocket.Upgrader
	config      BroadcastConfig
}

// conn is one websocket subscriber. The send channel is never closed;
// done is the shutdown signal, closed exactly once, and both pumps and
// the broadcaster select against it.
type conn struct {
	id          string
	draftID     string
	ws          *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	broadcaster *Broadcaster
	connectedAt time.Time
}

// close signals shutdown and releases the websocket. Safe to call from
// any goroutine, any number of times.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// BroadcastConfig holds websocket connection settings.
type BroadcastConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

// DefaultBroadcastConfig returns default websocket settings.
func DefaultBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     64,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(config BroadcastConfig) *Broadcaster {
	return &Broadcaster{
		connections: make(map[string]map[*conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// Run consumes the change-event bus until ctx ends, broadcasting each
// event to the subscribers of its draft.
func (b *Broadcaster) Run(ctx context.Context, bus *events.Bus) {
	log.Info().Msg("broadcaster started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcaster shutting down")
			return
		case event := <-bus.Events():
			b.broadcast(event)
		}
	}
}

// Subscribe upgrades the request to a websocket and registers it for the
// draft's change events.
func (b *Broadcaster) Subscribe(w http.ResponseWriter, r *http.Request, draftID string) error {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}

	c := &conn{
		id:          uuid.New().String(),
		draftID:     draftID,
		ws:          ws,
		send:        make(chan []byte, b.config.SendBuffer),
		done:        make(chan struct{}),
		broadcaster: b,
		connectedAt: time.Now(),
	}
	b.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.id).
		Str("draft_id", draftID).
		Msg("websocket subscriber connected")
	return nil
}

func (b *Broadcaster) register(c *conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[c.draftID] == nil {
		b.connections[c.draftID] = make(map[*conn]bool)
	}
	b.connections[c.draftID][c] = true
}

func (b *Broadcaster) unregister(c *conn) {
	b.mu.Lock()
	removed := false
	if pool, ok := b.connections[c.draftID]; ok {
		if _, ok := pool[c]; ok {
			delete(pool, c)
			removed = true
			if len(pool) == 0 {
				delete(b.connections, c.draftID)
			}
		}
	}
	b.mu.Unlock()

	c.close()
	if removed {
		log.Info().
			Str("connection_id", c.id).
			Str("draft_id", c.draftID).
			Msg("websocket subscriber disconnected")
	}
}

func (b *Broadcaster) broadcast(event events.ChangeEvent) {
	b.mu.RLock()
	pool := b.connections[event.DraftID]
	targets := make([]*conn, 0, len(pool))
	for c := range pool {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal change event for broadcast")
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		case <-c.done:
			// Subscriber already shutting down.
		default:
			// Slow subscriber, drop it.
			log.Warn().Str("connection_id", c.id).Msg("subscriber send buffer full, closing")
			b.unregister(c)
		}
	}
}

// SubscriberCount returns the number of live subscribers for a draft.
func (b *Broadcaster) SubscriberCount(draftID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections[draftID])
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.broadcaster.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.broadcaster.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.broadcaster.config.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.broadcaster.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.broadcaster.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) readPump() {
	defer c.broadcaster.unregister(c)

	c.ws.SetReadLimit(c.broadcaster.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.broadcaster.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.broadcaster.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		// Subscribers are read-only; inbound frames only refresh deadlines.
		c.ws.SetReadDeadline(time.Now().Add(c.broadcaster.config.ReadTimeout))
	}
}
