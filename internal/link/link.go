// Package link owns the persistent connection to the auction server: a
// receiver goroutine that drains inbound lines into the state store, and
// a sender goroutine that drains the outbound queue onto the wire. The
// two halves share the connection but block each other only through the
// queue; closing the connection is the sole cancellation signal and
// propagates receiver -> closed -> sender stop.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/draftwire/draftwire/internal/dispatch"
	"github.com/draftwire/draftwire/internal/models"
	"github.com/draftwire/draftwire/internal/store"
)

// ErrTransportClosed indicates the connection has ended; it is terminal
// for both halves of the link.
var ErrTransportClosed = errors.New("transport closed")

// State tracks the receiver's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Outbound is one queued outgoing message. BidID links a bid message back
// to its Bid record so the sender can mark it processed after the write.
type Outbound struct {
	Command string
	Fields  map[string]string
	BidID   uuid.UUID
}

// Link runs both halves of one server connection.
type Link struct {
	conn       net.Conn
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	outbound   chan Outbound

	state     atomic.Int32
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
}

// Config holds link settings.
type Config struct {
	// QueueSize bounds the outbound queue. Producers block when it is
	// full rather than lose messages.
	QueueSize int
}

// DefaultConfig returns default link settings.
func DefaultConfig() Config {
	return Config{QueueSize: 256}
}

// Dial connects to the auction server at addr and returns an unstarted
// link.
func Dial(ctx context.Context, addr string, s *store.Store, d *dispatch.Dispatcher, cfg Config) (*Link, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial auction server: %w", err)
	}
	return New(conn, s, d, cfg), nil
}

// New wraps an established connection.
func New(conn net.Conn, s *store.Store, d *dispatch.Dispatcher, cfg Config) *Link {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	l := &Link{
		conn:       conn,
		store:      s,
		dispatcher: d,
		outbound:   make(chan Outbound, cfg.QueueSize),
		done:       make(chan struct{}),
	}
	l.state.Store(int32(StateConnecting))
	return l
}

// Start launches the receiver and sender goroutines.
func (l *Link) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.receive(ctx)
	}()
	go func() {
		defer l.wg.Done()
		l.send(ctx)
	}()

	go func() {
		l.wg.Wait()
		close(l.done)
	}()
}

// State returns the receiver's current lifecycle state.
func (l *Link) State() State {
	return State(l.state.Load())
}

// Done is closed once both halves have stopped.
func (l *Link) Done() <-chan struct{} { return l.done }

// Close tears the connection down. Safe to call more than once.
func (l *Link) Close() error {
	l.shutdown()
	return nil
}

// EnqueueBidder queues a bidder registration announcement for name.
func (l *Link) EnqueueBidder(draftID, name string) error {
	return l.enqueue(Outbound{
		Command: dispatch.WireBidder,
		Fields: map[string]string{
			"draft": draftID,
			"name":  name,
		},
	})
}

// EnqueueBid queues a bid placement message. Once the sender has written
// it, the bid record is marked processed.
func (l *Link) EnqueueBid(bid models.Bid) error {
	return l.enqueue(Outbound{
		Command: dispatch.WireBid,
		Fields: map[string]string{
			"draft":  bid.DraftID,
			"order":  fmt.Sprintf("%d", bid.Order),
			"bidder": bid.Manager,
			"bid":    fmt.Sprintf("%d", bid.Amount),
		},
		BidID: bid.ID,
	})
}

func (l *Link) enqueue(msg Outbound) error {
	if l.State() == StateClosed {
		return ErrTransportClosed
	}
	select {
	case l.outbound <- msg:
		return nil
	case <-l.done:
		return ErrTransportClosed
	}
}

// shutdown releases the connection exactly once and signals the sender.
func (l *Link) shutdown() {
	l.closeOnce.Do(func() {
		l.state.Store(int32(StateClosed))
		if err := l.conn.Close(); err != nil {
			log.Debug().Err(err).Msg("error closing connection")
		}
		if l.cancel != nil {
			l.cancel()
		}
	})
}
