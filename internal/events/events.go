// Package events carries change notifications out of the state store to
// whoever relays them: the gateway's websocket broadcaster in-process, and
// optionally other relay instances over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Kind identifies which entity collection a change belongs to.
type Kind string

const (
	KindDraft   Kind = "draft"
	KindManager Kind = "manager"
	KindPlayer  Kind = "player"
)

// ChangeEvent describes one entity mutation in the state store.
type ChangeEvent struct {
	DraftID string          `json:"draft_id"`
	Kind    Kind            `json:"kind"`
	Entity  json.RawMessage `json:"entity"`
	At      time.Time       `json:"at"`
}

// Publisher delivers change events to one sink.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// Bus is an in-process publisher with a single subscriber channel. Slow
// subscribers lose events rather than block the store's mutation path.
type Bus struct {
	ch chan ChangeEvent
}

// NewBus creates a bus buffering up to size events.
func NewBus(size int) *Bus {
	return &Bus{ch: make(chan ChangeEvent, size)}
}

// Publish enqueues the event, dropping it if the subscriber lags.
func (b *Bus) Publish(ctx context.Context, event ChangeEvent) error {
	select {
	case b.ch <- event:
	default:
		log.Warn().
			Str("draft_id", event.DraftID).
			Str("kind", string(event.Kind)).
			Msg("event bus full, dropping change event")
	}
	return nil
}

// Events exposes the subscriber side of the bus.
func (b *Bus) Events() <-chan ChangeEvent { return b.ch }

// NATSPublisher fans change events out to other relay instances over a
// core NATS subject per draft.
type NATSPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subjectPrefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, subjectPrefix: subjectPrefix}, nil
}

// Publish sends the event on <prefix>.<draftID>.
func (p *NATSPublisher) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, event.DraftID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Fanout publishes each event to every underlying publisher.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event ChangeEvent) error {
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			log.Error().Err(err).Str("draft_id", event.DraftID).Msg("failed to publish change event")
		}
	}
	return nil
}
