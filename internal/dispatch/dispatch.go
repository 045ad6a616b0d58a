// Package dispatch routes decoded protocol messages into the state
// store. Commands are a closed enum with an exhaustive switch, so adding
// a command without a handler is a compile-time hole rather than a
// runtime lookup miss. Each handler parses and resolves everything it
// needs before making a single atomic store call, so a failed message
// never leaves partial state behind.
package dispatch

import (
	"fmt"
	"strconv"

	"github.com/draftwire/draftwire/internal/models"
	"github.com/draftwire/draftwire/internal/protocol"
	"github.com/draftwire/draftwire/internal/store"
)

// Command identifies one inbound protocol command.
type Command int

const (
	CmdBidder Command = iota
	CmdAuction
	CmdStart
	CmdStatus
	CmdStop
)

// Wire names for the commands this client sends.
const (
	WireBidder = "bidder"
	WireBid    = "bid"
)

// ParseCommand maps a wire command name to its Command. The bid command
// is outbound-only and is not accepted from the server.
func ParseCommand(name string) (Command, error) {
	switch name {
	case "bidder":
		return CmdBidder, nil
	case "auction":
		return CmdAuction, nil
	case "start":
		return CmdStart, nil
	case "status":
		return CmdStatus, nil
	case "stop":
		return CmdStop, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// Dispatcher applies inbound messages to the state store.
type Dispatcher struct {
	store *store.Store
}

// New creates a dispatcher over the given store.
func New(s *store.Store) *Dispatcher {
	return &Dispatcher{store: s}
}

// Dispatch decodes the message's command and performs its mutation.
func (d *Dispatcher) Dispatch(msg protocol.Message) error {
	cmd, err := ParseCommand(msg.Command)
	if err != nil {
		return err
	}

	switch cmd {
	case CmdBidder:
		return d.handleBidder(msg)
	case CmdAuction:
		return d.handleAuction(msg)
	case CmdStart:
		return d.handleStart(msg)
	case CmdStatus:
		return d.handleStatus(msg)
	case CmdStop:
		return d.handleStop(msg)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Command)
}

// handleBidder acknowledges a bidder registration: get or create the
// manager, set its budget, and mark it verified.
func (d *Dispatcher) handleBidder(msg protocol.Message) error {
	draft, err := stringField(msg, "draft")
	if err != nil {
		return err
	}
	name, err := stringField(msg, "name")
	if err != nil {
		return err
	}
	budget, err := intField(msg, "budget")
	if err != nil {
		return err
	}

	if _, err := d.store.VerifyManager(draft, name, budget); err != nil {
		return fmt.Errorf("%w: %w", ErrUnresolvedReference, err)
	}
	return nil
}

// handleAuction records a newly announced auction slot.
func (d *Dispatcher) handleAuction(msg protocol.Message) error {
	draft, err := stringField(msg, "draft")
	if err != nil {
		return err
	}
	auctionID, err := intField(msg, "auctionId")
	if err != nil {
		return err
	}
	order, err := intField(msg, "order")
	if err != nil {
		return err
	}
	name, err := stringField(msg, "name")
	if err != nil {
		return err
	}
	position, err := stringField(msg, "position")
	if err != nil {
		return err
	}
	if !models.ValidPosition(models.Position(position)) {
		return fmt.Errorf("%w: position %q", ErrInvalidValue, position)
	}
	estValue, err := intField(msg, "estValue")
	if err != nil {
		return err
	}

	if _, err := d.store.CreatePlayer(draft, auctionID, order, name, models.Position(position), estValue); err != nil {
		return fmt.Errorf("%w: %w", ErrUnresolvedReference, err)
	}
	return nil
}

// handleStart marks an auction round as in progress, creating the player
// with placeholder defaults when the schedule never announced it.
func (d *Dispatcher) handleStart(msg protocol.Message) error {
	draft, err := stringField(msg, "draft")
	if err != nil {
		return err
	}
	auctionID, err := intField(msg, "auctionId")
	if err != nil {
		return err
	}
	timer, err := intField(msg, "timer")
	if err != nil {
		return err
	}
	if timer < 0 {
		return fmt.Errorf("%w: timer %d", ErrInvalidValue, timer)
	}

	defaults := store.PlayerDefaults{
		Name:     fmt.Sprintf("Player %d", auctionID),
		Position: models.PositionQB,
		Value:    1,
	}
	if _, err := d.store.SetPlayerTimer(draft, auctionID, timer, defaults); err != nil {
		return fmt.Errorf("%w: %w", ErrUnresolvedReference, err)
	}
	return nil
}

// handleStatus resets the auction timer and records the current high
// bidder when one is reported. Deliberately kept separate from stop: a
// status line means the round continues, a stop line means it settled.
func (d *Dispatcher) handleStatus(msg protocol.Message) error {
	draft, err := stringField(msg, "draft")
	if err != nil {
		return err
	}
	auctionID, err := intField(msg, "auctionId")
	if err != nil {
		return err
	}
	timer, err := intField(msg, "timer")
	if err != nil {
		return err
	}
	if timer < 0 {
		return fmt.Errorf("%w: timer %d", ErrInvalidValue, timer)
	}
	update, err := bidderUpdate(msg)
	if err != nil {
		return err
	}

	if _, err := d.store.SetPlayerStatus(draft, auctionID, timer, update); err != nil {
		return fmt.Errorf("%w: %w", ErrUnresolvedReference, err)
	}
	return nil
}

// handleStop settles an auction round: the timer is cleared and the
// winning bidder, when present, is recorded and debited.
func (d *Dispatcher) handleStop(msg protocol.Message) error {
	draft, err := stringField(msg, "draft")
	if err != nil {
		return err
	}
	auctionID, err := intField(msg, "auctionId")
	if err != nil {
		return err
	}
	update, err := bidderUpdate(msg)
	if err != nil {
		return err
	}

	if _, err := d.store.SettleAuction(draft, auctionID, update); err != nil {
		return fmt.Errorf("%w: %w", ErrUnresolvedReference, err)
	}
	return nil
}

// bidderUpdate extracts the optional bidderId/bid pair. The pair travels
// together; one without the other is a missing field.
func bidderUpdate(msg protocol.Message) (*store.BidderUpdate, error) {
	bidder, hasBidder := msg.Get("bidderId")
	_, hasBid := msg.Get("bid")
	if !hasBidder && !hasBid {
		return nil, nil
	}
	if !hasBidder {
		return nil, fmt.Errorf("%w: bidderId", ErrMissingField)
	}
	if !hasBid {
		return nil, fmt.Errorf("%w: bid", ErrMissingField)
	}
	amount, err := intField(msg, "bid")
	if err != nil {
		return nil, err
	}
	return &store.BidderUpdate{Bidder: bidder, Amount: amount}, nil
}

func stringField(msg protocol.Message, key string) (string, error) {
	v, ok := msg.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return v, nil
}

func intField(msg protocol.Message, key string) (int, error) {
	v, ok := msg.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return n, nil
}
