package models

import (
	"time"

	"github.com/google/uuid"
)

// Position defines a roster position code.
type Position string

const (
	PositionQB  Position = "QB"
	PositionRB  Position = "RB"
	PositionWR  Position = "WR"
	PositionTE  Position = "TE"
	PositionDEF Position = "DEF"
	PositionK   Position = "K"
)

// Positions lists every valid position code.
var Positions = []Position{
	PositionQB,
	PositionRB,
	PositionWR,
	PositionTE,
	PositionDEF,
	PositionK,
}

// ValidPosition reports whether p is one of the fixed position codes.
func ValidPosition(p Position) bool {
	for _, pos := range Positions {
		if p == pos {
			return true
		}
	}
	return false
}

// Draft represents one auction session. The quota is the ordered sequence
// of position slots each team must fill.
type Draft struct {
	ID          string     `json:"id"`
	MaxManagers int        `json:"max_managers"`
	Quota       []Position `json:"quota"`
	Modified    time.Time  `json:"modified"`
}

// Manager represents one bidder within a draft. Verified flips true once
// the auction server acknowledges the registration.
type Manager struct {
	DraftID  string    `json:"draft_id"`
	Name     string    `json:"name"`
	Budget   int       `json:"budget"`
	Verified bool      `json:"verified"`
	Modified time.Time `json:"modified"`
}

// Player represents one auctionable player within a draft. A non-nil
// positive Timer means its auction round is in progress; a nil Timer means
// the round has not been scheduled or has settled.
type Player struct {
	DraftID   string    `json:"draft_id"`
	AuctionID int       `json:"auction_id"`
	Order     int       `json:"order"`
	Name      string    `json:"name"`
	Position  Position  `json:"position"`
	Value     int       `json:"value"`
	Manager   string    `json:"manager,omitempty"`
	Bid       *int      `json:"bid,omitempty"`
	Timer     *int      `json:"timer,omitempty"`
	Modified  time.Time `json:"modified"`
}

// Bid represents one bid attempt queued for transmission. Processed flips
// true exactly once, after the sender has handed the message to the
// transport. Bids are retained for audit.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	DraftID   string    `json:"draft_id"`
	AuctionID int       `json:"auction_id"`
	Order     int       `json:"order"`
	Manager   string    `json:"manager"`
	Amount    int       `json:"amount"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamSlot is one entry of a team view: a quota position and the player
// filling it, if any. Slots past the quota carry overflow players that do
// not count toward the quota.
type TeamSlot struct {
	Position Position `json:"position"`
	Player   string   `json:"player,omitempty"`
	Value    int      `json:"value,omitempty"`
}
