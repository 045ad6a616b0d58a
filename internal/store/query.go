package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/draftwire/draftwire/internal/models"
)

// ChangeSet is one consistent snapshot of everything modified after a
// caller-supplied instant. Time is the server time at the moment of the
// read; callers pass it back as the next since value.
type ChangeSet struct {
	Time     time.Time        `json:"time"`
	Managers []models.Manager `json:"managers"`
	Players  []models.Player  `json:"players"`
}

// ChangesSince returns every verified manager and every player in the
// draft modified strictly after since, plus the current server time, all
// read under one lock so no entity is observed partially updated.
func (s *Store) ChangesSince(draftID string, since time.Time) (ChangeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.drafts[draftID]; !ok {
		return ChangeSet{}, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}

	set := ChangeSet{
		Time:     s.clock.Now(),
		Managers: []models.Manager{},
		Players:  []models.Player{},
	}
	for _, m := range s.managers[draftID] {
		if m.Verified && m.Modified.After(since) {
			set.Managers = append(set.Managers, copyManager(m))
		}
	}
	for _, p := range s.players[draftID] {
		if p.Modified.After(since) {
			set.Players = append(set.Players, copyPlayer(p))
		}
	}
	sort.Slice(set.Managers, func(i, j int) bool { return set.Managers[i].Name < set.Managers[j].Name })
	sort.Slice(set.Players, func(i, j int) bool { return set.Players[i].Order < set.Players[j].Order })
	return set, nil
}

// Team returns the manager's acquired players arranged against the
// draft's quota: each quota slot is filled greedily with the manager's
// highest-valued unassigned player of that position, then any remaining
// acquired players are appended after the quota slots. Only settled
// players count; a player whose auction is still running belongs to no
// one yet.
func (s *Store) Team(draftID, managerName string) ([]models.TeamSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[draftID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	if _, ok := s.managers[draftID][managerName]; !ok {
		return nil, fmt.Errorf("%w: %s in draft %s", ErrManagerNotFound, managerName, draftID)
	}

	var acquired []*models.Player
	for _, p := range s.players[draftID] {
		if p.Manager == managerName && p.Timer == nil {
			acquired = append(acquired, p)
		}
	}
	sort.Slice(acquired, func(i, j int) bool {
		if acquired[i].Value != acquired[j].Value {
			return acquired[i].Value > acquired[j].Value
		}
		return acquired[i].Order < acquired[j].Order
	})

	used := make(map[*models.Player]bool)
	team := make([]models.TeamSlot, 0, len(draft.Quota)+len(acquired))
	for _, pos := range draft.Quota {
		slot := models.TeamSlot{Position: pos}
		for _, p := range acquired {
			if !used[p] && p.Position == pos {
				used[p] = true
				slot.Player = p.Name
				slot.Value = p.Value
				break
			}
		}
		team = append(team, slot)
	}
	for _, p := range acquired {
		if !used[p] {
			team = append(team, models.TeamSlot{Position: p.Position, Player: p.Name, Value: p.Value})
		}
	}
	return team, nil
}
