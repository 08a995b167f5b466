// Package session implements a single agent's lifecycle on a grid.
package session

import (
	"sync"

	"gridquest.io/internal/game/grid"
)

// DeathReason values are surfaced to event sinks verbatim.
type DeathReason string

const (
	ReasonWanderedOut DeathReason = "Wandered out of the map"
	ReasonTrap        DeathReason = "Stepped on a trap"
	ReasonIdle        DeathReason = "Inactive for too long"
)

// MovedEvent fires on every executed step, including the one that kills the
// agent, and precedes the DiedEvent in that case.
type MovedEvent struct {
	From grid.Vec
	To   grid.Vec
}

// DiedEvent fires exactly once per session.
type DiedEvent struct {
	Reason DeathReason
}

// MoveOutcome mirrors the /move response payload.
type MoveOutcome struct {
	Moved      bool
	Alive      bool
	Discovered *grid.Tile
}

// admissibleMoves is the full set of legal displacement vectors: rest, the
// four unit steps, and the four length-2 jumps. Jumps skip the intermediate
// cell without probing it.
var admissibleMoves = map[grid.Vec]struct{}{
	{X: 0, Y: 0}:  {},
	{X: 1, Y: 0}:  {},
	{X: -1, Y: 0}: {},
	{X: 0, Y: 1}:  {},
	{X: 0, Y: -1}: {},
	{X: 2, Y: 0}:  {},
	{X: -2, Y: 0}: {},
	{X: 0, Y: 2}:  {},
	{X: 0, Y: -2}: {},
}

func Admissible(v grid.Vec) bool {
	_, ok := admissibleMoves[v]
	return ok
}

// LocalSession owns one agent on one grid. Moves are serialized by the
// caller's action queue; Kill may additionally arrive from the idle sweeper,
// so the mutable state carries its own small mutex.
type LocalSession struct {
	g *grid.Grid

	mu         sync.Mutex
	alive      bool
	loc        grid.Vec
	discovered *grid.Tile

	movedSubs []func(MovedEvent)
	diedSubs  []func(DiedEvent)
}

func New(g *grid.Grid) *LocalSession {
	return &LocalSession{g: g, alive: true}
}

// OnMoved registers a move observer. Observers must not block; registration
// happens before the session is exposed to traffic.
func (s *LocalSession) OnMoved(fn func(MovedEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movedSubs = append(s.movedSubs, fn)
}

// OnDied registers a death observer, invoked exactly once.
func (s *LocalSession) OnDied(fn func(DiedEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diedSubs = append(s.diedSubs, fn)
}

func (s *LocalSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *LocalSession) Location() grid.Vec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// DiscoveredTile is the tile observed by the most recent fatal step, if any.
func (s *LocalSession) DiscoveredTile() *grid.Tile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discovered
}

// Move applies v to the agent. Inadmissible vectors are rejected without side
// effects; admissible ones translate the agent and may kill it on an
// out-of-bounds cell or a trap.
func (s *LocalSession) Move(v grid.Vec) MoveOutcome {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return MoveOutcome{Moved: false, Alive: false}
	}
	if !Admissible(v) {
		s.mu.Unlock()
		return MoveOutcome{Moved: false, Alive: true}
	}

	prev := s.loc
	s.loc = s.loc.Add(v)
	curr := s.loc

	var (
		outcome MoveOutcome
		reason  DeathReason
		died    bool
	)
	switch {
	case !s.g.InBounds(curr):
		died, reason = true, ReasonWanderedOut
		outcome = MoveOutcome{Moved: true, Alive: false}
	default:
		if tile, trapped := s.g.TileAt(curr); trapped {
			t := tile
			s.discovered = &t
			died, reason = true, ReasonTrap
			outcome = MoveOutcome{Moved: true, Alive: false, Discovered: &t}
		} else {
			outcome = MoveOutcome{Moved: true, Alive: true}
		}
	}
	if died {
		s.alive = false
	}
	movedSubs := s.movedSubs
	diedSubs := s.diedSubs
	s.mu.Unlock()

	for _, fn := range movedSubs {
		fn(MovedEvent{From: prev, To: curr})
	}
	if died {
		for _, fn := range diedSubs {
			fn(DiedEvent{Reason: reason})
		}
	}
	return outcome
}

// Kill forces the alive→dead transition, e.g. on idle eviction. Idempotent at
// the state level; the DiedEvent fires only on the first call.
func (s *LocalSession) Kill(reason DeathReason) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	diedSubs := s.diedSubs
	s.mu.Unlock()

	for _, fn := range diedSubs {
		fn(DiedEvent{Reason: reason})
	}
}
