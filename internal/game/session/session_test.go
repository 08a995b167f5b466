package session

import (
	"testing"

	"gridquest.io/internal/game/grid"
)

func testGrid(t *testing.T) *grid.Grid {
	t.Helper()
	g, err := grid.New(3, 3, map[grid.Vec]grid.Tile{
		{X: 1, Y: 0}: grid.MustTile(grid.TrapGlyph),
	})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	return g
}

func TestAdmissibleSet(t *testing.T) {
	admissible := []grid.Vec{
		{X: 0, Y: 0},
		{X: 1, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: -1},
		{X: 2, Y: 0}, {X: -2, Y: 0}, {X: 0, Y: 2}, {X: 0, Y: -2},
	}
	for _, v := range admissible {
		if !Admissible(v) {
			t.Fatalf("%s should be admissible", v)
		}
	}
	for _, v := range []grid.Vec{{X: 1, Y: 1}, {X: 3, Y: 0}, {X: -1, Y: -1}, {X: 2, Y: 2}, {X: 0, Y: 3}} {
		if Admissible(v) {
			t.Fatalf("%s should not be admissible", v)
		}
	}
}

func TestMoveSafeStep(t *testing.T) {
	s := New(testGrid(t))
	var moves []MovedEvent
	s.OnMoved(func(ev MovedEvent) { moves = append(moves, ev) })

	out := s.Move(grid.Vec{X: 0, Y: 1})
	if !out.Moved || !out.Alive || out.Discovered != nil {
		t.Fatalf("outcome = %+v, want moved alive nothing discovered", out)
	}
	if got := s.Location(); got != (grid.Vec{X: 0, Y: 1}) {
		t.Fatalf("location = %s, want (0,1)", got)
	}
	if len(moves) != 1 || moves[0].From != (grid.Vec{}) || moves[0].To != (grid.Vec{X: 0, Y: 1}) {
		t.Fatalf("moved events = %+v", moves)
	}
}

func TestMoveZeroVectorIsAdmissible(t *testing.T) {
	s := New(testGrid(t))
	var moves []MovedEvent
	s.OnMoved(func(ev MovedEvent) { moves = append(moves, ev) })

	out := s.Move(grid.Vec{})
	if !out.Moved || !out.Alive {
		t.Fatalf("outcome = %+v, want moved alive", out)
	}
	if s.Location() != (grid.Vec{}) {
		t.Fatalf("location changed on (0,0) move")
	}
	if len(moves) != 1 || moves[0].From != moves[0].To {
		t.Fatalf("want Moved(curr,curr), got %+v", moves)
	}
}

func TestMoveInadmissibleRejected(t *testing.T) {
	s := New(testGrid(t))
	for _, v := range []grid.Vec{{X: 3, Y: 0}, {X: 1, Y: 1}} {
		out := s.Move(v)
		if out.Moved || !out.Alive || out.Discovered != nil {
			t.Fatalf("Move(%s) = %+v, want rejected and alive", v, out)
		}
	}
	if s.Location() != (grid.Vec{}) {
		t.Fatalf("rejected move changed location")
	}
}

func TestMoveOutOfBoundsKills(t *testing.T) {
	s := New(testGrid(t))
	var deaths []DiedEvent
	s.OnDied(func(ev DiedEvent) { deaths = append(deaths, ev) })

	out := s.Move(grid.Vec{X: -1, Y: 0})
	if !out.Moved || out.Alive || out.Discovered != nil {
		t.Fatalf("outcome = %+v, want moved dead nothing discovered", out)
	}
	if s.Alive() {
		t.Fatalf("session should be dead")
	}
	if len(deaths) != 1 || deaths[0].Reason != ReasonWanderedOut {
		t.Fatalf("deaths = %+v, want one %q", deaths, ReasonWanderedOut)
	}
}

func TestMoveOntoTrapKills(t *testing.T) {
	s := New(testGrid(t))
	var order []string
	s.OnMoved(func(MovedEvent) { order = append(order, "moved") })
	s.OnDied(func(DiedEvent) { order = append(order, "died") })

	out := s.Move(grid.Vec{X: 1, Y: 0})
	if !out.Moved || out.Alive {
		t.Fatalf("outcome = %+v, want moved dead", out)
	}
	if out.Discovered == nil || out.Discovered.String() != grid.TrapGlyph {
		t.Fatalf("discovered = %v, want %q", out.Discovered, grid.TrapGlyph)
	}
	if d := s.DiscoveredTile(); d == nil || d.String() != grid.TrapGlyph {
		t.Fatalf("DiscoveredTile = %v", d)
	}
	if len(order) != 2 || order[0] != "moved" || order[1] != "died" {
		t.Fatalf("event order = %v, want moved then died", order)
	}
}

func TestMoveAfterDeathIsNoop(t *testing.T) {
	s := New(testGrid(t))
	s.Move(grid.Vec{X: -1, Y: 0})

	out := s.Move(grid.Vec{X: 0, Y: 1})
	if out.Moved || out.Alive || out.Discovered != nil {
		t.Fatalf("outcome = %+v, want not moved, not alive", out)
	}
}

func TestKillFiresDiedOnce(t *testing.T) {
	s := New(testGrid(t))
	var deaths []DiedEvent
	s.OnDied(func(ev DiedEvent) { deaths = append(deaths, ev) })

	s.Kill(ReasonIdle)
	s.Kill(ReasonIdle)
	s.Move(grid.Vec{X: -1, Y: 0})

	if len(deaths) != 1 || deaths[0].Reason != ReasonIdle {
		t.Fatalf("deaths = %+v, want exactly one %q", deaths, ReasonIdle)
	}
}

func TestLengthTwoJumpSkipsIntermediateCell(t *testing.T) {
	// Trap sits at (1,0); a (2,0) jump must pass over it unharmed.
	s := New(testGrid(t))
	out := s.Move(grid.Vec{X: 2, Y: 0})
	if !out.Moved || !out.Alive {
		t.Fatalf("outcome = %+v, want moved alive", out)
	}
	if got := s.Location(); got != (grid.Vec{X: 2, Y: 0}) {
		t.Fatalf("location = %s, want (2,0)", got)
	}
}
