// Package grid holds the immutable tile map a world is played on.
package grid

import "fmt"

// Vec is an integer grid coordinate or displacement.
type Vec struct {
	X int
	Y int
}

func (v Vec) Add(o Vec) Vec {
	return Vec{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec) Sub(o Vec) Vec {
	return Vec{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Y)
}

// cell is either empty or carries a trap tile.
type cell struct {
	tile Tile
	trap bool
}

// Grid is a fixed W×H map of cells. It is never mutated after construction,
// so concurrent reads need no locking. Sessions check bounds before indexing.
type Grid struct {
	width  int
	height int
	cells  []cell
}

// New builds a grid with the given trap cells. Out-of-bounds trap coordinates
// are rejected.
func New(width, height int, traps map[Vec]Tile) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", width, height)
	}
	g := &Grid{
		width:  width,
		height: height,
		cells:  make([]cell, width*height),
	}
	for v, t := range traps {
		if !g.InBounds(v) {
			return nil, fmt.Errorf("trap %s outside %dx%d grid", v, width, height)
		}
		g.cells[g.index(v)] = cell{tile: t, trap: true}
	}
	return g, nil
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

func (g *Grid) InBounds(v Vec) bool {
	return v.X >= 0 && v.X < g.width && v.Y >= 0 && v.Y < g.height
}

// TileAt reports the trap tile at v, if any. v must be in bounds.
func (g *Grid) TileAt(v Vec) (Tile, bool) {
	c := g.cells[g.index(v)]
	return c.tile, c.trap
}

// Traps enumerates every trap cell. Used by the reservation table and the
// observer bootstrap frame.
func (g *Grid) Traps() map[Vec]Tile {
	out := map[Vec]Tile{}
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			v := Vec{X: x, Y: y}
			if c := g.cells[g.index(v)]; c.trap {
				out[v] = c.tile
			}
		}
	}
	return out
}

func (g *Grid) index(v Vec) int {
	return v.X*g.height + v.Y
}
