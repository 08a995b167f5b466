package grid

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestNewTile(t *testing.T) {
	if _, err := NewTile("##"); err != nil {
		t.Fatalf("trap glyph rejected: %v", err)
	}
	if _, err := NewTile("[]"); err != nil {
		t.Fatalf("bracket glyph rejected: %v", err)
	}
	for _, bad := range []string{"", "#", "###", "a\n", "\x00x", "🙂x"} {
		if _, err := NewTile(bad); err == nil {
			t.Fatalf("NewTile(%q) should fail", bad)
		}
	}
	tile := MustTile("AB")
	if got := tile.String(); got != "AB" {
		t.Fatalf("String() = %q, want AB", got)
	}
	if got := tile.JSON().Str; got != "AB" {
		t.Fatalf("JSON().Str = %q, want AB", got)
	}
}

func TestGridBoundsAndTraps(t *testing.T) {
	trap := MustTile(TrapGlyph)
	g, err := New(3, 3, map[Vec]Tile{{X: 1, Y: 0}: trap})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !g.InBounds(Vec{X: 0, Y: 0}) || !g.InBounds(Vec{X: 2, Y: 2}) {
		t.Fatalf("corners should be in bounds")
	}
	for _, v := range []Vec{{X: -1, Y: 0}, {X: 0, Y: -1}, {X: 3, Y: 0}, {X: 0, Y: 3}} {
		if g.InBounds(v) {
			t.Fatalf("%s should be out of bounds", v)
		}
	}
	if tile, trapped := g.TileAt(Vec{X: 1, Y: 0}); !trapped || tile.String() != TrapGlyph {
		t.Fatalf("TileAt(1,0) = %v,%v, want trap", tile, trapped)
	}
	if _, trapped := g.TileAt(Vec{X: 0, Y: 0}); trapped {
		t.Fatalf("spawn cell should be empty")
	}
	if n := len(g.Traps()); n != 1 {
		t.Fatalf("Traps() has %d entries, want 1", n)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(0, 3, nil); err == nil {
		t.Fatalf("zero width accepted")
	}
	if _, err := New(3, 3, map[Vec]Tile{{X: 5, Y: 0}: MustTile(TrapGlyph)}); err == nil {
		t.Fatalf("out-of-bounds trap accepted")
	}
}

func TestLoadImageLuminanceRule(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	// (0,0) black, (1,0) white, (2,0) mid-gray just below threshold,
	// (0,1) pure green (above), (1,1) pure blue (below), (2,1) pure red (below).
	img.Set(0, 0, color.RGBA{0, 0, 0, 255})
	img.Set(1, 0, color.RGBA{255, 255, 255, 255})
	img.Set(2, 0, color.RGBA{127, 127, 127, 255})
	img.Set(0, 1, color.RGBA{0, 255, 0, 255})
	img.Set(1, 1, color.RGBA{0, 0, 255, 255})
	img.Set(2, 1, color.RGBA{255, 0, 0, 255})

	path := filepath.Join(t.TempDir(), "map.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_ = f.Close()

	g, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if g.Width() != 3 || g.Height() != 2 {
		t.Fatalf("dims = %dx%d, want 3x2", g.Width(), g.Height())
	}

	wantTrap := map[Vec]bool{
		{X: 0, Y: 0}: false,
		{X: 1, Y: 0}: true,
		{X: 2, Y: 0}: false,
		{X: 0, Y: 1}: true,  // 0.587*255 ≈ 149.7
		{X: 1, Y: 1}: false, // 0.114*255 ≈ 29.1
		{X: 2, Y: 1}: false, // 0.299*255 ≈ 76.2
	}
	for v, want := range wantTrap {
		tile, trapped := g.TileAt(v)
		if trapped != want {
			t.Fatalf("trap at %s = %v, want %v", v, trapped, want)
		}
		if trapped && tile.String() != TrapGlyph {
			t.Fatalf("trap tile at %s = %q, want %q", v, tile.String(), TrapGlyph)
		}
	}
}

func TestLoadImageMissingFile(t *testing.T) {
	if _, err := LoadImage(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
