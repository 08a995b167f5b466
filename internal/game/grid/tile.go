package grid

import (
	"fmt"
	"unicode"

	"gridquest.io/internal/protocol"
)

// Tile is a two-character map glyph. Both runes must be printable BMP
// characters; control characters and anything outside the basic plane
// (emoji, surrogate-pair material) are not admissible.
type Tile struct {
	Left  rune
	Right rune
}

// TrapGlyph is the tile written into cells the map loader marks lethal.
const TrapGlyph = "##"

func NewTile(s string) (Tile, error) {
	runes := []rune(s)
	if len(runes) != 2 {
		return Tile{}, fmt.Errorf("tile string must have exactly 2 characters, got %q", s)
	}
	for _, r := range runes {
		if !admissibleTileRune(r) {
			return Tile{}, fmt.Errorf("tile character %q is not admissible", r)
		}
	}
	return Tile{Left: runes[0], Right: runes[1]}, nil
}

// MustTile is for compile-time-known glyphs such as TrapGlyph.
func MustTile(s string) Tile {
	t, err := NewTile(s)
	if err != nil {
		panic(err)
	}
	return t
}

func admissibleTileRune(r rune) bool {
	return r <= 0xFFFF && unicode.IsPrint(r) && !unicode.IsControl(r)
}

func (t Tile) String() string {
	return string([]rune{t.Left, t.Right})
}

func (t Tile) JSON() *protocol.TileJSON {
	return &protocol.TileJSON{Str: t.String()}
}
