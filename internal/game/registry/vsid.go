package registry

import (
	"fmt"
	"regexp"
	"strings"

	"gridquest.io/internal/game/grid"
	"gridquest.io/internal/protocol"
)

// VisualIdentifier is the (text, color) pair a session renders as. Text is
// one or two runes; validation assumes the string was sanitized upstream.
type VisualIdentifier struct {
	Text  string
	Color protocol.Color
}

func NewVisualIdentifier(text string, color protocol.Color) (VisualIdentifier, error) {
	n := len([]rune(text))
	if n == 0 || n > 2 {
		return VisualIdentifier{}, fmt.Errorf("identifier text must be 1-2 characters, got %q", text)
	}
	if !protocol.IsKnownColor(color) {
		return VisualIdentifier{}, fmt.Errorf("unknown identifier color %q", color)
	}
	return VisualIdentifier{Text: text, Color: color}, nil
}

func (v VisualIdentifier) String() string {
	return fmt.Sprintf("(%q, %s)", v.Text, v.Color)
}

type reservation struct {
	text  *regexp.Regexp
	color protocol.Color
}

// Identifiers the renderer claims for itself: the error marker and the
// session counters drawn in yellow.
var builtinReservations = []reservation{
	{text: regexp.MustCompile(`^EE$`), color: protocol.ColorRed},
	{text: regexp.MustCompile(`^(\d+|Hi)$`), color: protocol.ColorYellow},
}

// ReservedSet answers whether a visual identifier would collide with
// presentation output. For worlds rendered on a white background, map glyphs
// and the blank cell claim the White color as well.
type ReservedSet struct {
	rules           []reservation
	whiteBackground bool
	whiteGlyphs     map[string]struct{}
}

// NewReservedSet derives the reservation table for a world. whiteBackground
// is true when the world's sink renders empty cells in White.
func NewReservedSet(g *grid.Grid, whiteBackground bool) *ReservedSet {
	s := &ReservedSet{rules: builtinReservations, whiteBackground: whiteBackground}
	if whiteBackground && g != nil {
		s.whiteGlyphs = map[string]struct{}{}
		for _, tile := range g.Traps() {
			s.whiteGlyphs[tile.String()] = struct{}{}
		}
	}
	return s
}

func (s *ReservedSet) Blocked(ident VisualIdentifier) bool {
	for _, r := range s.rules {
		if r.color == ident.Color && r.text.MatchString(ident.Text) {
			return true
		}
	}
	if ident.Color == protocol.ColorWhite && s.whiteBackground {
		// White text on a white background: map glyphs and blank text would
		// be indistinguishable from the map itself.
		if strings.TrimSpace(ident.Text) == "" {
			return true
		}
		if _, ok := s.whiteGlyphs[ident.Text]; ok {
			return true
		}
	}
	return false
}
