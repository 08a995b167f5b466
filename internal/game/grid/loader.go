package grid

import (
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Luminance threshold above which a pixel becomes a trap cell. Pixels are
// weighted with the usual Rec. 601 coefficients on a 0..255 scale.
const trapLuminanceThreshold = 127.5

// LoadImage reads a raster map file and converts it pixel-per-cell: image X
// indexes grid columns, image Y grid rows. Bright pixels become "##" traps,
// everything else stays empty.
func LoadImage(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode map %s: %w", path, err)
	}
	return FromImage(img)
}

// FromImage applies the luminance rule to an already-decoded image.
func FromImage(img image.Image) (*Grid, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	trap := MustTile(TrapGlyph)

	traps := map[Vec]Tile{}
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA returns 16-bit channels; scale down to 0..255.
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			if lum > trapLuminanceThreshold {
				traps[Vec{X: x, Y: y}] = trap
			}
		}
	}
	return New(width, height, traps)
}
