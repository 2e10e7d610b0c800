// Package label places text labels: priority ordering, screen-space
// collision on a coarse grid, and glyph quad emission from an ASCII
// bitmap atlas.
package label

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Atlas cell geometry. Face7x13 glyphs are 7x13; one pixel of padding on
// each axis prevents sampling bleed.
const (
	glyphWidth  = 7
	glyphHeight = 13
	cellWidth   = 8
	cellHeight  = 14
	atlasCols   = 16

	firstRune = 32  // space
	lastRune  = 126 // tilde
)

// Estimated label metrics used for collision boxes before shaping.
const (
	EstCharWidth = 7.5
	EstHeight    = 14.0
)

// Glyph is the atlas location of one character.
type Glyph struct {
	U0, V0, U1, V1 float32
}

// Atlas is a rasterized ASCII bitmap font atlas built once at startup
// from the basicfont 7x13 face.
type Atlas struct {
	Image  *image.RGBA
	Width  int
	Height int

	glyphs [lastRune - firstRune + 1]Glyph
}

// NewAtlas rasterizes the printable ASCII range into a single RGBA
// image, one fixed-size cell per glyph.
func NewAtlas() *Atlas {
	rows := (lastRune - firstRune + atlasCols) / atlasCols
	w := atlasCols * cellWidth
	h := rows * cellHeight

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}

	a := &Atlas{Image: img, Width: w, Height: h}
	for r := rune(firstRune); r <= lastRune; r++ {
		i := int(r - firstRune)
		col := i % atlasCols
		row := i / atlasCols

		px := col * cellWidth
		py := row * cellHeight
		drawer.Dot = fixed.P(px, py+face.Ascent)
		drawer.DrawString(string(r))

		a.glyphs[i] = Glyph{
			U0: float32(px) / float32(w),
			V0: float32(py) / float32(h),
			U1: float32(px+glyphWidth) / float32(w),
			V1: float32(py+glyphHeight) / float32(h),
		}
	}
	return a
}

// Glyph returns the atlas entry for a rune. Characters outside the
// printable ASCII range fall back to '?'.
func (a *Atlas) Glyph(r rune) Glyph {
	if r < firstRune || r > lastRune {
		r = '?'
	}
	return a.glyphs[r-firstRune]
}

// Pixels returns the atlas as tightly packed RGBA bytes for upload.
func (a *Atlas) Pixels() []byte {
	return a.Image.Pix
}
