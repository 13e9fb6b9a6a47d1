package core

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextItem is a block of text anchored at its top left corner in pixels.
type TextItem struct {
	Text     string
	Position image.Point
	Color    color.Color
}

// TextRenderer stamps text onto host frames with a fixed bitmap face.
type TextRenderer struct {
	Face font.Face
}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{Face: basicfont.Face7x13}
}

// LineHeight is the advance between lines of a block in pixels.
func (t *TextRenderer) LineHeight() int {
	return t.Face.Metrics().Height.Ceil()
}

// Measure returns the pixel size of a block.
func (t *TextRenderer) Measure(text string) image.Point {
	var size image.Point
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		if w := font.MeasureString(t.Face, line).Ceil(); w > size.X {
			size.X = w
		}
	}
	size.Y = len(lines) * t.LineHeight()
	return size
}

// Draw renders item onto dst, clipped to its bounds.
func (t *TextRenderer) Draw(dst draw.Image, item TextItem) {
	col := item.Color
	if col == nil {
		col = color.White
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: t.Face,
	}
	ascent := t.Face.Metrics().Ascent.Ceil()
	for i, line := range strings.Split(item.Text, "\n") {
		d.Dot = fixed.P(item.Position.X, item.Position.Y+ascent+i*t.LineHeight())
		d.DrawString(line)
	}
}
