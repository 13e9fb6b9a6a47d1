package core

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextRendererDrawsInsideMeasuredBox(t *testing.T) {
	tr := NewTextRenderer()
	text := "tick 600\nn 10000"
	size := tr.Measure(text)
	assert.Equal(t, 2*tr.LineHeight(), size.Y)
	assert.Equal(t, 8*7, size.X)

	dst := image.NewRGBA(image.Rect(0, 0, 100, 60))
	origin := image.Pt(4, 4)
	tr.Draw(dst, TextItem{Text: text, Position: origin, Color: color.RGBA{G: 255, A: 255}})

	box := image.Rectangle{Min: origin, Max: origin.Add(size)}
	lit := 0
	for y := 0; y < 60; y++ {
		for x := 0; x < 100; x++ {
			if dst.RGBAAt(x, y).G == 0 {
				continue
			}
			lit++
			assert.True(t, image.Pt(x, y).In(box), "pixel (%d,%d) outside %v", x, y, box)
		}
	}
	assert.Positive(t, lit)
}
