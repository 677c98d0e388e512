package training

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Colormap maps [0, 1] onto a gradient through its stops, blending in Lab
type Colormap []colorful.Color

// Inferno approximates the matplotlib colormap of the same name
var Inferno = Colormap{
	mustHex("#000004"),
	mustHex("#420a68"),
	mustHex("#932667"),
	mustHex("#dd513a"),
	mustHex("#fca50a"),
	mustHex("#fcffa4"),
}

// Grayscale maps 0 to black and 1 to white
var Grayscale = Colormap{
	{R: 0, G: 0, B: 0},
	{R: 1, G: 1, B: 1},
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// At returns the colour for v; values outside [0, 1] are clamped
func (cm Colormap) At(v float64) color.RGBA {
	if len(cm) == 0 {
		return color.RGBA{A: 255}
	}
	if v != v || v <= 0 {
		return toRGBA(cm[0])
	}
	if v >= 1 {
		return toRGBA(cm[len(cm)-1])
	}

	pos := v * float64(len(cm)-1)
	i := int(pos)
	return toRGBA(cm[i].BlendLab(cm[i+1], pos-float64(i)))
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
