package display

import (
	"image/color"
	"math"
)

var (
	wireColor       = color.Gray{Y: 220}
	wallColor       = color.Gray{Y: 120}
	hitColor        = color.Gray{Y: 90}
	backgroundColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	asicColor       = color.RGBA{R: 230, G: 140, B: 20, A: 255}
	rejectedColor   = color.Gray{Y: 160}
)

// palette returns n distinct colours spread over the hue circle.
func palette(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	out := make([]color.Color, n)
	for i := range out {
		out[i] = hsl(float64(i)/float64(n), 0.75, 0.45)
	}
	return out
}

func hsl(h, s, l float64) color.RGBA {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h * 6
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g = c, x
	case hp < 2:
		r, g = x, c
	case hp < 3:
		g, b = c, x
	case hp < 4:
		g, b = x, c
	case hp < 5:
		r, b = x, c
	default:
		r, b = c, x
	}
	m := l - c/2
	to8 := func(v float64) uint8 { return uint8(math.Round((v + m) * 255)) }
	return color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 255}
}
