package viz

import (
	"math"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/physics"
)

const (
	dotsPerMetre = 12.0 // horizontal scale of the side view
	wheelRadius  = 0.24 // m, only turns the spoke
)

// drawSegway draws the side view: ground, wheel, handlebar and rider. The
// ground scrolls with the position so the vehicle never leaves the screen.
func drawSegway(c *Canvas, x dynamo.State, lean float64, riding bool) {
	w, h := c.Dots()
	ground := h - 2
	radius := 5
	cx, cy := w/2, ground-radius

	offset := (int(math.Round(x[physics.Pos]*dotsPerMetre))%16 + 16) % 16
	for gx := -offset; gx < w; gx += 16 {
		c.Line(gx, ground+1, gx+4, ground+1)
	}
	c.Line(0, ground, w-1, ground)

	c.Circle(cx, cy, radius)
	spoke := x[physics.Pos] / wheelRadius
	c.Line(cx, cy, cx+int(math.Round(float64(radius)*math.Cos(spoke))), cy+int(math.Round(float64(radius)*math.Sin(spoke))))

	tilt := x[physics.Tilt]
	bar := float64(h) * 0.7
	tx, ty := cx+int(math.Round(bar*math.Sin(tilt))), cy-int(math.Round(bar*math.Cos(tilt)))
	c.Line(cx, cy, tx, ty)
	c.Line(tx-3, ty, tx+3, ty)

	if !riding {
		return
	}
	body := float64(h) * 0.55
	angle := tilt + lean
	hx, hy := cx+int(math.Round(body*math.Sin(angle))), cy-int(math.Round(body*math.Cos(angle)))
	feet := cx - 3
	c.Line(feet, cy, hx-3, hy)
	c.Circle(hx-3, hy-3, 2)
}

// tiltDegrees converts the plant tilt for display.
func tiltDegrees(x dynamo.State) float64 {
	return x[physics.Tilt] * 180 / math.Pi
}

// Frame draws a single side view, e.g. for exporting a moment of a stored
// run.
func Frame(x dynamo.State, lean float64, riding bool) *Canvas {
	c := NewCanvas(width, height)
	drawSegway(c, x, lean, riding)
	return c
}
