package viz

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/physics"
)

const (
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// Renderer draws throttled frames of a running simulation to a terminal.
// It is an Observer, so it can be attached to a plain batch run.
type Renderer struct {
	title     string
	out       io.Writer
	frameRate int
	lastFrame time.Time
	canvas    *Canvas
	now       func() time.Time
}

func NewRenderer(title string, out io.Writer, fps int) *Renderer {
	if fps <= 0 {
		fps = frameRate
	}
	return &Renderer{
		title:     title,
		out:       out,
		frameRate: fps,
		canvas:    NewCanvas(width, height/2),
		now:       time.Now,
	}
}

func (r *Renderer) OnStep(s dynamo.Sample) {
	now := r.now()
	if now.Sub(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = now

	r.canvas.Clear()
	drawSegway(r.canvas, s.X, s.U[physics.Lean], s.Active)
	fmt.Fprint(r.out, r.frame(s))
}

func (r *Renderer) frame(s dynamo.Sample) string {
	var b strings.Builder
	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "  %s  t=%.2fs\n", r.title, s.T)
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	for _, row := range strings.Split(r.canvas.String(), "\n") {
		b.WriteString("  " + row + "\n")
	}
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	fmt.Fprintf(&b, "  v=%+.2f tilt=%+.1f° L %s R %s bat=%.2fV\n",
		s.X[physics.Vel], tiltDegrees(s.X),
		DutyBar(s.U[physics.LeftDuty], 5), DutyBar(s.U[physics.RightDuty], 5), s.Battery)
	return b.String()
}

func (r *Renderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *Renderer) Stop()  { fmt.Fprint(r.out, showCursor) }
