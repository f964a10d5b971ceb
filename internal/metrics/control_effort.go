package metrics

import (
	"math"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/physics"
)

// ControlEffort is the mean absolute wheel duty while the vehicle is active.
type ControlEffort struct {
	duty  float64
	ticks int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(s dynamo.Sample) {
	if !s.Active || len(s.U) <= physics.RightDuty {
		return
	}
	left, right := math.Abs(s.U[physics.LeftDuty]), math.Abs(s.U[physics.RightDuty])
	c.duty += (left + right) / 2
	c.ticks++
}

func (c *ControlEffort) Value() float64 {
	if c.ticks == 0 {
		return 0
	}
	return c.duty / float64(c.ticks)
}

func (c *ControlEffort) Reset() { c.duty, c.ticks = 0, 0 }
