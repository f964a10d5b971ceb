package physics

import (
	"math"

	"github.com/san-kum/segway/internal/dynamo"
)

// Rider leans against the column's tilt and, within MaxLean, toward the speed
// they want. The lean follows that wish through a first order lag.
type Rider struct {
	Reflex    float64 // lean per radian of column tilt
	SpeedGain float64 // lean per m/s of speed error
	MaxLean   float64
	Lag       float64 // seconds

	lean float64
}

func NewRider() *Rider {
	return &Rider{Reflex: 1, SpeedGain: 0.03, MaxLean: 0.08, Lag: 0.1}
}

// Update advances the rider by dt and returns the new lean.
func (r *Rider) Update(dt float64, x dynamo.State, target float64) float64 {
	wish := -r.Reflex*x[Tilt] + clamp(r.SpeedGain*(target-x[Vel]), r.MaxLean)
	if r.Lag <= dt {
		r.lean = wish
	} else {
		r.lean += (wish - r.lean) * dt / r.Lag
	}
	return r.lean
}

func (r *Rider) Lean() float64 { return r.lean }

func (r *Rider) Reset() { r.lean = 0 }

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
