package metrics

import (
	"math"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/physics"
)

// DefaultUprightAngle is the tilt beyond which a rider would step off.
const DefaultUprightAngle = 0.35

// Upright is the fraction of samples, counted from the first active one, with
// the tilt inside the threshold.
type Upright struct {
	name      string
	threshold float64
	started   bool
	upright   int
	samples   int
}

func NewUpright(threshold float64) *Upright {
	return &Upright{
		name:      "upright",
		threshold: threshold,
	}
}

func (u *Upright) Name() string {
	return u.name
}

func (u *Upright) Observe(s dynamo.Sample) {
	u.started = u.started || s.Active
	if !u.started {
		return
	}
	u.samples++
	if math.Abs(s.X[physics.Tilt]) < u.threshold {
		u.upright++
	}
}

func (u *Upright) Value() float64 {
	if u.samples == 0 {
		return 0
	}
	return float64(u.upright) / float64(u.samples)
}

func (u *Upright) Reset() {
	u.started = false
	u.upright = 0
	u.samples = 0
}

// TiltRMS is the root mean square tilt over active samples.
type TiltRMS struct {
	sum     float64
	samples int
}

func NewTiltRMS() *TiltRMS { return &TiltRMS{} }

func (m *TiltRMS) Name() string { return "tilt_rms" }

func (m *TiltRMS) Observe(s dynamo.Sample) {
	if !s.Active {
		return
	}
	m.sum += s.X[physics.Tilt] * s.X[physics.Tilt]
	m.samples++
}

func (m *TiltRMS) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sum / float64(m.samples))
}

func (m *TiltRMS) Reset() {
	m.sum = 0
	m.samples = 0
}
