package metrics

import (
	"math"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/physics"
)

type ActiveFraction struct {
	active, samples int
}

func NewActiveFraction() *ActiveFraction { return &ActiveFraction{} }

func (a *ActiveFraction) Name() string { return "active_fraction" }

func (a *ActiveFraction) Observe(s dynamo.Sample) {
	a.samples++
	if s.Active {
		a.active++
	}
}

func (a *ActiveFraction) Value() float64 {
	if a.samples == 0 {
		return 0
	}
	return float64(a.active) / float64(a.samples)
}

func (a *ActiveFraction) Reset() { a.active, a.samples = 0, 0 }

type MaxSpeed struct{ max float64 }

func NewMaxSpeed() *MaxSpeed { return &MaxSpeed{} }

func (m *MaxSpeed) Name() string { return "max_speed" }

func (m *MaxSpeed) Observe(s dynamo.Sample) {
	m.max = math.Max(m.max, math.Abs(s.X[physics.Vel]))
}

func (m *MaxSpeed) Value() float64 { return m.max }

func (m *MaxSpeed) Reset() { m.max = 0 }

// MinBattery is the lowest battery reading seen; 0 before any sample.
type MinBattery struct {
	min  float64
	seen bool
}

func NewMinBattery() *MinBattery { return &MinBattery{} }

func (m *MinBattery) Name() string { return "min_battery" }

func (m *MinBattery) Observe(s dynamo.Sample) {
	if !m.seen || s.Battery < m.min {
		m.min = s.Battery
	}
	m.seen = true
}

func (m *MinBattery) Value() float64 { return m.min }

func (m *MinBattery) Reset() { m.min, m.seen = 0, false }

// Defaults returns a fresh set of the metrics every run reports.
func Defaults() []dynamo.Metric {
	return []dynamo.Metric{
		NewTiltRMS(),
		NewUpright(DefaultUprightAngle),
		NewControlEffort(),
		NewActiveFraction(),
		NewMaxSpeed(),
		NewMinBattery(),
	}
}
