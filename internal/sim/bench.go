package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/fault"
	"github.com/san-kum/segway/internal/physics"
	"github.com/san-kum/segway/internal/vehicle"
)

const radToDeg = 180 / math.Pi

// Bench is the simulated hardware around the plant. The vehicle reads it
// through the collaborator interfaces; the session updates it between ticks.
//
// The accelerometer sees gravity only. Base acceleration is left out.
type Bench struct {
	x     dynamo.State
	rng   *rand.Rand
	noise float64

	riding  bool
	pot     float32
	battery float32

	sensorErr error

	Left, Right *Motor
}

func NewBench(seed int64, noise float64) *Bench {
	return &Bench{
		rng:   rand.New(rand.NewSource(seed)),
		noise: noise,
		Left:  &Motor{name: "left"},
		Right: &Motor{name: "right"},
	}
}

func (b *Bench) Collaborators() vehicle.Collaborators {
	return vehicle.Collaborators{
		FootSwitch: footSwitch{b},
		Steering:   pot{b},
		Battery:    battery{b},
		Sensor:     imu{b},
		Left:       b.Left,
		Right:      b.Right,
	}
}

// InjectSensorFault makes every following sensor read fail with err.
func (b *Bench) InjectSensorFault(err error) { b.sensorErr = err }

func (b *Bench) gauss(sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return b.rng.NormFloat64() * sigma
}

type imu struct{ b *Bench }

func (s imu) AngleRate() (float32, error) {
	if s.b.sensorErr != nil {
		return 0, s.b.sensorErr
	}
	return float32(s.b.x[physics.TiltRate]*radToDeg + s.b.gauss(s.b.noise*100)), nil
}

func (s imu) AccelHorizontal() (float32, error) {
	if s.b.sensorErr != nil {
		return 0, s.b.sensorErr
	}
	return float32(-math.Sin(s.b.x[physics.Tilt]) + s.b.gauss(s.b.noise)), nil
}

func (s imu) AccelVertical() (float32, error) {
	if s.b.sensorErr != nil {
		return 0, s.b.sensorErr
	}
	return float32(-math.Cos(s.b.x[physics.Tilt]) + s.b.gauss(s.b.noise)), nil
}

type footSwitch struct{ b *Bench }

func (f footSwitch) Read() bool { return f.b.riding }

type pot struct{ b *Bench }

func (p pot) ReadVoltage() (float32, error) { return p.b.pot, nil }

type battery struct{ b *Bench }

func (p battery) ReadVoltage() (float32, error) { return p.b.battery, nil }

// Motor holds the last duty the vehicle wrote.
type Motor struct {
	name string
	duty float64
}

func (m *Motor) SetDuty(d float32) error {
	if math.IsNaN(float64(d)) || d > 1 || d < -1 {
		return fault.New("sim "+m.name+" motor", fault.ErrRange, fmt.Errorf("duty %v", d))
	}
	m.duty = float64(d)
	return nil
}

func (m *Motor) Duty() float64 { return m.duty }
