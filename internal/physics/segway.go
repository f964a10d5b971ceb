package physics

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/segway/internal/dynamo"
)

// State layout of the Segway plant.
const (
	Pos = iota
	Vel
	Tilt
	TiltRate
	Yaw
	YawRate
)

// Control layout of the Segway plant.
const (
	LeftDuty = iota
	RightDuty
	Lean
)

// Segway is a two-wheeled inverted pendulum in cart-pole form. The base
// carries the wheels and motors, the pendulum is the column plus the rider.
// Tilt is positive when leaning forward; yaw is positive turning right.
//
// Each wheel pushes with StallForce*(duty - v/NoLoadSpeed) minus viscous drag,
// and only drag inside the dead band. The rider's lean shifts the pendulum's
// center of mass relative to the column.
type Segway struct {
	BaseMass    float64
	RiderMass   float64
	Height      float64 // pivot to center of mass
	Gravity     float64
	StallForce  float64
	NoLoadSpeed float64
	Drag        float64
	DeadBand    float64
	FallAngle   float64
	YawGain     float64
	YawDamping  float64
}

func NewSegway() *Segway {
	return &Segway{
		BaseMass:    25,
		RiderMass:   75,
		Height:      0.9,
		Gravity:     9.81,
		StallForce:  3000,
		NoLoadSpeed: 4,
		Drag:        5,
		DeadBand:    0.1,
		FallAngle:   1.2,
		YawGain:     6,
		YawDamping:  3,
	}
}

func (s *Segway) StateDim() int   { return 6 }
func (s *Segway) ControlDim() int { return 3 }

// WheelForce is the traction of one wheel at duty d and ground speed v.
func (s *Segway) WheelForce(d, v float64) float64 {
	if math.Abs(d) < s.DeadBand {
		return -s.Drag * v
	}
	return s.StallForce*(d-v/s.NoLoadSpeed) - s.Drag*v
}

func (s *Segway) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	v, theta, omega, yawRate := x[Vel], x[Tilt], x[TiltRate], x[YawRate]

	var left, right, lean float64
	if len(u) > RightDuty {
		left, right = u[LeftDuty], u[RightDuty]
	}
	if len(u) > Lean {
		lean = u[Lean]
	}

	fl, fr := s.WheelForce(left, v), s.WheelForce(right, v)
	force := (fl + fr) / 2

	mc, mp, l, g := s.BaseMass, s.RiderMass, s.Height, s.Gravity
	total := mc + mp
	sint, cost := math.Sin(theta), math.Cos(theta)

	temp := (force + mp*l*omega*omega*sint) / total
	alpha := (g*math.Sin(theta+lean) - cost*temp) / (l * (4.0/3.0 - mp*cost*cost/total))
	accel := temp - mp*l*alpha*cost/total

	yawAccel := s.YawGain*(fl-fr)/s.StallForce - s.YawDamping*yawRate

	return dynamo.State{v, accel, omega, alpha, yawRate, yawAccel}
}

// Constrain lays the vehicle on the ground once the tilt reaches FallAngle.
func (s *Segway) Constrain(x dynamo.State) (dynamo.State, bool) {
	if math.Abs(x[Tilt]) < s.FallAngle {
		return x, false
	}
	x[Tilt] = math.Copysign(s.FallAngle, x[Tilt])
	x[TiltRate] = 0
	return x, true
}

func (s *Segway) Fallen(x dynamo.State) bool {
	return math.Abs(x[Tilt]) >= s.FallAngle
}

// InitialState returns the plant at rest with the given tilt.
func (s *Segway) InitialState(tilt float64) dynamo.State {
	x := make(dynamo.State, s.StateDim())
	x[Tilt] = tilt
	return x
}

func (s *Segway) params() map[string]*float64 {
	return map[string]*float64{
		"base_mass":     &s.BaseMass,
		"rider_mass":    &s.RiderMass,
		"height":        &s.Height,
		"gravity":       &s.Gravity,
		"stall_force":   &s.StallForce,
		"no_load_speed": &s.NoLoadSpeed,
		"drag":          &s.Drag,
		"dead_band":     &s.DeadBand,
		"fall_angle":    &s.FallAngle,
		"yaw_gain":      &s.YawGain,
		"yaw_damping":   &s.YawDamping,
	}
}

func (s *Segway) GetParams() map[string]float64 {
	out := make(map[string]float64)
	for name, p := range s.params() {
		out[name] = *p
	}
	return out
}

// ParamNames lists the settable parameters in sorted order.
func (s *Segway) ParamNames() []string {
	names := make([]string, 0, 11)
	for name := range s.params() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Segway) SetParam(name string, value float64) error {
	p, ok := s.params()[name]
	if !ok {
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownParameter, name)
	}
	switch name {
	case "dead_band", "drag", "yaw_damping", "yaw_gain":
		if value < 0 || math.IsNaN(value) {
			return fmt.Errorf("%w: %s=%v must not be negative", dynamo.ErrParameterBounds, name, value)
		}
	case "fall_angle":
		if value <= 0 || value > math.Pi/2 {
			return fmt.Errorf("%w: %s=%v outside (0, pi/2]", dynamo.ErrParameterBounds, name, value)
		}
	default:
		if !(value > 0) {
			return fmt.Errorf("%w: %s=%v must be positive", dynamo.ErrParameterBounds, name, value)
		}
	}
	*p = value
	return nil
}
