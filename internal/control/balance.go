package control

import (
	"fmt"

	"github.com/san-kum/segway/internal/fault"
)

// Limiter and steering constants. They were found on the vehicle and are not
// part of the tunable parameter set.
const (
	overspeedStep    = 0.05
	overspeedCap     = 0.2
	integralCap      = 0.4
	integralDecay    = 0.04
	biasFromOverrun  = 0.4
	biasFromIntegral = 0.7
	steeringGain     = 0.07
	steeringSoften   = 0.3
	speedGain        = 1.2
)

// Params is the fixed tuning of a Balance.
type Params struct {
	TickFrequency float32
	MaxSpeed      float32
	DutyCeiling   float32
	FilterWeight  float32
	LowPassWeight float32
	Kp            float32
	Kd            float32
}

// DefaultParams returns the tuning the vehicle ships with.
func DefaultParams() Params {
	return Params{
		TickFrequency: 100,
		MaxSpeed:      0.7,
		DutyCeiling:   0.95,
		FilterWeight:  0.98,
		LowPassWeight: 0.5,
		Kp:            5.0,
		Kd:            0.2,
	}
}

// Validate reports parameters the balance law cannot run with.
func (p Params) Validate() error {
	switch {
	case p.TickFrequency <= 0:
		return fault.New("control", fault.ErrConfiguration, fmt.Errorf("tick frequency %v must be positive", p.TickFrequency))
	case p.DutyCeiling <= 0 || p.DutyCeiling > 1:
		return fault.New("control", fault.ErrConfiguration, fmt.Errorf("duty ceiling %v outside (0, 1]", p.DutyCeiling))
	case p.FilterWeight < 0 || p.FilterWeight > 1:
		return fault.New("control", fault.ErrConfiguration, fmt.Errorf("filter weight %v outside [0, 1]", p.FilterWeight))
	case p.LowPassWeight < 0 || p.LowPassWeight > 1:
		return fault.New("control", fault.ErrConfiguration, fmt.Errorf("low-pass weight %v outside [0, 1]", p.LowPassWeight))
	case p.MaxSpeed < 0:
		return fault.New("control", fault.ErrConfiguration, fmt.Errorf("max speed %v must not be negative", p.MaxSpeed))
	}
	return nil
}

// Tunable parameter names, as used in config files and by the tuner.
const (
	ParamKp            = "kp"
	ParamKd            = "kd"
	ParamMaxSpeed      = "max_speed"
	ParamDutyCeiling   = "duty_ceiling"
	ParamFilterWeight  = "filter_weight"
	ParamLowPassWeight = "low_pass_weight"
)

// SetParam adjusts one parameter by name. The result still needs Validate.
func (p *Params) SetParam(name string, value float64) error {
	v := float32(value)
	switch name {
	case ParamKp:
		p.Kp = v
	case ParamKd:
		p.Kd = v
	case ParamMaxSpeed:
		p.MaxSpeed = v
	case ParamDutyCeiling:
		p.DutyCeiling = v
	case ParamFilterWeight:
		p.FilterWeight = v
	case ParamLowPassWeight:
		p.LowPassWeight = v
	default:
		return fault.New("control", fault.ErrConfiguration, fmt.Errorf("unknown parameter %q", name))
	}
	return nil
}

// Snapshot exposes the internals of a Balance for telemetry and tests.
type Snapshot struct {
	Orientation
	Torque            float32
	DriveSpeed        float32
	StableAngleBias   float32
	OverspeedIntegral float32
	RawLeft           float32
	RawRight          float32
}

// Balance turns orientation samples and a steering command into wheel duties.
type Balance struct {
	params    Params
	estimator Estimator

	orientation Orientation
	torque      float32
	driveSpeed  float32
	bias        float32
	integral    float32
	left        float32
	right       float32
}

func NewBalance(p Params) *Balance {
	return &Balance{
		params: p,
		estimator: Estimator{
			TickFrequency: p.TickFrequency,
			FilterWeight:  p.FilterWeight,
			LowPassWeight: p.LowPassWeight,
		},
	}
}

// Update runs one tick. steering is in [-1, 1], rate is the wheel axis rate in
// rad/s and the accelerations are in g.
func (b *Balance) Update(steering, rate, accelHorizontal, accelVertical float32) {
	hz := b.params.TickFrequency

	b.orientation = b.estimator.Update(b.orientation, rate, accelHorizontal, accelVertical)
	b.torque = b.params.Kp*(b.orientation.Angle-b.bias) + b.params.Kd*b.orientation.AngleRate

	overspeed := b.driveSpeed - b.params.MaxSpeed
	if overspeed > 0 {
		overspeed = min(overspeedCap, overspeed+overspeedStep)
		b.integral = min(integralCap, b.integral+overspeed/hz)
	} else {
		overspeed = 0
		b.integral = max(0, b.integral-integralDecay/hz)
	}
	b.bias = biasFromOverrun*overspeed + biasFromIntegral*b.integral

	// Steering authority shrinks with the speed of the previous tick.
	steer := steering * steeringGain / (steeringSoften + abs(b.driveSpeed))

	b.driveSpeed += speedGain * b.torque / hz

	// A larger left duty turns the vehicle right.
	b.left = b.torque + b.driveSpeed + steer
	b.right = b.torque + b.driveSpeed - steer
}

// LeftDuty returns the left wheel command limited to the duty ceiling.
func (b *Balance) LeftDuty() float32 { return clamp(b.left, b.params.DutyCeiling) }

// RightDuty returns the right wheel command limited to the duty ceiling.
func (b *Balance) RightDuty() float32 { return clamp(b.right, b.params.DutyCeiling) }

// ResetSpeeds zeroes the drive speed and both wheel commands. The limiter
// state and the orientation estimate are kept.
func (b *Balance) ResetSpeeds() {
	b.driveSpeed = 0
	b.left = 0
	b.right = 0
}

func (b *Balance) MaxSpeed() float32 { return b.params.MaxSpeed }

func (b *Balance) SetMaxSpeed(speed float32) { b.params.MaxSpeed = speed }

func (b *Balance) Orientation() Orientation { return b.orientation }

func (b *Balance) Params() Params { return b.params }

func (b *Balance) Snapshot() Snapshot {
	return Snapshot{
		Orientation:       b.orientation,
		Torque:            b.torque,
		DriveSpeed:        b.driveSpeed,
		StableAngleBias:   b.bias,
		OverspeedIntegral: b.integral,
		RawLeft:           b.left,
		RawRight:          b.right,
	}
}

// GetParams returns the gains in the form the tuning tools print.
func (b *Balance) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":       float64(b.params.Kp),
		"Kd":       float64(b.params.Kd),
		"MaxSpeed": float64(b.params.MaxSpeed),
	}
}

func clamp(v, limit float32) float32 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
