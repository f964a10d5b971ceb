// Package vehicle runs the per-tick cycle of a self-balancing vehicle: it
// decides between Standby and Active from the foot switch, feeds the balance
// controller while Active, drives both motors and guards the battery.
//
// A Vehicle is owned by the goroutine that calls Tick. It is not safe for
// concurrent use.
package vehicle

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/segway/internal/control"
	"github.com/san-kum/segway/internal/fault"
)

// ErrHalted is returned by Tick once a fatal fault was reported.
var ErrHalted = errors.New("vehicle: halted after fatal fault")

const degToRad = math.Pi / 180

// Telemetry sample names.
const (
	SampleAngle     = "angle"
	SampleSteering  = "steering"
	SampleLeftDuty  = "duty_left"
	SampleRightDuty = "duty_right"
	SampleBattery   = "battery"
)

// State is the drive state of the vehicle.
type State int

const (
	Standby State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Standby:
		return "standby"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config is fixed for the lifetime of a Vehicle.
type Config struct {
	Control control.Params

	// BatteryLow is the sense voltage under which a tick counts as low.
	BatteryLow float32
	// CutoffTicks consecutive low ticks force Standby.
	CutoffTicks uint32

	SteeringMin float32
	SteeringMax float32
}

func DefaultConfig() Config {
	return Config{
		Control:     control.DefaultParams(),
		BatteryLow:  2.1,
		CutoffTicks: 50,
		SteeringMin: defaultUMin,
		SteeringMax: defaultUMax,
	}
}

func (c Config) Validate() error {
	if err := c.Control.Validate(); err != nil {
		return err
	}
	if c.CutoffTicks == 0 {
		return fault.New("vehicle", fault.ErrConfiguration, errors.New("battery cutoff ticks must be positive"))
	}
	if c.BatteryLow < 0 {
		return fault.New("vehicle", fault.ErrConfiguration, fmt.Errorf("battery threshold %v must not be negative", c.BatteryLow))
	}
	return nil
}

// Vehicle holds the controller state and the collaborator handles.
type Vehicle struct {
	cfg      Config
	io       Collaborators
	ctrl     *control.Balance
	steering *Steering
	watchdog BatteryWatchdog

	state        State
	ticks        uint64
	transitioned bool
	halted       bool

	left, right float32
	steer       float32
	battery     float32
}

// New checks the configuration and collaborators and returns a Vehicle in
// Standby. Call Start before the first Tick.
func New(cfg Config, io Collaborators) (*Vehicle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	missing := ""
	switch {
	case io.FootSwitch == nil:
		missing = "foot switch"
	case io.Steering == nil:
		missing = "steering input"
	case io.Battery == nil:
		missing = "battery input"
	case io.Sensor == nil:
		missing = "orientation sensor"
	case io.Left == nil:
		missing = "left motor"
	case io.Right == nil:
		missing = "right motor"
	}
	if missing != "" {
		return nil, fault.New("vehicle", fault.ErrConfiguration, fmt.Errorf("missing %s", missing))
	}
	if io.Telemetry == nil {
		io.Telemetry = discard{}
	}
	if io.Hook == nil {
		io.Hook = fault.NewCutoff(nil, nil, io.Left, io.Right)
	}

	return &Vehicle{
		cfg:      cfg,
		io:       io,
		ctrl:     control.NewBalance(cfg.Control),
		steering: NewSteering(io.Steering, cfg.SteeringMin, cfg.SteeringMax),
		watchdog: BatteryWatchdog{Threshold: cfg.BatteryLow, Limit: cfg.CutoffTicks},
	}, nil
}

// Start de-energises both motors.
func (v *Vehicle) Start() error {
	if v.halted {
		return ErrHalted
	}
	if err := v.stopMotors(); err != nil {
		return v.fail(err)
	}
	return nil
}

// Tick runs one control cycle: the drive pass followed by the battery pass,
// both on the same battery reading. Any collaborator failure is reported to
// the fault hook and halts the vehicle; later calls return ErrHalted without
// touching the hardware.
func (v *Vehicle) Tick() error {
	if v.halted {
		return ErrHalted
	}
	v.ticks++
	v.transitioned = false

	battery, err := v.io.Battery.ReadVoltage()
	if err != nil {
		return v.fail(fmt.Errorf("read battery: %w", err))
	}
	v.battery = battery

	if err := v.drive(battery); err != nil {
		return v.fail(err)
	}
	if err := v.guardBattery(battery); err != nil {
		return v.fail(err)
	}
	return nil
}

func (v *Vehicle) drive(battery float32) error {
	pressed := v.io.FootSwitch.Read()

	if v.state == Standby {
		// A reading that completes the cutoff keeps the vehicle down.
		if pressed && !v.watchdog.Trips(battery) {
			v.setState(Active)
		}
		return nil
	}

	if !pressed {
		return v.enterStandby()
	}

	steering, err := v.steering.Read()
	if err != nil {
		return fmt.Errorf("read steering: %w", err)
	}
	rate, err := v.io.Sensor.AngleRate()
	if err != nil {
		return fmt.Errorf("read angle rate: %w", err)
	}
	hor, err := v.io.Sensor.AccelHorizontal()
	if err != nil {
		return fmt.Errorf("read horizontal acceleration: %w", err)
	}
	ver, err := v.io.Sensor.AccelVertical()
	if err != nil {
		return fmt.Errorf("read vertical acceleration: %w", err)
	}

	v.ctrl.Update(steering, rate*degToRad, hor, ver)
	if err := v.setDuties(v.ctrl.LeftDuty(), v.ctrl.RightDuty()); err != nil {
		return err
	}
	v.steer = steering

	t := v.io.Telemetry
	t.Publish(SampleAngle, v.ctrl.Orientation().Angle)
	t.Publish(SampleSteering, steering)
	t.Publish(SampleLeftDuty, v.left)
	t.Publish(SampleRightDuty, v.right)
	t.Publish(SampleBattery, battery)
	return nil
}

func (v *Vehicle) guardBattery(voltage float32) error {
	if !v.watchdog.Observe(voltage) {
		return nil
	}
	if v.transitioned {
		// Only a release can have happened, and it already stopped the motors.
		return nil
	}
	return v.enterStandby()
}

// enterStandby resets the drive speeds and stops both motors. It is a no-op
// transition when the vehicle already is in Standby.
func (v *Vehicle) enterStandby() error {
	v.ctrl.ResetSpeeds()
	if err := v.stopMotors(); err != nil {
		return err
	}
	if v.state != Standby {
		v.setState(Standby)
	}
	return nil
}

func (v *Vehicle) setState(s State) {
	v.state = s
	v.transitioned = true
}

func (v *Vehicle) stopMotors() error {
	return v.setDuties(0, 0)
}

func (v *Vehicle) setDuties(left, right float32) error {
	if err := v.io.Left.SetDuty(left); err != nil {
		return fmt.Errorf("set left duty: %w", err)
	}
	v.left = left
	if err := v.io.Right.SetDuty(right); err != nil {
		return fmt.Errorf("set right duty: %w", err)
	}
	v.right = right
	return nil
}

func (v *Vehicle) fail(err error) error {
	v.halted = true
	v.io.Hook.Fatal(err)
	v.left, v.right = 0, 0
	return err
}

func (v *Vehicle) State() State { return v.state }

// Ticks returns the number of ticks run so far.
func (v *Vehicle) Ticks() uint64 { return v.ticks }

func (v *Vehicle) Halted() bool { return v.halted }

func (v *Vehicle) Watchdog() BatteryWatchdog { return v.watchdog }

// Controller exposes the balance controller for inspection.
func (v *Vehicle) Controller() *control.Balance { return v.ctrl }

func (v *Vehicle) Steering() *Steering { return v.steering }

// Duties returns the last duties handed to the motors.
func (v *Vehicle) Duties() (float32, float32) { return v.left, v.right }

// SteeringValue returns the last steering command used.
func (v *Vehicle) SteeringValue() float32 { return v.steer }

// BatteryVoltage returns the last battery reading.
func (v *Vehicle) BatteryVoltage() float32 { return v.battery }
