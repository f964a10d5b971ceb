package vehicle

import "github.com/san-kum/segway/internal/fault"

// AnalogInput reads a voltage, e.g. the steering potentiometer or the battery
// sense divider.
type AnalogInput interface {
	ReadVoltage() (float32, error)
}

// OrientationSensor reports the inertial readings about the wheel axis.
type OrientationSensor interface {
	AngleRate() (float32, error)       // deg/s
	AccelHorizontal() (float32, error) // g
	AccelVertical() (float32, error)   // g
}

// Motor accepts a signed duty in [-1, 1]. A duty of 0 de-energises the motor.
type Motor interface {
	SetDuty(duty float32) error
}

// DigitalInput reports whether its signal is asserted. Active level handling
// belongs to the implementation.
type DigitalInput interface {
	Read() bool
}

// Telemetry takes named samples. Publish must not block.
type Telemetry interface {
	Publish(name string, value float32)
}

// Collaborators is everything a Vehicle talks to.
type Collaborators struct {
	FootSwitch DigitalInput
	Steering   AnalogInput
	Battery    AnalogInput
	Sensor     OrientationSensor
	Left       Motor
	Right      Motor

	// Telemetry is optional.
	Telemetry Telemetry

	// Hook receives fatal faults. When nil a fault.Cutoff over both motors is
	// installed.
	Hook fault.Hook
}

type discard struct{}

func (discard) Publish(string, float32) {}
