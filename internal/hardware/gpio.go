package hardware

import (
	"fmt"
	"math"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/san-kum/segway/internal/fault"
)

// DeadBand is the duty magnitude below which both H-bridge inputs are
// switched off.
const DeadBand = 0.1

// Switch is a digital input with a configurable active level.
type Switch struct {
	pin       gpio.PinIn
	activeLow bool
}

func NewSwitch(pin gpio.PinIn, pull gpio.Pull, activeLow bool) (*Switch, error) {
	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, fault.New("switch "+pin.Name(), fault.ErrConfiguration, err)
	}
	return &Switch{pin: pin, activeLow: activeLow}, nil
}

// Read reports whether the switch is asserted.
func (s *Switch) Read() bool {
	return (s.pin.Read() == gpio.High) != s.activeLow
}

func (s *Switch) String() string { return s.pin.String() }

// ParsePull maps the config spelling of a pull resistor.
func ParsePull(s string) (gpio.Pull, error) {
	switch strings.ToLower(s) {
	case "", "none", "float":
		return gpio.Float, nil
	case "up":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	}
	return gpio.PullNoChange, fault.New("gpio", fault.ErrConfiguration, fmt.Errorf("unknown pull %q", s))
}

// HBridge drives one motor through a forward and a reverse PWM input.
type HBridge struct {
	forward, reverse gpio.PinOut
	frequency        physic.Frequency
	invert           bool
	duty             float32
}

func NewHBridge(forward, reverse gpio.PinOut, frequency physic.Frequency, invert bool) (*HBridge, error) {
	h := &HBridge{forward: forward, reverse: reverse, frequency: frequency, invert: invert}
	if err := h.off(); err != nil {
		return nil, fault.New("hbridge", fault.ErrConfiguration, err)
	}
	return h, nil
}

// SetDuty drives the motor with duty in [-1, 1]. The pin that is switched
// off is always written first.
func (h *HBridge) SetDuty(duty float32) error {
	if math.IsNaN(float64(duty)) || duty > 1 || duty < -1 {
		return fault.New("hbridge", fault.ErrRange, fmt.Errorf("duty %v outside [-1, 1]", duty))
	}
	if h.invert {
		duty = -duty
	}

	var err error
	switch {
	case duty >= DeadBand:
		err = h.drive(h.reverse, h.forward, duty)
	case duty <= -DeadBand:
		err = h.drive(h.forward, h.reverse, -duty)
	default:
		duty = 0
		err = h.off()
	}
	if err != nil {
		return fault.New("hbridge", fault.ErrCommunication, err)
	}
	h.duty = duty
	return nil
}

// Duty returns the last duty applied to the pins, after inversion.
func (h *HBridge) Duty() float32 { return h.duty }

// Halt de-energises both inputs.
func (h *HBridge) Halt() error {
	h.duty = 0
	return h.off()
}

func (h *HBridge) drive(idle, active gpio.PinOut, duty float32) error {
	if err := idle.Out(gpio.Low); err != nil {
		return err
	}
	return active.PWM(gpio.Duty(float64(duty)*float64(gpio.DutyMax)), h.frequency)
}

func (h *HBridge) off() error {
	if err := h.forward.Out(gpio.Low); err != nil {
		return err
	}
	return h.reverse.Out(gpio.Low)
}
