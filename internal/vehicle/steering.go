package vehicle

import (
	"context"
	"fmt"
	"time"
)

const (
	debounce    = 50 * time.Millisecond
	buttonPoll  = 5 * time.Millisecond
	defaultUMin = 0.5
	defaultUMax = 2.8
)

// Steering maps the handlebar potentiometer voltage onto [-1, 1].
type Steering struct {
	input AnalogInput
	min   float32
	max   float32
	last  float32
}

// NewSteering returns a reader for input calibrated to [minV, maxV]. A zero
// range falls back to the factory calibration.
func NewSteering(input AnalogInput, minV, maxV float32) *Steering {
	if minV == 0 && maxV == 0 {
		minV, maxV = defaultUMin, defaultUMax
	}
	return &Steering{input: input, min: minV, max: maxV}
}

// Read samples the potentiometer and returns the steering command.
func (s *Steering) Read() (float32, error) {
	u, err := s.input.ReadVoltage()
	if err != nil {
		return 0, err
	}
	s.last = u
	return s.Map(u), nil
}

// Map converts a voltage into a command, clamped to [-1, 1].
func (s *Steering) Map(u float32) float32 {
	center := (s.max + s.min) / 2
	span := center - s.min
	if span == 0 {
		return 0
	}
	return clampUnit((u - center) / span)
}

// Range returns the calibrated voltages.
func (s *Steering) Range() (float32, float32) { return s.min, s.max }

// Voltage returns the last voltage read.
func (s *Steering) Voltage() float32 { return s.last }

// Calibrate records the potentiometer voltage when minButton and maxButton
// are pressed and released, in any order. It returns when both were seen or
// ctx is done.
func (s *Steering) Calibrate(ctx context.Context, minButton, maxButton DigitalInput) error {
	var haveMin, haveMax bool
	var minV, maxV float32

	ticker := time.NewTicker(buttonPoll)
	defer ticker.Stop()

	for !haveMin || !haveMax {
		select {
		case <-ctx.Done():
			return fmt.Errorf("steering calibration: %w", ctx.Err())
		case <-ticker.C:
		}

		if minButton.Read() {
			u, err := s.sampleOnRelease(ctx, minButton)
			if err != nil {
				return err
			}
			minV, haveMin = u, true
		}
		if maxButton.Read() {
			u, err := s.sampleOnRelease(ctx, maxButton)
			if err != nil {
				return err
			}
			maxV, haveMax = u, true
		}
	}

	if minV == maxV {
		return fmt.Errorf("steering calibration: empty range at %.3f V", minV)
	}
	s.min, s.max = minV, maxV
	return nil
}

func (s *Steering) sampleOnRelease(ctx context.Context, button DigitalInput) (float32, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("steering calibration: %w", ctx.Err())
	case <-time.After(debounce):
	}
	for button.Read() {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("steering calibration: %w", ctx.Err())
		case <-time.After(buttonPoll):
		}
	}
	u, err := s.input.ReadVoltage()
	if err != nil {
		return 0, fmt.Errorf("steering calibration: %w", err)
	}
	return u, nil
}

func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
