package dynamo

import (
	"errors"
	"math"
	"testing"
)

type plant struct{}

func (plant) Derive(x State, u Control, t float64) State {
	return State{x[1], u[0]}
}

func (plant) StateDim() int   { return 2 }
func (plant) ControlDim() int { return 1 }

func TestStateIsValid(t *testing.T) {
	tests := []struct {
		name  string
		s     State
		valid bool
	}{
		{"finite", State{1, -2, 0}, true},
		{"nan", State{1, math.NaN()}, false},
		{"inf", State{math.Inf(-1)}, false},
		{"empty", State{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.IsValid(); got != tt.valid {
				t.Errorf("expected %v, got %v", tt.valid, got)
			}
		})
	}
}

func TestStateAddScaled(t *testing.T) {
	s := State{1, 2, 3}
	got := s.AddScaled(State{1, 1}, 2)
	want := State{3, 4, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if s[0] != 1 {
		t.Error("AddScaled must not modify the receiver")
	}
	if d := (State{3, 4}).Sub(State{3, 0}).Norm(); d != 4 {
		t.Errorf("expected distance 4, got %v", d)
	}
}

func TestCheckDims(t *testing.T) {
	if err := CheckDims(plant{}, State{0, 0}, Control{0}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckDims(plant{}, State{0}, Control{0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
	if err := CheckDims(plant{}, State{0, 0}, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestSimulationErrorUnwrap(t *testing.T) {
	err := &SimulationError{Step: 3, Time: 0.03, Wrapped: ErrInvalidState}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("expected wrapped sentinel")
	}
	if err.Error() != "tick 3 (t=0.030): dynamo: invalid state (NaN or Inf detected)" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
