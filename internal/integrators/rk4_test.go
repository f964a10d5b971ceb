package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/segway/internal/dynamo"
)

type oscillator struct{}

func (oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (oscillator) StateDim() int   { return 2 }
func (oscillator) ControlDim() int { return 0 }

// wall stops the first coordinate at 1.
type wall struct{ oscillator }

func (wall) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{1, 0}
}

func (wall) Constrain(x dynamo.State) (dynamo.State, bool) {
	if x[0] <= 1 {
		return x, false
	}
	x[0] = 1
	return x, true
}

func run(integ dynamo.Integrator, steps int, dt float64) dynamo.State {
	x := dynamo.State{1, 0}
	for i := 0; i < steps; i++ {
		x = integ.Step(oscillator{}, x, nil, float64(i)*dt, dt)
	}
	return x
}

func TestRK4Accuracy(t *testing.T) {
	x := run(NewRK4(), 100, 0.01)

	if math.Abs(x[0]-math.Cos(1)) > 1e-8 {
		t.Errorf("position error too large: got %.9f, expected %.9f", x[0], math.Cos(1))
	}
	if math.Abs(x[1]+math.Sin(1)) > 1e-8 {
		t.Errorf("velocity error too large: got %.9f, expected %.9f", x[1], -math.Sin(1))
	}
}

func TestEulerFirstOrder(t *testing.T) {
	coarse := math.Abs(run(NewEuler(), 100, 0.01)[0] - math.Cos(1))
	fine := math.Abs(run(NewEuler(), 1000, 0.001)[0] - math.Cos(1))

	if coarse > 1e-2 {
		t.Errorf("euler error too large: %v", coarse)
	}
	if ratio := coarse / fine; ratio < 8 || ratio > 12 {
		t.Errorf("expected error to shrink about tenfold, got ratio %v", ratio)
	}
}

func TestRK4ConstantDerivative(t *testing.T) {
	r := NewRK4()
	r.Step(oscillator{}, dynamo.State{1, 0}, nil, 0, 0.01)
	x := r.Step(wall{}, dynamo.State{0, 0}, nil, 0, 0.5)
	if math.Abs(x[0]-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %v", x[0])
	}
}

func TestAdvance(t *testing.T) {
	x := Advance(NewRK4(), oscillator{}, dynamo.State{1, 0}, nil, 0, 1, 100)
	if math.Abs(x[0]-math.Cos(1)) > 1e-8 {
		t.Errorf("expected cos(1), got %v", x[0])
	}

	x = Advance(NewEuler(), wall{}, dynamo.State{0, 0}, nil, 0, 3, 3)
	if x[0] != 1 {
		t.Errorf("expected constraint to hold x at 1, got %v", x[0])
	}
}
