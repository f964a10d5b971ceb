package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// AddScaled returns s + k*d. Missing entries of d count as zero.
func (s State) AddScaled(d State, k float64) State {
	out := make(State, len(s))
	for i := range s {
		out[i] = s[i]
		if i < len(d) {
			out[i] += k * d[i]
		}
	}
	return out
}

func (s State) Sub(other State) State {
	return s.AddScaled(other, -1)
}

type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Constrained plants project a state back into their valid region after each
// step. The flag reports whether the projection changed anything.
type Constrained interface {
	Constrain(x State) (State, bool)
}

type Integrator interface {
	Name() string
	Step(dyn System, x State, u Control, t, dt float64) State
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Sample is what the simulation records once per control tick.
type Sample struct {
	T       float64
	X       State
	U       Control
	Active  bool
	Battery float64
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s Sample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Sample)

func (f ObserverFunc) OnStep(s Sample) { f(s) }

func CheckDims(sys System, x State, u Control) error {
	if len(x) != sys.StateDim() {
		return fmt.Errorf("%w: state has %d entries, want %d", ErrDimensionMismatch, len(x), sys.StateDim())
	}
	if len(u) != sys.ControlDim() {
		return fmt.Errorf("%w: control has %d entries, want %d", ErrDimensionMismatch, len(u), sys.ControlDim())
	}
	return nil
}
