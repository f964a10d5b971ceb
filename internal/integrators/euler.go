package integrators

import "github.com/san-kum/segway/internal/dynamo"

// Euler is the explicit first order scheme. It is only useful as a baseline
// for the plant at the control tick rate.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	return x.AddScaled(dyn.Derive(x, u, t), dt)
}
