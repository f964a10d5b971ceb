package integrators

import "github.com/san-kum/segway/internal/dynamo"

// Advance moves x forward by dt in n equal sub-steps with u held constant.
// Constrained plants are projected after every sub-step.
func Advance(integ dynamo.Integrator, dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64, n int) dynamo.State {
	if n < 1 {
		n = 1
	}
	h := dt / float64(n)
	c, constrained := dyn.(dynamo.Constrained)
	for i := 0; i < n; i++ {
		x = integ.Step(dyn, x, u, t+float64(i)*h, h)
		if constrained {
			x, _ = c.Constrain(x)
		}
	}
	return x
}
