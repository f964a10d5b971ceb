// Package dynamo holds the primitives shared by the vehicle simulation:
//
//   - [State] and [Control]: plain vectors
//   - [System]: a plant dX/dt = f(X, u, t)
//   - [Integrator]: one fixed step of a numerical scheme
//   - [Metric] and [Observer]: consumers of per-tick [Sample]s
//
// Plants that can leave their valid region (a vehicle lying on the ground)
// implement [Constrained].
package dynamo
