// Package physics models the vehicle and its rider for simulation.
//
// [Segway] implements [dynamo.System], [dynamo.Constrained] and
// [dynamo.Configurable]. [Rider] is a scripted human who keeps the body
// upright and leans toward a target speed.
package physics
