// Package control implements the balance law of a two-wheeled self-balancing
// vehicle.
//
// Two pieces run once per control tick:
//
//   - [Estimator]: complementary filter fusing the gyro rate with the tilt seen
//     by the accelerometer, plus a low-pass on the rate itself.
//   - [Balance]: PD balance torque, speed limiter that leans the set point back
//     when the vehicle runs too fast, and speed dependent steering.
//
// # Usage
//
//	b := control.NewBalance(control.DefaultParams())
//	b.Update(steering, rateRad, accelHor, accelVer)
//	left, right := b.LeftDuty(), b.RightDuty()
//
// All arithmetic is float32 with a fixed step of 1/TickFrequency. Neither type
// is safe for concurrent use; both belong to the tick that drives them.
package control
