// Package analysis looks at recorded runs after the fact:
//
//   - [Spectrum] and [DominantFrequency]: where a trace oscillates
//   - [Summarize]: peak, RMS and settling time of a trace
//   - [PhasePortrait]: tilt against tilt rate as ASCII art
//
// An oscillation in the tilt at a few hertz usually means Kd is too low; a
// slow wander that never settles points at Kp.
package analysis
