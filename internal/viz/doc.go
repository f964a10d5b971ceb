// Package viz draws the simulated vehicle in a terminal.
//
//   - [Model]: a Bubble Tea view of one ride, scripted or keyboard driven
//   - [Renderer]: a plain frame printer usable as a simulation observer
//   - [Canvas]: a braille dot raster
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Restart the ride
//	M     - Step on or off the foot switch
//	←/→   - Steer, C centres
//	↑/↓   - Lean for more or less speed
//	S     - Hand control back to the script
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
