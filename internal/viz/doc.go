// Package viz draws a running turbine in the terminal.
//
// [Model] is a Bubble Tea program that steps a [runner.Runner] a few host
// steps per frame and shows:
//
//   - a braille rotor view: blades at the current azimuth, tower deflection
//     exaggerated
//   - rolling charts of rotor speed and collective pitch
//   - the latest channel values, controller phase and call count
//
// # Key Bindings
//
//	Space - Pause/Resume
//	+/-   - Faster/slower (steps per frame)
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit (finalizes the controller)
package viz
