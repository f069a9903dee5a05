// Package envelope provides the closed-form curves that shape the chord over
// its runtime.
//
// Both curves take x, the elapsed fraction of the runtime, and are built from
// logistic steps:
//   - Gain: the master volume envelope (swell, plateau, fade to silence).
//   - Sweep: the 0→1 glide progress that moves a voice from its base to its
//     landing frequency. Its first step has a per-voice steepness so voices
//     land at slightly different moments.
//
// Build with -tags fastmath to evaluate the exponentials with algo-approx.
package envelope
