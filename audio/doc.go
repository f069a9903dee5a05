// Package audio provides the render clock and output sinks for the
// synthesizer.
//
// A [Context] owns the sample clock. Sinks pull rendered frames from it,
// either as float32 little-endian bytes (oto), as beep stereo frames, or
// from a wall-clock loop when no device is wanted. Every pull renders whole
// blocks through the installed [Renderer] and advances the clock, so
// [Context.CurrentTime] is the audio time of the next block to be rendered.
package audio
