// Package design provides the RBJ-cookbook biquad designers the synthesizer
// needs: a resonant lowpass for per-voice tone shaping and a low shelf for
// the shared bass boost.
//
// Designers return the zero [biquad.Coefficients] when the corner frequency
// is outside (0, Nyquist); callers keep their previous coefficients then.
package design
