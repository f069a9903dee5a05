// Package biquad provides the second-order IIR section used for per-voice
// tone shaping and the shared low-shelf.
//
// A [Section] implements Direct Form II Transposed processing for one set of
// [Coefficients]. Coefficients may be swapped while the section runs (the
// voice filters track the oscillator frequency); the delay line is kept so
// retuning does not reset the signal path.
//
// Coefficient design lives in dsp/filter/design.
package biquad
