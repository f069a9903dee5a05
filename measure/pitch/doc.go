// Package pitch estimates the strongest partials in a block of rendered
// audio.
//
// It is used to verify that a rendered chord has converged onto its landing
// frequencies and backs the `deepnote analyze` command. The block is windowed
// (periodic Hann), transformed with an algo-fft plan and peak-picked on the
// power spectrum; peak frequencies are refined by parabolic interpolation of
// the log power around each local maximum.
package pitch
