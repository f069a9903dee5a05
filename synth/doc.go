// Package synth renders a "deep note": a dense chord of detuned sawtooth
// voices that wander around a random cluster of base frequencies and then
// glide onto a stacked-octave set of landing frequencies.
//
// A [Chord] owns its voices, the shared master gain envelope, a low-shelf
// tone filter and a slowly drifting output panner. Each voice runs two
// periodic drift tasks (frequency and pan) at 60 Hz once started. Parameter
// changes are written to automation timelines at the current audio-clock
// time and picked up by the renderer at the next block.
//
// Typical use:
//
//	chord, err := synth.New(31*time.Second, synth.WithSinkKind(audio.KindOto))
//	if err != nil {
//		return err
//	}
//	return chord.Run(ctx)
package synth
