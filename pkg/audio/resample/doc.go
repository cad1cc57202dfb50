// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts clips between sample rates and channel layouts
// Package resample provides sample rate and channel layout conversion for
// float32 audio.
//
// Uses linear interpolation for converting between sample rates. It is used
// on the sending side to bring decoded clips to the stream format before
// chunking; the real-time playback path does its own index mapping.
//
// Example:
//
//	r := resample.New(44100, 24000, 2)
//	n := r.Resample(inputSamples, outputSamples)
//
//	clip = resample.Convert(clip, 24000, 1)
package resample
