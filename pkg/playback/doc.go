// ABOUTME: Listener-side playback package
// ABOUTME: Ring-buffered, jitter-gated engines summed by a real-time mixer
// Package playback turns bursty network chunks into steady audio.
//
// Each incoming stream gets an Engine. Chunks are decoded on the network
// goroutine and handed to the audio thread over a bounded channel; the audio
// thread drains that channel into a ring buffer at the start of every
// Produce call. Produce never blocks and never allocates.
//
// Output is gated: an engine stays silent until it has buffered the jitter
// threshold (100 ms of source audio by default), and drops back to silence
// whenever a block would read past the data it holds.
//
// A Voice wraps an Engine with ramped per-channel gains, and a Mixer sums
// voices into the block handed to the output device:
//
//	mixer := playback.NewMixer(48000, 2)
//	eng, _ := playback.NewEngine(playback.Config{Format: format, OutputSampleRate: 48000, OutputChannels: 2})
//	voice := playback.NewVoice(eng)
//	mixer.Add(voice)
//	out.Open(48000, 2, mixer)
package playback
