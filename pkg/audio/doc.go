// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines sample formats, stream Format and the stream parameter bounds
// Package audio provides the fundamental audio types shared by the sender,
// the registry and the playback engine.
//
// This package defines:
//   - SampleFormat: wire encoding of samples ("s16" or "f32")
//   - Format: sample rate, channel count and sample format of a stream
//   - Clip: a block of interleaved float32 samples with its rate/channels
//
// All in-process sample data is normalized float32 in [-1, 1]. Conversion to
// and from the wire encodings lives in the encode and decode subpackages.
//
// Example:
//
//	format := audio.Format{
//	    SampleRate: 24000,
//	    Channels:   1,
//	    Encoding:   audio.S16,
//	}
//	if err := format.Validate(); err != nil {
//	    // reject
//	}
//	chunkFrames := format.FramesFor(50 * time.Millisecond)
package audio
