// ABOUTME: Audio type definitions
// ABOUTME: Defines sample formats, stream formats, clips and sample conversions
package audio

import (
	"fmt"
	"time"
)

// SampleFormat is the wire encoding of individual samples
type SampleFormat string

const (
	// S16 is signed 16-bit little-endian PCM
	S16 SampleFormat = "s16"
	// F32 is IEEE-754 32-bit little-endian float PCM
	F32 SampleFormat = "f32"
)

// Stream parameter bounds accepted at the registry boundary
const (
	MinSampleRate = 8000
	MaxSampleRate = 48000
	MinChannels   = 1
	MaxChannels   = 2
)

// Valid reports whether f is one of the supported encodings
func (f SampleFormat) Valid() bool {
	return f == S16 || f == F32
}

// BytesPerSample returns the encoded size of one sample
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case S16:
		return 2
	case F32:
		return 4
	default:
		return 0
	}
}

// Format describes an audio stream
type Format struct {
	SampleRate int          `json:"sample_rate"`
	Channels   int          `json:"channel_count"`
	Encoding   SampleFormat `json:"format"`
}

// Validate checks the format against the stream parameter bounds
func (f Format) Validate() error {
	if !f.Encoding.Valid() {
		return fmt.Errorf("unsupported sample format: %q (supported: s16, f32)", f.Encoding)
	}
	if f.Channels < MinChannels || f.Channels > MaxChannels {
		return fmt.Errorf("unsupported channel count: %d (supported: 1, 2)", f.Channels)
	}
	if f.SampleRate < MinSampleRate || f.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate %d outside [%d, %d]", f.SampleRate, MinSampleRate, MaxSampleRate)
	}
	return nil
}

// FramesFor returns the number of frames covering d at this sample rate
func (f Format) FramesFor(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// FrameBytes returns the encoded size of one interleaved frame
func (f Format) FrameBytes() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

// Clip is a block of interleaved, normalized float32 samples
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of whole frames in the clip
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length of the clip
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(c.Frames()) * int64(time.Second) / int64(c.SampleRate))
}

// Int16ToFloat converts a signed 16-bit sample to the normalized range
func Int16ToFloat(sample int16) float32 {
	return float32(sample) / 32768.0
}

// FloatToInt16 converts a normalized sample to signed 16-bit with clipping
func FloatToInt16(sample float32) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	v := int32(sample * 32768.0)
	if v > 32767 {
		v = 32767
	}
	return int16(v)
}
