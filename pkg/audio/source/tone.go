// ABOUTME: Test tone generator
// ABOUTME: Generates a sine clip for speakers without a file
package source

import (
	"math"
	"time"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// DefaultToneFrequency is the A4 note
const DefaultToneFrequency = 440.0

// Tone generates a sine wave at 50% volume, duplicated to every channel
func Tone(frequency float64, duration time.Duration, sampleRate, channels int) audio.Clip {
	frames := int(duration.Seconds() * float64(sampleRate))
	samples := make([]float32, frames*channels)

	for i := 0; i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		v := float32(math.Sin(2*math.Pi*frequency*t) * 0.5)
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = v
		}
	}

	return audio.Clip{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}
