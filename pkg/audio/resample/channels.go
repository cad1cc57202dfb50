// ABOUTME: Channel layout conversion helpers
// ABOUTME: Mono/stereo mixing and whole-clip conversion to a stream format
package resample

import "github.com/Resonate-Protocol/proxaudio/pkg/audio"

// Downmix averages every frame of an interleaved buffer into mono
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Upmix duplicates a mono buffer into every output channel
func Upmix(mono []float32, channels int) []float32 {
	out := make([]float32, len(mono)*channels)
	for i, s := range mono {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = s
		}
	}
	return out
}

// Convert returns clip resampled to sampleRate with channels output channels.
// Layouts other than mono and stereo are first mixed down to mono.
func Convert(clip audio.Clip, sampleRate, channels int) audio.Clip {
	samples := clip.Samples
	srcChannels := clip.Channels

	// Resample first on the smaller layout
	if srcChannels != channels {
		if channels == 1 || srcChannels > 2 {
			samples = Downmix(samples, srcChannels)
			srcChannels = 1
		}
	}

	if clip.SampleRate != sampleRate && len(samples) > 0 {
		r := New(clip.SampleRate, sampleRate, srcChannels)
		out := make([]float32, r.OutputSamplesNeeded(len(samples))+srcChannels)
		n := r.Resample(samples, out)
		samples = out[:n]
	}

	if srcChannels == 1 && channels > 1 {
		samples = Upmix(samples, channels)
		srcChannels = channels
	}

	return audio.Clip{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   srcChannels,
	}
}
