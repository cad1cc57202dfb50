// ABOUTME: WAV decoding and encoding via go-audio
// ABOUTME: Integer PCM of any bit depth is normalized to float32
package source

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// ErrNotWAV is returned when the RIFF/WAVE header is missing
var ErrNotWAV = errors.New("not a valid WAV file")

func decodeWAV(r io.ReadSeeker) (audio.Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return audio.Clip{}, ErrNotWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to decode WAV: %w", err)
	}

	scale := intScale(int(dec.BitDepth))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	return audio.Clip{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// WriteWAV writes a clip as 16-bit PCM WAV
func WriteWAV(w io.WriteSeeker, clip audio.Clip) error {
	enc := wav.NewEncoder(w, clip.SampleRate, 16, clip.Channels, 1)

	data := make([]int, len(clip.Samples))
	for i, s := range clip.Samples {
		data[i] = int(audio.FloatToInt16(s))
	}

	buf := &goaudio.IntBuffer{
		Data: data,
		Format: &goaudio.Format{
			NumChannels: clip.Channels,
			SampleRate:  clip.SampleRate,
		},
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return nil
}

func intScale(bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return 128.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	default:
		return 32768.0
	}
}
