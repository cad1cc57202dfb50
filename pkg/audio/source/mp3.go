// ABOUTME: MP3 decoding via go-mp3
// ABOUTME: The decoder always yields 16-bit stereo
package source

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

func decodeMP3(r io.Reader) (audio.Clip, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to decode MP3: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to read MP3 samples: %w", err)
	}

	// MP3 decoder outputs int16 = 2 bytes per sample
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = audio.Int16ToFloat(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}

	return audio.Clip{
		Samples:    samples,
		SampleRate: decoder.SampleRate(),
		Channels:   2,
	}, nil
}
