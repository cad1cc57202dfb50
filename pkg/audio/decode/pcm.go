// ABOUTME: PCM audio decoder
// ABOUTME: Decodes s16 and f32 little-endian PCM to float32 samples
package decode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	encoding audio.SampleFormat
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if !format.Encoding.Valid() {
		return nil, fmt.Errorf("unsupported sample format: %q (supported: s16, f32)", format.Encoding)
	}

	return &PCMDecoder{
		encoding: format.Encoding,
	}, nil
}

// Decode converts PCM bytes to float32 samples. Trailing bytes that do not
// form a whole sample are ignored.
func (d *PCMDecoder) Decode(data []byte) ([]float32, error) {
	if d.encoding == audio.F32 {
		// f32: 4 bytes per sample, non-finite values become silence
		numSamples := len(data) / 4
		samples := make([]float32, numSamples)
		for i := 0; i < numSamples; i++ {
			v := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
				v = 0
			}
			samples[i] = v
		}
		return samples, nil
	}

	// s16: 2 bytes per sample
	numSamples := len(data) / 2
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = audio.Int16ToFloat(sample16)
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
