// ABOUTME: PCM audio encoder
// ABOUTME: Encodes float32 samples to s16 or f32 little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	encoding audio.SampleFormat
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if !format.Encoding.Valid() {
		return nil, fmt.Errorf("unsupported sample format: %q (supported: s16, f32)", format.Encoding)
	}

	return &PCMEncoder{
		encoding: format.Encoding,
	}, nil
}

// Encode converts float32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []float32) ([]byte, error) {
	if e.encoding == audio.F32 {
		output := make([]byte, len(samples)*4)
		for i, sample := range samples {
			binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(sample))
		}
		return output, nil
	}

	output := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.FloatToInt16(sample)))
	}
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
