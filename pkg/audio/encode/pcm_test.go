// ABOUTME: Unit tests for PCM encoder
// ABOUTME: Tests s16 and f32 PCM encoding and round trips through the decoder
package encode

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/audio/decode"
)

func TestNewPCM(t *testing.T) {
	tests := []struct {
		name        string
		format      audio.Format
		wantErr     bool
		errContains string
	}{
		{
			name:   "valid s16",
			format: audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.S16},
		},
		{
			name:   "valid f32",
			format: audio.Format{SampleRate: 48000, Channels: 2, Encoding: audio.F32},
		},
		{
			name:        "unsupported format",
			format:      audio.Format{SampleRate: 48000, Channels: 2, Encoding: "opus"},
			wantErr:     true,
			errContains: "unsupported sample format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := NewPCM(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewPCM() expected error, got nil")
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("NewPCM() error = %v, want error containing %v", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Errorf("NewPCM() unexpected error = %v", err)
			}
			if encoder == nil {
				t.Errorf("NewPCM() returned nil encoder")
			}
		})
	}
}

func TestPCMEncoder_EncodeS16(t *testing.T) {
	encoder, err := NewPCM(audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.S16})
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}
	defer encoder.Close()

	samples := []float32{0, 0.5, -1, 2, -2}
	output, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	if len(output) != len(samples)*2 {
		t.Fatalf("Encode() output size = %d, want %d", len(output), len(samples)*2)
	}

	want := []int16{0, 16384, -32768, 32767, -32768}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(output[i*2:]))
		if got != w {
			t.Errorf("Sample %d: got %d, want %d", i, got, w)
		}
	}
}

func TestPCMEncoder_EncodeF32(t *testing.T) {
	encoder, err := NewPCM(audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.F32})
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}

	samples := []float32{0.125, -0.5}
	output, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	for i, s := range samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(output[i*4:]))
		if got != s {
			t.Errorf("Sample %d: got %f, want %f", i, got, s)
		}
	}
}

func TestPCMEncoder_RoundTripThroughDecoder(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 2, Encoding: audio.S16}
	encoder, _ := NewPCM(format)
	decoder, _ := decode.NewPCM(format)

	samples := []float32{0.25, -0.25, 0.75, -0.75}
	payload, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	decoded, err := decoder.Decode(payload)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	for i := range samples {
		if diff := math.Abs(float64(decoded[i] - samples[i])); diff > 1.0/32768 {
			t.Errorf("sample %d: got %f, want %f", i, decoded[i], samples[i])
		}
	}
}
