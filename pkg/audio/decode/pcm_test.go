// ABOUTME: Tests for PCM decoder
// ABOUTME: Tests s16 and f32 PCM decoding
package decode

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

func TestNewPCM(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		wantErr bool
	}{
		{"s16", audio.Format{SampleRate: 48000, Channels: 2, Encoding: audio.S16}, false},
		{"f32", audio.Format{SampleRate: 48000, Channels: 1, Encoding: audio.F32}, false},
		{"unknown", audio.Format{SampleRate: 48000, Channels: 1, Encoding: "s24"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder, err := NewPCM(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if decoder == nil {
				t.Fatal("expected decoder to be created")
			}
		})
	}
}

func TestPCMDecodeS16(t *testing.T) {
	decoder, err := NewPCM(audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.S16})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	input := make([]byte, 6)
	binary.LittleEndian.PutUint16(input[0:], uint16(16384))
	minus := int16(-32768)
	binary.LittleEndian.PutUint16(input[2:], uint16(minus))
	binary.LittleEndian.PutUint16(input[4:], 0)

	output, err := decoder.Decode(input)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	want := []float32{0.5, -1, 0}
	if len(output) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(output))
	}
	for i := range want {
		if output[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, output[i], want[i])
		}
	}
}

func TestPCMDecodeF32(t *testing.T) {
	decoder, err := NewPCM(audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.F32})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	values := []float32{0.25, -0.75, 1}
	input := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(input[i*4:], math.Float32bits(v))
	}

	output, err := decoder.Decode(input)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i, v := range values {
		if output[i] != v {
			t.Errorf("sample %d: got %f, want %f", i, output[i], v)
		}
	}
}

func TestPCMDecodeF32NonFinite(t *testing.T) {
	decoder, err := NewPCM(audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.F32})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	values := []float32{
		float32(math.NaN()),
		float32(math.Inf(1)),
		float32(math.Inf(-1)),
		0.5,
	}
	input := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(input[i*4:], math.Float32bits(v))
	}

	output, err := decoder.Decode(input)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := []float32{0, 0, 0, 0.5}
	for i := range want {
		if output[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, output[i], want[i])
		}
	}
}

func TestPCMDecodeIgnoresPartialSample(t *testing.T) {
	decoder, _ := NewPCM(audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.S16})

	output, err := decoder.Decode([]byte{0x00, 0x40, 0x01})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(output) != 1 {
		t.Errorf("expected 1 sample, got %d", len(output))
	}
}

func TestPCMDecodeEmpty(t *testing.T) {
	decoder, _ := NewPCM(audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.F32})

	output, err := decoder.Decode(nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(output) != 0 {
		t.Errorf("expected no samples, got %d", len(output))
	}
}
