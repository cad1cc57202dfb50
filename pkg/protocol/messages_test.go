// ABOUTME: Tests for protocol message types and the data frame codec
// ABOUTME: Verifies envelopes, field names and binary framing
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

func TestStreamStartWireNames(t *testing.T) {
	msg := Message{
		Type: TypeStreamStart,
		Payload: StreamStart{
			StreamID:       "s1",
			SourceEntityID: "npc-7",
			SampleRate:     24000,
			Channels:       1,
			Format:         audio.S16,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	for _, field := range []string{`"stream_id":"s1"`, `"source_entity_id":"npc-7"`, `"sample_rate":24000`, `"channel_count":1`, `"format":"s16"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("expected %s in %s", field, data)
		}
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"audio-stream-stop","payload":{"stream_id":"abc"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != TypeStreamStop {
		t.Errorf("expected %s, got %s", TypeStreamStop, env.Type)
	}

	var stop StreamStop
	if err := env.Decode(&stop); err != nil {
		t.Fatal(err)
	}
	if stop.StreamID != "abc" {
		t.Errorf("expected stream id abc, got %s", stop.StreamID)
	}
}

func TestParseEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"missing type", `{"payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}

	env, _ := ParseEnvelope([]byte(`{"type":"client/hello"}`))
	var hello ClientHello
	if err := env.Decode(&hello); err == nil {
		t.Error("expected error decoding missing payload")
	}
}

func TestStreamStartAudioFormat(t *testing.T) {
	s := StreamStart{SampleRate: 16000, Channels: 2, Format: audio.F32}
	want := audio.Format{SampleRate: 16000, Channels: 2, Encoding: audio.F32}
	if s.AudioFormat() != want {
		t.Errorf("expected %+v, got %+v", want, s.AudioFormat())
	}
}

func TestDataFrameEncoding(t *testing.T) {
	frame := DataFrame{StreamID: "stream-1", Sequence: 0x0102030405060708, Samples: []byte{9, 8, 7}}

	data, err := EncodeDataFrame(frame)
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{DataFrameType, 1, 2, 3, 4, 5, 6, 7, 8, 8}
	want = append(want, "stream-1"...)
	want = append(want, 9, 8, 7)
	if !bytes.Equal(data, want) {
		t.Errorf("expected % x, got % x", want, data)
	}

	got, err := DecodeDataFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.StreamID != frame.StreamID || got.Sequence != frame.Sequence || !bytes.Equal(got.Samples, frame.Samples) {
		t.Errorf("decoded %+v, want %+v", got, frame)
	}
}

func TestDecodeDataFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrShortFrame},
		{"header only partially", []byte{DataFrameType, 0, 0}, ErrShortFrame},
		{"id longer than frame", []byte{DataFrameType, 0, 0, 0, 0, 0, 0, 0, 1, 5, 'a'}, ErrShortFrame},
		{"wrong type", []byte{0x04, 0, 0, 0, 0, 0, 0, 0, 1, 0}, ErrUnknownFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDataFrame(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEncodeDataFrameRejectsLongID(t *testing.T) {
	_, err := EncodeDataFrame(DataFrame{StreamID: strings.Repeat("x", MaxStreamIDLen+1)})
	if !errors.Is(err, ErrStreamIDTooLong) {
		t.Errorf("expected ErrStreamIDTooLong, got %v", err)
	}
}

func TestEmptySamplesFrame(t *testing.T) {
	data, err := EncodeDataFrame(DataFrame{StreamID: "s", Sequence: 3})
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeDataFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Samples) != 0 || got.Sequence != 3 {
		t.Errorf("unexpected frame %+v", got)
	}
}
