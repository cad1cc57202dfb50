// ABOUTME: Tests for the listener's stream handling
// ABOUTME: Covers lifecycle, ordering of queued events, movement and shutdown
package proxaudio

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
)

func s16Payload(frames int, value int16) []byte {
	buf := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

func newTestListener() *Listener {
	return NewListener(ListenerConfig{
		Name:       "test",
		EntityID:   "me",
		Position:   [3]float64{0, 0, 0},
		Forward:    [3]float64{0, 0, -1},
		SampleRate: 24000,
		Channels:   2,
	})
}

func peak(buf []float32) float32 {
	var p float32
	for _, v := range buf {
		if v < 0 {
			v = -v
		}
		if v > p {
			p = v
		}
	}
	return p
}

func TestListenerDefaults(t *testing.T) {
	l := NewListener(ListenerConfig{Name: "x"})
	if l.config.SampleRate != DefaultOutputSampleRate || l.config.Channels != DefaultOutputChannels {
		t.Errorf("config = %d Hz %d ch", l.config.SampleRate, l.config.Channels)
	}
	if l.Mixer().SampleRate() != DefaultOutputSampleRate {
		t.Errorf("mixer rate = %d", l.Mixer().SampleRate())
	}
}

func TestListenerStreamLifecycle(t *testing.T) {
	l := newTestListener()
	l.handleTransform(protocol.EntityTransform{EntityID: "src", Position: [3]float64{0, 0, -1}, Forward: [3]float64{0, 0, 1}})

	start := protocol.StreamStart{StreamID: "s1", SourceEntityID: "src", SampleRate: 24000, Channels: 1, Format: audio.S16}
	l.handleStart(start)
	l.handleStart(start)

	if got := len(l.Streams()); got != 1 {
		t.Fatalf("streams = %d, want 1", got)
	}
	if l.Mixer().Len() != 1 {
		t.Fatalf("mixer voices = %d, want 1", l.Mixer().Len())
	}
	if !l.Speaking("src") {
		t.Error("source not marked speaking")
	}

	// 200 ms of audio clears the 100 ms jitter threshold
	for seq := uint64(0); seq < 4; seq++ {
		l.handleData(protocol.DataFrame{StreamID: "s1", Sequence: seq, Samples: s16Payload(1200, 16384)})
	}
	l.handleData(protocol.DataFrame{StreamID: "unknown", Sequence: 0, Samples: s16Payload(10, 1)})

	out := make([]float32, 480*2)
	l.Mixer().Render(out)
	if p := peak(out); p < 0.1 {
		t.Errorf("peak after buffering = %v, want audible output", p)
	}

	stats := l.Streams()[0].Stats
	if stats.Enqueued != 4 {
		t.Errorf("enqueued = %d, want 4", stats.Enqueued)
	}

	l.handleStop("s1")
	l.handleStop("s1")

	if len(l.Streams()) != 0 || l.Mixer().Len() != 0 {
		t.Error("stream still registered after stop")
	}
	if l.Speaking("src") {
		t.Error("speaking indicator not restored after stop")
	}

	l.Mixer().Render(out)
	if p := peak(out); p != 0 {
		t.Errorf("peak after stop = %v, want silence", p)
	}
}

func TestListenerRejectsUnplayableStream(t *testing.T) {
	l := newTestListener()
	l.handleStart(protocol.StreamStart{StreamID: "bad", SourceEntityID: "src", SampleRate: 24000, Channels: 5, Format: audio.S16})

	if len(l.Streams()) != 0 || l.Mixer().Len() != 0 {
		t.Error("unplayable stream was added")
	}
	if l.Speaking("src") {
		t.Error("unplayable stream marked its source speaking")
	}
}

func TestListenerIgnoresOwnTransform(t *testing.T) {
	l := newTestListener()
	l.handleTransform(protocol.EntityTransform{EntityID: "me", Position: [3]float64{99, 0, 0}})

	tr, ok := l.entities.Transform("me")
	if !ok || tr.Position.X != 0 {
		t.Errorf("own transform overwritten: %+v", tr)
	}
}

func TestListenerMoveWithoutConnection(t *testing.T) {
	l := newTestListener()
	if err := l.Move([3]float64{5, 0, 0}, [3]float64{1, 0, 0}); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	tr, _ := l.entities.Transform("me")
	if tr.Position.X != 5 {
		t.Errorf("position = %+v", tr.Position)
	}
	if l.Connected() {
		t.Error("listener reports connected before Run")
	}
}

func TestListenerStopAll(t *testing.T) {
	l := newTestListener()
	for _, id := range []string{"a", "b"} {
		l.handleStart(protocol.StreamStart{StreamID: id, SourceEntityID: "src-" + id, SampleRate: 16000, Channels: 2, Format: audio.F32})
	}
	if l.Mixer().Len() != 2 {
		t.Fatalf("voices = %d, want 2", l.Mixer().Len())
	}

	l.stopAll()
	if l.Mixer().Len() != 0 || len(l.Streams()) != 0 {
		t.Error("stopAll left streams behind")
	}
}

// runEvents feeds queued stream events through the listener's event loop
// and waits until cond holds
func runEvents(t *testing.T, l *Listener, events []protocol.StreamEvent, cond func() bool) {
	t.Helper()
	client := protocol.NewClient(protocol.Config{Name: "test"})
	for _, ev := range events {
		client.Streams <- ev
	}
	l.client.Store(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.events(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func enqueued(l *Listener, streamID string) int64 {
	for _, s := range l.Streams() {
		if s.StreamID == streamID {
			return s.Stats.Enqueued
		}
	}
	return -1
}

func TestListenerEventsKeepWireOrder(t *testing.T) {
	const chunks = 10

	for trial := 0; trial < 20; trial++ {
		l := newTestListener()
		events := []protocol.StreamEvent{{
			Kind:  protocol.EventStart,
			Start: protocol.StreamStart{StreamID: "s1", SourceEntityID: "src", SampleRate: 24000, Channels: 1, Format: audio.S16},
		}}
		for seq := uint64(0); seq < chunks; seq++ {
			events = append(events, protocol.StreamEvent{
				Kind:  protocol.EventData,
				Frame: protocol.DataFrame{StreamID: "s1", Sequence: seq, Samples: s16Payload(240, 100)},
			})
		}

		runEvents(t, l, events, func() bool { return enqueued(l, "s1") == chunks })

		if got := enqueued(l, "s1"); got != chunks {
			t.Fatalf("trial %d: enqueued = %d, want %d", trial, got, chunks)
		}
	}
}

func TestListenerReentersAfterStop(t *testing.T) {
	start := protocol.StreamStart{StreamID: "s1", SourceEntityID: "src", SampleRate: 24000, Channels: 1, Format: audio.S16}
	data := func(seq uint64) protocol.StreamEvent {
		return protocol.StreamEvent{Kind: protocol.EventData, Frame: protocol.DataFrame{StreamID: "s1", Sequence: seq, Samples: s16Payload(240, 100)}}
	}

	for trial := 0; trial < 20; trial++ {
		l := newTestListener()
		events := []protocol.StreamEvent{
			{Kind: protocol.EventStart, Start: start},
			data(0),
			{Kind: protocol.EventStop, Stop: protocol.StreamStop{StreamID: "s1"}},
			{Kind: protocol.EventStart, Start: start},
			data(1),
			data(2),
		}

		runEvents(t, l, events, func() bool { return enqueued(l, "s1") == 2 })

		if got := enqueued(l, "s1"); got != 2 {
			t.Fatalf("trial %d: enqueued after re-entry = %d, want 2", trial, got)
		}
		if !l.Speaking("src") {
			t.Fatalf("trial %d: source not speaking after re-entry", trial)
		}
	}
}
