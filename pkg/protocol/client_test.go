// ABOUTME: Tests for the protocol client
// ABOUTME: Uses an httptest WebSocket server to script replies
package protocol

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// fakeServer answers the handshake, then hands every later message to script
type fakeServer struct {
	hello   Message
	script  func(conn *websocket.Conn, env Envelope)
	binary  chan DataFrame
	started chan ClientHello
}

func newFakeServer(t *testing.T, script func(conn *websocket.Conn, env Envelope)) (*fakeServer, string) {
	t.Helper()
	fs := &fakeServer{
		hello:   Message{Type: TypeServerHello, Payload: ServerHello{ServerID: "srv", Name: "fake", SocketID: "sock-1", Version: ProtocolVersion}},
		script:  script,
		binary:  make(chan DataFrame, 8),
		started: make(chan ClientHello, 1),
	}

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := ParseEnvelope(data)
		if err != nil {
			return
		}
		var hello ClientHello
		env.Decode(&hello)
		fs.started <- hello
		conn.WriteJSON(fs.hello)

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				if f, err := DecodeDataFrame(data); err == nil {
					fs.binary <- f
				}
				continue
			}
			env, err := ParseEnvelope(data)
			if err != nil {
				continue
			}
			if fs.script != nil {
				fs.script(conn, env)
			}
		}
	}))
	t.Cleanup(ts.Close)

	return fs, strings.TrimPrefix(ts.URL, "http://")
}

func dial(t *testing.T, addr string, cfg Config) *Client {
	t.Helper()
	cfg.ServerAddr = addr
	c := NewClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{ServerAddr: "localhost:1"})
	if c.config.Path != DefaultPath {
		t.Errorf("path = %q, want %q", c.config.Path, DefaultPath)
	}
	if len(c.config.Roles) != 1 || c.config.Roles[0] != RoleListener {
		t.Errorf("roles = %v, want [listener]", c.config.Roles)
	}
	if c.IsConnected() {
		t.Error("new client reports connected")
	}
	if err := c.SendGoodbye("bye"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send on unconnected client: %v, want ErrNotConnected", err)
	}
}

func TestConnectHandshake(t *testing.T) {
	fs, addr := newFakeServer(t, nil)
	c := dial(t, addr, Config{Name: "laptop", EntityID: "alice", Roles: []string{RoleSpeaker}})

	hello := <-fs.started
	if hello.SocketName != "laptop" || hello.EntityID != "alice" || hello.Version != ProtocolVersion {
		t.Errorf("client hello = %+v", hello)
	}
	if got := c.ServerHello(); got.SocketID != "sock-1" || got.Name != "fake" {
		t.Errorf("server hello = %+v", got)
	}
	if !c.IsConnected() {
		t.Error("client not connected after handshake")
	}
}

func TestConnectRejectsWrongReply(t *testing.T) {
	fs, addr := newFakeServer(t, nil)
	fs.hello = Message{Type: TypeError, Payload: ErrorMessage{Message: "go away"}}

	c := NewClient(Config{ServerAddr: addr, Name: "x"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Connect(ctx)
	if err == nil || !strings.Contains(err.Error(), "handshake failed") {
		t.Errorf("Connect err = %v, want handshake failure", err)
	}
	if c.IsConnected() {
		t.Error("client connected after failed handshake")
	}
}

func TestStartStreamAck(t *testing.T) {
	_, addr := newFakeServer(t, func(conn *websocket.Conn, env Envelope) {
		if env.Type != TypeStreamStart {
			return
		}
		var start StreamStart
		env.Decode(&start)
		if start.SourceEntityID != "alice" {
			conn.WriteJSON(Message{Type: TypeStreamRejected, Payload: StreamRejected{StreamID: start.StreamID, Reason: "entity_mismatch"}})
			return
		}
		conn.WriteJSON(Message{Type: TypeStreamStarted, Payload: StreamStarted{StreamID: start.StreamID}})
	})
	c := dial(t, addr, Config{Name: "x", EntityID: "alice"})

	id, err := c.StartStream(context.Background(), StreamStart{SampleRate: 16000, Channels: 1, Format: audio.S16})
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("generated id %q is not a UUID", id)
	}

	id, err = c.StartStream(context.Background(), StreamStart{StreamID: "mine", SampleRate: 16000, Channels: 1, Format: audio.S16})
	if err != nil || id != "mine" {
		t.Errorf("StartStream(mine) = %q, %v", id, err)
	}
}

func TestStartStreamRejected(t *testing.T) {
	_, addr := newFakeServer(t, func(conn *websocket.Conn, env Envelope) {
		var start StreamStart
		env.Decode(&start)
		conn.WriteJSON(Message{Type: TypeStreamRejected, Payload: StreamRejected{StreamID: start.StreamID, Reason: "stream_limit"}})
	})
	c := dial(t, addr, Config{Name: "x", EntityID: "alice"})

	_, err := c.StartStream(context.Background(), StreamStart{StreamID: "s1"})
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if rej.StreamID != "s1" || rej.Reason != "stream_limit" {
		t.Errorf("rejection = %+v", rej)
	}
}

func TestStartStreamContextCancel(t *testing.T) {
	_, addr := newFakeServer(t, nil)
	c := dial(t, addr, Config{Name: "x"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.StartStream(ctx, StreamStart{StreamID: "s1"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestSendChunkAfterServerEnd(t *testing.T) {
	_, addr := newFakeServer(t, func(conn *websocket.Conn, env Envelope) {
		if env.Type == TypeStreamStart {
			var start StreamStart
			env.Decode(&start)
			conn.WriteJSON(Message{Type: TypeStreamStarted, Payload: StreamStarted{StreamID: start.StreamID}})
			conn.WriteJSON(Message{Type: TypeStreamEnded, Payload: StreamEnded{StreamID: start.StreamID, Reason: "timeout"}})
		}
	})
	c := dial(t, addr, Config{Name: "x", EntityID: "alice"})

	id, err := c.StartStream(context.Background(), StreamStart{StreamID: "s1"})
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	select {
	case end := <-c.Ended:
		if end.StreamID != id || end.Reason != "timeout" {
			t.Errorf("ended = %+v", end)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no ended notice")
	}

	if err := c.SendChunk(id, 0, []byte{0, 0}); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("SendChunk err = %v, want ErrStreamEnded", err)
	}
	if err := c.StopStream(id); err != nil {
		t.Errorf("StopStream on ended stream: %v", err)
	}
}

func TestSendChunkAndRouting(t *testing.T) {
	fs, addr := newFakeServer(t, func(conn *websocket.Conn, env Envelope) {
		if env.Type != TypeEntityUpdate {
			return
		}
		var u EntityUpdate
		env.Decode(&u)
		conn.WriteJSON(Message{Type: TypeStreamStart, Payload: StreamStart{StreamID: "s9", SourceEntityID: "bob", SampleRate: 8000, Channels: 1, Format: audio.F32}})
		conn.WriteJSON(Message{Type: TypeEntityTransform, Payload: EntityTransform{EntityID: "bob", Position: u.Position}})
		frame, _ := EncodeDataFrame(DataFrame{StreamID: "s9", Sequence: 3, Samples: []byte{1, 2, 3, 4}})
		conn.WriteMessage(websocket.BinaryMessage, frame)
		conn.WriteJSON(Message{Type: TypeStreamStop, Payload: StreamStop{StreamID: "s9"}})
	})
	c := dial(t, addr, Config{Name: "x", EntityID: "alice"})

	if err := c.SendChunk("mine", 5, []byte{9, 9}); err != nil {
		t.Fatalf("SendChunk failed: %v", err)
	}
	select {
	case f := <-fs.binary:
		if f.StreamID != "mine" || f.Sequence != 5 {
			t.Errorf("server got %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server received no frame")
	}

	if err := c.SendEntityUpdate(EntityUpdate{Position: [3]float64{1, 2, 3}}); err != nil {
		t.Fatalf("SendEntityUpdate failed: %v", err)
	}

	timeout := time.After(2 * time.Second)
	var events []StreamEvent
	for len(events) < 3 {
		select {
		case ev := <-c.Streams:
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("got %d stream events, want 3", len(events))
		}
	}

	wantKinds := []StreamEventKind{EventStart, EventData, EventStop}
	for i, ev := range events {
		if ev.Kind != wantKinds[i] {
			t.Fatalf("event %d = %v, want %v", i, ev.Kind, wantKinds[i])
		}
	}
	if s := events[0].Start; s.StreamID != "s9" || s.Format != audio.F32 {
		t.Errorf("start = %+v", s)
	}
	if f := events[1].Frame; f.Sequence != 3 || len(f.Samples) != 4 {
		t.Errorf("frame = %+v", f)
	}
	if s := events[2].Stop; s.StreamID != "s9" {
		t.Errorf("stop = %+v", s)
	}

	select {
	case tr := <-c.Transforms:
		if tr.Position != [3]float64{1, 2, 3} {
			t.Errorf("transform = %+v", tr)
		}
	case <-timeout:
		t.Fatal("no transform")
	}
}

func TestCloseEndsReader(t *testing.T) {
	_, addr := newFakeServer(t, nil)
	c := dial(t, addr, Config{Name: "x"})

	c.Close()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Close")
	}
	if err := c.SendChunk("s", 0, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendChunk after Close = %v, want ErrNotConnected", err)
	}
}
