// ABOUTME: Tests for the relay server over real WebSocket connections
// ABOUTME: Covers handshake, stream relay, proximity ticks and HTTP endpoints
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/proxaudio/internal/registry"
	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
)

const waitTimeout = 3 * time.Second

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{
		Name:     "test-server",
		Registry: registry.Config{Policy: registry.RadiusPolicy{Radius: 10}},
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.world.closeAll()
		ts.Close()
	})
	return s, ts
}

func connect(t *testing.T, ts *httptest.Server, name, entity string, roles ...string) *protocol.Client {
	t.Helper()
	c := protocol.NewClient(protocol.Config{
		ServerAddr: strings.TrimPrefix(ts.URL, "http://"),
		Name:       name,
		EntityID:   entity,
		Roles:      roles,
	})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect(%s) failed: %v", name, err)
	}
	t.Cleanup(c.Close)
	return c
}

func place(t *testing.T, s *Server, c *protocol.Client, entity string, pos [3]float64) {
	t.Helper()
	if err := c.SendEntityUpdate(protocol.EntityUpdate{EntityID: entity, Position: pos, Forward: [3]float64{0, 0, -1}}); err != nil {
		t.Fatalf("SendEntityUpdate failed: %v", err)
	}
	waitFor(t, "entity "+entity+" placed", func() bool {
		tr, ok := s.World().Transform(entity)
		return ok && tr.Position.Array() == pos
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// recvStream waits for the next stream event and requires its kind
func recvStream(t *testing.T, c *protocol.Client, kind protocol.StreamEventKind, what string) protocol.StreamEvent {
	t.Helper()
	ev := recv(t, c.Streams, what)
	if ev.Kind != kind {
		t.Fatalf("%s: got %v event, want %v", what, ev.Kind, kind)
	}
	return ev
}

func speakerStart() protocol.StreamStart {
	return protocol.StreamStart{SampleRate: 24000, Channels: 1, Format: audio.S16}
}

func TestHandshake(t *testing.T) {
	s, ts := newTestServer(t)
	c := connect(t, ts, "alice-laptop", "alice", protocol.RoleListener)

	hello := c.ServerHello()
	if hello.ServerID != s.ID() || hello.Name != "test-server" {
		t.Errorf("server hello = %+v", hello)
	}
	if hello.SocketID == "" {
		t.Error("server hello carries no socket id")
	}

	waitFor(t, "socket registered", func() bool {
		sock, ok := s.World().Socket(hello.SocketID)
		return ok && sock.EntityID == "alice" && sock.Listener
	})
}

func TestHandshakeRejectsOtherFirstMessage(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + protocol.DefaultPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeStreamStop, Payload: protocol.StreamStop{StreamID: "x"}}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected an error message, got read error %v", err)
	}
	env, err := protocol.ParseEnvelope(data)
	if err != nil || env.Type != protocol.TypeError {
		t.Errorf("first reply = %s (%v), want %s", env.Type, err, protocol.TypeError)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection stayed open after a bad handshake")
	}
}

func TestStreamRelay(t *testing.T) {
	s, ts := newTestServer(t)
	speaker := connect(t, ts, "speaker", "alice", protocol.RoleSpeaker)
	listener := connect(t, ts, "listener", "bob")

	place(t, s, speaker, "alice", [3]float64{0, 0, 0})
	place(t, s, listener, "bob", [3]float64{3, 0, 0})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	id, err := speaker.StartStream(ctx, speakerStart())
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	start := recvStream(t, listener, protocol.EventStart, "stream start").Start
	if start.StreamID != id || start.SourceEntityID != "alice" || start.SampleRate != 24000 {
		t.Errorf("start = %+v", start)
	}

	payload := []byte{1, 0, 2, 0, 3, 0}
	if err := speaker.SendChunk(id, 42, payload); err != nil {
		t.Fatalf("SendChunk failed: %v", err)
	}

	frame := recvStream(t, listener, protocol.EventData, "data frame").Frame
	if frame.StreamID != id || frame.Sequence != 42 || string(frame.Samples) != string(payload) {
		t.Errorf("frame = %+v", frame)
	}

	if err := speaker.StopStream(id); err != nil {
		t.Fatalf("StopStream failed: %v", err)
	}
	stop := recvStream(t, listener, protocol.EventStop, "stream stop").Stop
	if stop.StreamID != id {
		t.Errorf("stop = %+v", stop)
	}

	waitFor(t, "registry empty", func() bool { return s.Registry().Len() == 0 })
}

func TestStreamRejected(t *testing.T) {
	s, ts := newTestServer(t)
	speaker := connect(t, ts, "speaker", "alice", protocol.RoleSpeaker)

	req := speakerStart()
	req.Channels = 3

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := speaker.StartStream(ctx, req)

	var rej *protocol.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if rej.Reason != registry.ReasonBadChannelCount {
		t.Errorf("reason = %q, want %q", rej.Reason, registry.ReasonBadChannelCount)
	}
	if s.Registry().Len() != 0 {
		t.Error("rejected stream was registered")
	}
}

func TestProximityOnTick(t *testing.T) {
	s, ts := newTestServer(t)
	speaker := connect(t, ts, "speaker", "alice", protocol.RoleSpeaker)
	walker := connect(t, ts, "walker", "bob")

	place(t, s, speaker, "alice", [3]float64{0, 0, 0})
	place(t, s, walker, "bob", [3]float64{100, 0, 0})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	id, err := speaker.StartStream(ctx, speakerStart())
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	place(t, s, walker, "bob", [3]float64{2, 0, 0})
	s.Registry().Tick(time.Now())

	start := recvStream(t, walker, protocol.EventStart, "start after entering range").Start
	if start.StreamID != id {
		t.Errorf("start = %+v", start)
	}

	tr := recv(t, walker.Transforms, "source transform")
	if tr.EntityID != "alice" {
		t.Errorf("transform = %+v", tr)
	}

	place(t, s, walker, "bob", [3]float64{50, 0, 0})
	s.Registry().Tick(time.Now())

	stop := recvStream(t, walker, protocol.EventStop, "stop after leaving range").Stop
	if stop.StreamID != id {
		t.Errorf("stop = %+v", stop)
	}
}

func TestOriginDisconnectStopsStream(t *testing.T) {
	s, ts := newTestServer(t)
	speaker := connect(t, ts, "speaker", "alice", protocol.RoleSpeaker)
	listener := connect(t, ts, "listener", "bob")

	place(t, s, speaker, "alice", [3]float64{0, 0, 0})
	place(t, s, listener, "bob", [3]float64{1, 0, 0})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	id, err := speaker.StartStream(ctx, speakerStart())
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}
	recvStream(t, listener, protocol.EventStart, "stream start")

	speaker.Close()

	stop := recvStream(t, listener, protocol.EventStop, "stop after origin disconnect").Stop
	if stop.StreamID != id {
		t.Errorf("stop = %+v", stop)
	}
}

func TestEntityUpdateOnlyOwnEntity(t *testing.T) {
	s, ts := newTestServer(t)
	c := connect(t, ts, "mallory", "mallory")

	if err := c.SendEntityUpdate(protocol.EntityUpdate{EntityID: "alice", Position: [3]float64{9, 9, 9}}); err != nil {
		t.Fatalf("SendEntityUpdate failed: %v", err)
	}
	place(t, s, c, "mallory", [3]float64{1, 2, 3})

	if _, ok := s.World().Transform("alice"); ok {
		t.Error("socket updated an entity it is not bound to")
	}
}

func TestStreamsEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	speaker := connect(t, ts, "speaker", "alice", protocol.RoleSpeaker)
	place(t, s, speaker, "alice", [3]float64{0, 0, 0})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	id, err := speaker.StartStream(ctx, speakerStart())
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	resp, err := ts.Client().Get(ts.URL + "/streams")
	if err != nil {
		t.Fatalf("GET /streams failed: %v", err)
	}
	defer resp.Body.Close()

	var body StreamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.ServerID != s.ID() || body.Clients != 1 {
		t.Errorf("body = %+v", body)
	}
	if len(body.Streams) != 1 || body.Streams[0].ID != id || body.Streams[0].Format.SampleRate != 24000 {
		t.Errorf("streams = %+v", body.Streams)
	}
}

func TestHTTPRoutes(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
		{"/streams", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := ts.Client().Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestStatusSnapshot(t *testing.T) {
	s, ts := newTestServer(t)
	connect(t, ts, "zed", "", protocol.RoleListener)
	connect(t, ts, "amy", "amy", protocol.RoleSpeaker, protocol.RoleListener)

	waitFor(t, "two sockets", func() bool { return len(s.World().Clients()) == 2 })

	st := s.status()
	if len(st.Clients) != 2 || st.Clients[0].Name != "amy" || st.Clients[0].Roles != "speaker,listener" {
		t.Errorf("clients = %+v", st.Clients)
	}

	view := tuiModel{status: st, startTime: time.Now()}.View()
	if !strings.Contains(view, "Connected Sockets (2)") || !strings.Contains(view, "No streams") {
		t.Errorf("view missing sections:\n%s", view)
	}
}
