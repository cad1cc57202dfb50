// ABOUTME: Stream registry owning stream lifecycle and listener membership
// ABOUTME: Ticks at 4 Hz to expire idle streams and recompute proximity sets
package registry

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
	"github.com/Resonate-Protocol/proxaudio/pkg/spatial"
)

const (
	// DefaultMaxStreamsPerSource caps concurrent streams per source entity
	DefaultMaxStreamsPerSource = 2
	// DefaultIdleTimeout ends streams that stop receiving data
	DefaultIdleTimeout = 10 * time.Second
	// DefaultTickInterval is the membership recompute period
	DefaultTickInterval = 250 * time.Millisecond
	// DefaultDataRate is the sustained data frames per second allowed per stream
	DefaultDataRate = 100
	// DefaultDataBurst is the data frame burst allowed per stream
	DefaultDataBurst = 200
)

// Socket is a connected client as seen by the registry
type Socket struct {
	ID       string
	EntityID string
	Listener bool
}

// World exposes connected sockets and entity placement
type World interface {
	Sockets() []Socket
	Socket(id string) (Socket, bool)
	Transform(entityID string) (spatial.Transform, bool)
}

// Transport delivers messages to sockets without blocking.
// It reports false when the message could not be queued.
type Transport interface {
	Send(socketID string, msg protocol.Message) bool
	SendBinary(socketID string, data []byte) bool
}

// Metrics receives registry events
type Metrics interface {
	ActiveStreams(n int)
	Memberships(n int)
	StreamEnded(reason string)
	Rejected(reason string)
	Notification(kind string)
	ChunkForwarded(listeners int)
	FrameDropped(cause string)
	TickDuration(d time.Duration)
}

// NopMetrics discards every event
type NopMetrics struct{}

func (NopMetrics) ActiveStreams(int)          {}
func (NopMetrics) Memberships(int)            {}
func (NopMetrics) StreamEnded(string)         {}
func (NopMetrics) Rejected(string)            {}
func (NopMetrics) Notification(string)        {}
func (NopMetrics) ChunkForwarded(int)         {}
func (NopMetrics) FrameDropped(string)        {}
func (NopMetrics) TickDuration(time.Duration) {}

// Config holds registry configuration
type Config struct {
	MaxStreamsPerSource int
	IdleTimeout         time.Duration
	TickInterval        time.Duration
	Policy              Policy
	DataRate            rate.Limit
	DataBurst           int
	Metrics             Metrics
	Debug               bool
	Now                 func() time.Time
}

// StreamInfo is a snapshot of one live stream
type StreamInfo struct {
	ID             string       `json:"stream_id"`
	OriginSocketID string       `json:"origin_socket_id"`
	SourceEntityID string       `json:"source_entity_id"`
	Format         audio.Format `json:"format"`
	Listeners      []string     `json:"listeners"`
	StartedAt      time.Time    `json:"started_at"`
	LastActivity   time.Time    `json:"last_activity"`
	Chunks         uint64       `json:"chunks"`
}

type stream struct {
	id           string
	origin       string
	source       string
	format       audio.Format
	listeners    map[string]struct{}
	startedAt    time.Time
	lastActivity time.Time
	limiter      *rate.Limiter
	chunks       uint64
}

func (s *stream) startMessage() protocol.StreamStart {
	return protocol.StreamStart{
		StreamID:       s.id,
		SourceEntityID: s.source,
		SampleRate:     s.format.SampleRate,
		Channels:       s.format.Channels,
		Format:         s.format.Encoding,
	}
}

// Registry tracks live streams and their listener sets
type Registry struct {
	config    Config
	world     World
	transport Transport
	dispatch  dispatcher
	validate  *validator.Validate

	mu      sync.Mutex
	streams map[string]*stream
}

// New creates a registry sending through transport and reading placement from world
func New(config Config, world World, transport Transport) *Registry {
	if config.MaxStreamsPerSource <= 0 {
		config.MaxStreamsPerSource = DefaultMaxStreamsPerSource
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.Policy == nil {
		config.Policy = RadiusPolicy{Radius: DefaultRadius}
	}
	if config.DataRate <= 0 {
		config.DataRate = DefaultDataRate
	}
	if config.DataBurst <= 0 {
		config.DataBurst = DefaultDataBurst
	}
	if config.Metrics == nil {
		config.Metrics = NopMetrics{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Registry{
		config:    config,
		world:     world,
		transport: transport,
		dispatch:  dispatcher{transport: transport, metrics: config.Metrics},
		validate:  newValidator(),
		streams:   make(map[string]*stream),
	}
}

// Config returns the effective configuration
func (r *Registry) Config() Config {
	return r.config
}

// StartStream registers a stream for the origin socket's entity.
// The origin gets an audio-stream-started ack or an audio-stream-rejected
// message; listeners in range get audio-stream-start.
func (r *Registry) StartStream(origin string, req protocol.StreamStart) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, rej := r.admit(origin, &req)
	if rej != nil {
		r.config.Metrics.Rejected(rej.Reason)
		r.transport.Send(origin, protocol.Message{
			Type:    protocol.TypeStreamRejected,
			Payload: protocol.StreamRejected{StreamID: req.StreamID, Reason: rej.Reason},
		})
		if r.config.Debug {
			log.Printf("[DEBUG] Registry: %v", rej)
		}
		return "", rej
	}

	now := r.config.Now()
	s := &stream{
		id:           id,
		origin:       origin,
		source:       req.SourceEntityID,
		format:       req.AudioFormat(),
		listeners:    make(map[string]struct{}),
		startedAt:    now,
		lastActivity: now,
		limiter:      rate.NewLimiter(r.config.DataRate, r.config.DataBurst),
	}
	r.streams[id] = s

	r.transport.Send(origin, protocol.Message{
		Type:    protocol.TypeStreamStarted,
		Payload: protocol.StreamStarted{StreamID: id},
	})

	r.refresh(s)
	r.sendTransform(s)
	r.updateGauges()

	log.Printf("Stream %s started by %s (entity %s, %d Hz, %d ch, %s)",
		id, origin, s.source, s.format.SampleRate, s.format.Channels, s.format.Encoding)

	return id, nil
}

// admit validates a start request without mutating state.
// It fills in the source entity and returns the stream id to register.
func (r *Registry) admit(origin string, req *protocol.StreamStart) (string, *RejectError) {
	sock, ok := r.world.Socket(origin)
	if !ok || sock.EntityID == "" {
		return "", &RejectError{StreamID: req.StreamID, Reason: ReasonNoEntity}
	}
	if req.SourceEntityID != "" && req.SourceEntityID != sock.EntityID {
		return "", &RejectError{
			StreamID: req.StreamID,
			Reason:   ReasonEntityMismatch,
			Detail:   req.SourceEntityID,
		}
	}
	req.SourceEntityID = sock.EntityID

	if rej := validateStart(r.validate, *req); rej != nil {
		return "", rej
	}

	id := req.StreamID
	if id == "" {
		id = uuid.New().String()
	}
	if _, exists := r.streams[id]; exists {
		return "", &RejectError{StreamID: req.StreamID, Reason: ReasonDuplicateStream}
	}

	owned := 0
	for _, s := range r.streams {
		if s.source == sock.EntityID {
			owned++
		}
	}
	if owned >= r.config.MaxStreamsPerSource {
		return "", &RejectError{
			StreamID: req.StreamID,
			Reason:   ReasonStreamLimit,
			Detail:   sock.EntityID,
		}
	}

	req.StreamID = id
	return id, nil
}

// ForwardData relays one chunk from the origin to the stream's listeners.
// Frames for unknown streams, from the wrong socket, with a partial frame
// or over the flood limit are dropped silently. It reports whether the
// chunk was forwarded.
func (r *Registry) ForwardData(origin, streamID string, sequence uint64, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[streamID]
	if !ok {
		r.config.Metrics.FrameDropped("unknown")
		return false
	}
	if s.origin != origin {
		r.config.Metrics.FrameDropped("spoofed")
		if r.config.Debug {
			log.Printf("[DEBUG] Registry: dropped frame for %s from non-origin %s", streamID, origin)
		}
		return false
	}
	if fb := s.format.FrameBytes(); fb == 0 || len(payload)%fb != 0 {
		r.config.Metrics.FrameDropped("malformed")
		return false
	}
	if !s.limiter.Allow() {
		r.config.Metrics.FrameDropped("rate_limited")
		return false
	}

	s.lastActivity = r.config.Now()
	s.chunks++

	if len(s.listeners) == 0 {
		r.config.Metrics.ChunkForwarded(0)
		return true
	}

	frame, err := protocol.EncodeDataFrame(protocol.DataFrame{
		StreamID: streamID,
		Sequence: sequence,
		Samples:  payload,
	})
	if err != nil {
		r.config.Metrics.FrameDropped("malformed")
		return false
	}

	for id := range s.listeners {
		if !r.transport.SendBinary(id, frame) {
			r.config.Metrics.FrameDropped("backpressure")
		}
	}
	r.config.Metrics.ChunkForwarded(len(s.listeners))
	return true
}

// StopStream ends a stream at its origin's request.
// Stops from other sockets and for unknown ids are ignored.
func (r *Registry) StopStream(origin, streamID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[streamID]
	if !ok || s.origin != origin {
		if r.config.Debug {
			log.Printf("[DEBUG] Registry: ignored stop for %s from %s", streamID, origin)
		}
		return false
	}

	r.end(s, EndStopped)
	return true
}

// SocketClosed removes a socket from every listener set and ends the
// streams it originated
func (r *Registry) SocketClosed(socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sortedStreams() {
		if s.origin == socketID {
			r.end(s, EndOriginDisconnect)
			continue
		}
		delete(s.listeners, socketID)
	}
	r.updateGauges()
}

// Tick expires idle streams, then recomputes and diffs every listener set
func (r *Registry) Tick(now time.Time) {
	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sortedStreams() {
		if now.Sub(s.lastActivity) > r.config.IdleTimeout {
			log.Printf("Stream %s timed out after %v idle", s.id, now.Sub(s.lastActivity).Round(time.Millisecond))
			r.end(s, EndTimeout)
			continue
		}
		r.refresh(s)
		r.sendTransform(s)
	}

	r.updateGauges()
	r.config.Metrics.TickDuration(time.Since(start))
}

// Run ticks until ctx is cancelled
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(r.config.Now())
		}
	}
}

// Streams returns a snapshot of live streams ordered by id
func (r *Registry) Streams() []StreamInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]StreamInfo, 0, len(r.streams))
	for _, s := range r.sortedStreams() {
		listeners := make([]string, 0, len(s.listeners))
		for id := range s.listeners {
			listeners = append(listeners, id)
		}
		sort.Strings(listeners)
		infos = append(infos, StreamInfo{
			ID:             s.id,
			OriginSocketID: s.origin,
			SourceEntityID: s.source,
			Format:         s.format,
			Listeners:      listeners,
			StartedAt:      s.startedAt,
			LastActivity:   s.lastActivity,
			Chunks:         s.chunks,
		})
	}
	return infos
}

// Len returns the number of live streams
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// refresh recomputes the listener set of s and dispatches the deltas.
// Membership only changes for deltas whose notification was queued.
func (r *Registry) refresh(s *stream) {
	next := r.computeListeners(s)
	sent, refused := r.dispatch.dispatch(diffMembers(s, s.listeners, next))

	for _, d := range sent {
		switch d.Kind {
		case Entered:
			s.listeners[d.SocketID] = struct{}{}
		case Left:
			delete(s.listeners, d.SocketID)
		}
	}

	if r.config.Debug {
		for _, d := range sent {
			log.Printf("[DEBUG] Registry: %s %s stream %s", d.SocketID, d.Kind, d.StreamID)
		}
		for _, d := range refused {
			log.Printf("[DEBUG] Registry: %s %s stream %s not queued, retrying next tick", d.SocketID, d.Kind, d.StreamID)
		}
	}
}

func (r *Registry) computeListeners(s *stream) map[string]struct{} {
	sourceT, sourceOK := r.world.Transform(s.source)

	members := make(map[string]struct{})
	for _, sock := range r.world.Sockets() {
		if !sock.Listener || sock.ID == s.origin || sock.EntityID == s.source {
			continue
		}
		var listenerT spatial.Transform
		listenerOK := false
		if sock.EntityID != "" {
			listenerT, listenerOK = r.world.Transform(sock.EntityID)
		}
		if r.config.Policy.InRange(listenerT, listenerOK, sourceT, sourceOK) {
			members[sock.ID] = struct{}{}
		}
	}
	return members
}

// sendTransform tells every listener where the stream's source is
func (r *Registry) sendTransform(s *stream) {
	if len(s.listeners) == 0 {
		return
	}
	t, ok := r.world.Transform(s.source)
	if !ok {
		return
	}
	msg := protocol.Message{
		Type: protocol.TypeEntityTransform,
		Payload: protocol.EntityTransform{
			EntityID: s.source,
			Position: t.Position.Array(),
			Forward:  t.Forward.Array(),
		},
	}
	for _, id := range sortedKeys(s.listeners) {
		r.transport.Send(id, msg)
	}
}

// end notifies listeners, tells the origin when it did not ask for the
// stop, and removes the stream
func (r *Registry) end(s *stream, reason string) {
	stop := protocol.Message{Type: protocol.TypeStreamStop, Payload: protocol.StreamStop{StreamID: s.id}}
	for _, id := range sortedKeys(s.listeners) {
		r.transport.Send(id, stop)
		r.config.Metrics.Notification("stop")
	}

	if reason == EndTimeout {
		r.transport.Send(s.origin, protocol.Message{
			Type:    protocol.TypeStreamEnded,
			Payload: protocol.StreamEnded{StreamID: s.id, Reason: reason},
		})
	}

	delete(r.streams, s.id)
	s.listeners = nil
	r.config.Metrics.StreamEnded(reason)
	r.updateGauges()

	log.Printf("Stream %s ended (%s)", s.id, reason)
}

func (r *Registry) updateGauges() {
	members := 0
	for _, s := range r.streams {
		members += len(s.listeners)
	}
	r.config.Metrics.ActiveStreams(len(r.streams))
	r.config.Metrics.Memberships(members)
}

func (r *Registry) sortedStreams() []*stream {
	out := make([]*stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
