// ABOUTME: Listener that plays nearby streams through a positional mixer
// ABOUTME: One playback engine and voice per stream, all summed into one output
package proxaudio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio/output"
	"github.com/Resonate-Protocol/proxaudio/pkg/playback"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
	"github.com/Resonate-Protocol/proxaudio/pkg/spatial"
)

const (
	// DefaultOutputSampleRate is the device rate used when none is configured
	DefaultOutputSampleRate = 48000
	// DefaultOutputChannels is the device channel count used when none is configured
	DefaultOutputChannels = 2
)

// ErrConnectionLost is returned by Run when the server goes away
var ErrConnectionLost = errors.New("connection to server lost")

// ListenerConfig holds listener configuration
type ListenerConfig struct {
	ServerAddr string
	Path       string
	Name       string
	EntityID   string // the listener's own entity; empty hears as world membership only

	Position [3]float64
	Forward  [3]float64

	Output     output.Output // optional; built from OutputName when nil
	OutputName string

	SampleRate      int
	Channels        int
	JitterThreshold time.Duration
	FrameRate       int
	Model           spatial.Model
	Debug           bool
}

// StreamStatus describes one stream a listener is playing
type StreamStatus struct {
	StreamID       string
	SourceEntityID string
	Stats          playback.Stats
}

type playStream struct {
	start  protocol.StreamStart
	engine *playback.Engine
	voice  *playback.Voice
}

// Listener plays every stream the server routes to it
type Listener struct {
	config     ListenerConfig
	client     atomic.Pointer[protocol.Client]
	mixer      *playback.Mixer
	positioner *spatial.Positioner
	entities   *entityTable

	mu      sync.Mutex
	streams map[string]*playStream
}

// NewListener creates a listener; Run connects and plays
func NewListener(config ListenerConfig) *Listener {
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultOutputSampleRate
	}
	if config.Channels <= 0 {
		config.Channels = DefaultOutputChannels
	}
	if config.FrameRate <= 0 {
		config.FrameRate = spatial.DefaultFrameRate
	}

	entities := newEntityTable()
	positioner := spatial.NewPositioner(spatial.Config{
		Entities:  entities,
		Indicator: entities,
		Model:     config.Model,
		Channels:  config.Channels,
		Debug:     config.Debug,
	})
	positioner.SetListener(config.EntityID)

	if config.EntityID != "" {
		entities.update(config.EntityID, spatial.Transform{
			Position: spatial.V(config.Position),
			Forward:  spatial.V(config.Forward),
		})
	}

	return &Listener{
		config:     config,
		mixer:      playback.NewMixer(config.SampleRate, config.Channels),
		positioner: positioner,
		entities:   entities,
		streams:    make(map[string]*playStream),
	}
}

// Run connects, opens the output and plays until ctx is done or the
// connection drops
func (l *Listener) Run(ctx context.Context) error {
	client := protocol.NewClient(protocol.Config{
		ServerAddr: l.config.ServerAddr,
		Path:       l.config.Path,
		Name:       l.config.Name,
		EntityID:   l.config.EntityID,
		Roles:      []string{protocol.RoleListener},
		Debug:      l.config.Debug,
	})
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()
	l.client.Store(client)

	if l.config.EntityID != "" {
		if err := l.sendTransform(); err != nil {
			return fmt.Errorf("failed to report position: %w", err)
		}
	}

	out := l.config.Output
	if out == nil {
		var err error
		out, err = output.New(l.config.OutputName)
		if err != nil {
			return err
		}
	}
	if err := out.Open(l.config.SampleRate, l.config.Channels, l.mixer); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer out.Close()

	log.Printf("Listening as %s (entity %q) at %d Hz, %d channels",
		l.config.Name, l.config.EntityID, l.config.SampleRate, l.config.Channels)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.positioner.Run(gctx, l.config.FrameRate)
	})
	g.Go(func() error {
		return l.events(gctx)
	})

	err := g.Wait()
	l.stopAll()

	if client.IsConnected() {
		client.SendGoodbye("shutdown")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// events routes client messages until ctx ends or the connection drops
func (l *Listener) events(ctx context.Context) error {
	client := l.client.Load()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-client.Done():
			return ErrConnectionLost
		case ev := <-client.Streams:
			l.handleEvent(ev)
		case tr := <-client.Transforms:
			l.handleTransform(tr)
		}
	}
}

// Move updates the listener's own position and reports it to the server
func (l *Listener) Move(position, forward [3]float64) error {
	l.mu.Lock()
	l.config.Position = position
	l.config.Forward = forward
	l.mu.Unlock()

	if l.config.EntityID == "" {
		return nil
	}
	l.entities.update(l.config.EntityID, spatial.Transform{
		Position: spatial.V(position),
		Forward:  spatial.V(forward),
	})
	if l.client.Load() == nil {
		return nil
	}
	return l.sendTransform()
}

func (l *Listener) sendTransform() error {
	client := l.client.Load()
	if client == nil {
		return protocol.ErrNotConnected
	}
	l.mu.Lock()
	update := protocol.EntityUpdate{
		EntityID: l.config.EntityID,
		Position: l.config.Position,
		Forward:  l.config.Forward,
	}
	l.mu.Unlock()
	return client.SendEntityUpdate(update)
}

// Connected reports whether the listener currently holds a live connection
func (l *Listener) Connected() bool {
	client := l.client.Load()
	return client != nil && client.IsConnected()
}

// Mixer returns the listener's mixer
func (l *Listener) Mixer() *playback.Mixer {
	return l.mixer
}

// Speaking reports whether a source entity is currently heard
func (l *Listener) Speaking(entityID string) bool {
	return l.entities.Speaking(entityID)
}

// Streams returns the streams being played, ordered by id
func (l *Listener) Streams() []StreamStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]StreamStatus, 0, len(l.streams))
	for id, ps := range l.streams {
		out = append(out, StreamStatus{
			StreamID:       id,
			SourceEntityID: ps.start.SourceEntityID,
			Stats:          ps.engine.Stats(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// handleEvent applies stream events in the order the server sent them
func (l *Listener) handleEvent(ev protocol.StreamEvent) {
	switch ev.Kind {
	case protocol.EventStart:
		l.handleStart(ev.Start)
	case protocol.EventData:
		l.handleData(ev.Frame)
	case protocol.EventStop:
		l.handleStop(ev.Stop.StreamID)
	}
}

func (l *Listener) handleStart(start protocol.StreamStart) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.streams[start.StreamID]; exists {
		return
	}

	engine, err := playback.NewEngine(playback.Config{
		Format:           start.AudioFormat(),
		OutputSampleRate: l.config.SampleRate,
		OutputChannels:   l.config.Channels,
		JitterThreshold:  l.config.JitterThreshold,
	})
	if err != nil {
		log.Printf("Cannot play stream %s: %v", start.StreamID, err)
		return
	}

	voice := playback.NewVoice(engine)
	l.positioner.Attach(voice, start.SourceEntityID)
	if err := l.mixer.Add(voice); err != nil {
		l.positioner.Detach(voice)
		engine.Close()
		log.Printf("Cannot mix stream %s: %v", start.StreamID, err)
		return
	}

	l.streams[start.StreamID] = &playStream{start: start, engine: engine, voice: voice}
	log.Printf("Playing stream %s from entity %s (%d Hz, %d ch, %s)",
		start.StreamID, start.SourceEntityID, start.SampleRate, start.Channels, start.Format)
}

func (l *Listener) handleData(frame protocol.DataFrame) {
	l.mu.Lock()
	ps, ok := l.streams[frame.StreamID]
	l.mu.Unlock()
	if !ok {
		return
	}

	if err := ps.engine.Enqueue(playback.Chunk{Sequence: frame.Sequence, Payload: frame.Samples}); err != nil && l.config.Debug {
		log.Printf("[DEBUG] Stream %s chunk %d: %v", frame.StreamID, frame.Sequence, err)
	}
}

func (l *Listener) handleStop(streamID string) {
	l.mu.Lock()
	ps, ok := l.streams[streamID]
	delete(l.streams, streamID)
	l.mu.Unlock()
	if !ok {
		return
	}

	l.retire(ps)
	stats := ps.engine.Stats()
	log.Printf("Stream %s stopped (%d chunks, %d underruns)", streamID, stats.Enqueued, stats.Underruns)
}

func (l *Listener) handleTransform(tr protocol.EntityTransform) {
	if tr.EntityID == l.config.EntityID {
		return
	}
	l.entities.update(tr.EntityID, spatial.Transform{
		Position: spatial.V(tr.Position),
		Forward:  spatial.V(tr.Forward),
	})
}

// retire takes a stream out of the mix before its engine is closed
func (l *Listener) retire(ps *playStream) {
	l.positioner.Detach(ps.voice)
	l.mixer.Remove(ps.voice)
	ps.engine.Close()
}

func (l *Listener) stopAll() {
	l.mu.Lock()
	streams := l.streams
	l.streams = make(map[string]*playStream)
	l.mu.Unlock()

	for _, ps := range streams {
		l.retire(ps)
	}
}
