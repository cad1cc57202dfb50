// ABOUTME: Speaker that streams clips or live audio from an entity
// ABOUTME: Wraps the protocol client with the chunked sender
package proxaudio

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
	"github.com/Resonate-Protocol/proxaudio/pkg/sender"
)

// SpeakerConfig holds speaker configuration
type SpeakerConfig struct {
	ServerAddr string
	Path       string
	Name       string
	EntityID   string

	Position [3]float64
	Forward  [3]float64

	Format        audio.Format
	ChunkDuration time.Duration
	MaxDuration   time.Duration
	Debug         bool
}

// Speaker sends audio from one entity
type Speaker struct {
	config SpeakerConfig
	client *protocol.Client
}

// NewSpeaker creates a speaker; Connect joins the server
func NewSpeaker(config SpeakerConfig) *Speaker {
	if config.Format == (audio.Format{}) {
		config.Format = audio.Format{SampleRate: 24000, Channels: 1, Encoding: audio.S16}
	}
	return &Speaker{config: config}
}

// Connect joins the server and reports the speaker's position
func (s *Speaker) Connect(ctx context.Context) error {
	if s.config.EntityID == "" {
		return fmt.Errorf("speaker needs an entity id")
	}

	s.client = protocol.NewClient(protocol.Config{
		ServerAddr: s.config.ServerAddr,
		Path:       s.config.Path,
		Name:       s.config.Name,
		EntityID:   s.config.EntityID,
		Roles:      []string{protocol.RoleSpeaker},
		Debug:      s.config.Debug,
	})
	if err := s.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	return s.Move(s.config.Position, s.config.Forward)
}

// Move reports a new position for the speaker's entity
func (s *Speaker) Move(position, forward [3]float64) error {
	s.config.Position = position
	s.config.Forward = forward
	if s.client == nil {
		return protocol.ErrNotConnected
	}
	return s.client.SendEntityUpdate(protocol.EntityUpdate{
		EntityID: s.config.EntityID,
		Position: position,
		Forward:  forward,
	})
}

// Play streams a whole clip in real time, converted to the speaker's format
func (s *Speaker) Play(ctx context.Context, clip audio.Clip) error {
	if s.client == nil {
		return protocol.ErrNotConnected
	}
	log.Printf("Playing %v clip as entity %s", clip.Duration().Round(time.Millisecond), s.config.EntityID)
	return sender.SendClip(ctx, s.client, s.senderConfig(), clip)
}

// Start opens a live stream; push samples in the speaker's format
func (s *Speaker) Start(ctx context.Context) (*sender.Stream, error) {
	if s.client == nil {
		return nil, protocol.ErrNotConnected
	}
	return sender.Start(ctx, s.client, s.senderConfig())
}

// Format returns the stream format the speaker sends
func (s *Speaker) Format() audio.Format {
	return s.config.Format
}

// Close says goodbye and disconnects
func (s *Speaker) Close() {
	if s.client == nil {
		return
	}
	if s.client.IsConnected() {
		s.client.SendGoodbye("done")
	}
	s.client.Close()
}

func (s *Speaker) senderConfig() sender.Config {
	return sender.Config{
		SourceEntityID: s.config.EntityID,
		Format:         s.config.Format,
		ChunkDuration:  s.config.ChunkDuration,
		MaxDuration:    s.config.MaxDuration,
		Debug:          s.config.Debug,
	}
}
