// ABOUTME: Chunked stream sender with drift-corrected pacing
// ABOUTME: Enforces the per-invocation duration cap and halts on server-side ends
package sender

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/audio/encode"
	"github.com/Resonate-Protocol/proxaudio/pkg/audio/resample"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
)

const (
	// DefaultChunkDuration is the audio carried by one data frame
	DefaultChunkDuration = 50 * time.Millisecond
	// DefaultMaxDuration caps the audio sent by one invocation
	DefaultMaxDuration = 30 * time.Second
)

var (
	// ErrTooLong is returned when a source exceeds the maximum duration
	ErrTooLong = errors.New("audio exceeds maximum stream duration")
	// ErrStreamEnded is returned when the server ended the stream first
	ErrStreamEnded = protocol.ErrStreamEnded
	// ErrStopped is returned by Push after the stream has stopped
	ErrStopped = errors.New("stream stopped")
	// ErrPartialFrame is returned when pushed samples do not fill whole frames
	ErrPartialFrame = errors.New("samples do not divide into whole frames")
)

// Sink is the transport a stream is sent through; *protocol.Client implements it
type Sink interface {
	StartStream(ctx context.Context, start protocol.StreamStart) (string, error)
	SendChunk(streamID string, sequence uint64, samples []byte) error
	StopStream(streamID string) error
}

// Config holds sender configuration
type Config struct {
	StreamID       string // optional; the sink assigns one when empty
	SourceEntityID string
	Format         audio.Format
	ChunkDuration  time.Duration
	MaxDuration    time.Duration
	Debug          bool
}

// Stream is one outgoing stream
type Stream struct {
	sink        Sink
	config      Config
	id          string
	encoder     encode.Encoder
	chunkFrames int
	maxFrames   int

	mu        sync.Mutex
	pending   []float32
	pushed    int // frames
	sendClose bool
	sent      uint64

	wake     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// Start requests a stream from the sink and begins the pacing loop
func Start(ctx context.Context, sink Sink, config Config) (*Stream, error) {
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream format: %w", err)
	}
	if config.ChunkDuration <= 0 {
		config.ChunkDuration = DefaultChunkDuration
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = DefaultMaxDuration
	}

	enc, err := encode.NewPCM(config.Format)
	if err != nil {
		return nil, err
	}

	chunkFrames := config.Format.FramesFor(config.ChunkDuration)
	if chunkFrames < 1 {
		chunkFrames = 1
	}

	id, err := sink.StartStream(ctx, protocol.StreamStart{
		StreamID:       config.StreamID,
		SourceEntityID: config.SourceEntityID,
		SampleRate:     config.Format.SampleRate,
		Channels:       config.Format.Channels,
		Format:         config.Format.Encoding,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	s := &Stream{
		sink:        sink,
		config:      config,
		id:          id,
		encoder:     enc,
		chunkFrames: chunkFrames,
		maxFrames:   config.Format.FramesFor(config.MaxDuration),
		wake:        make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}

	log.Printf("Stream %s started: %dHz, %d channels, %s", id,
		config.Format.SampleRate, config.Format.Channels, config.Format.Encoding)

	go s.run(ctx)

	return s, nil
}

// ID returns the stream id assigned by the sink
func (s *Stream) ID() string {
	return s.id
}

// Push queues interleaved samples for sending. A push that would take the
// stream past its maximum duration is rejected whole with ErrTooLong.
func (s *Stream) Push(samples []float32) error {
	channels := s.config.Format.Channels
	if len(samples)%channels != 0 {
		return ErrPartialFrame
	}
	frames := len(samples) / channels

	s.mu.Lock()
	if s.sendClose {
		s.mu.Unlock()
		return ErrStopped
	}
	select {
	case <-s.done:
		s.mu.Unlock()
		return ErrStopped
	default:
	}
	if s.pushed+frames > s.maxFrames {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v > %v", ErrTooLong,
			time.Duration(int64(s.pushed+frames)*int64(time.Second)/int64(s.config.Format.SampleRate)),
			s.config.MaxDuration)
	}
	s.pending = append(s.pending, samples...)
	s.pushed += frames
	s.mu.Unlock()

	s.signal()
	return nil
}

// CloseSend marks the end of input; the stream stops once everything
// pushed has been sent
func (s *Stream) CloseSend() {
	s.mu.Lock()
	s.sendClose = true
	s.mu.Unlock()
	s.signal()
}

// Stop halts sending immediately and ends the stream. Stop is idempotent.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Done is closed when the stream has finished
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the stream finishes and returns why it ended early, if it did
func (s *Stream) Wait() error {
	<-s.done
	return s.err
}

// Sent returns the number of chunks sent so far
func (s *Stream) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next takes up to one chunk of pending samples. idle is true when nothing is
// pending; finished is true when nothing is pending and input is closed.
func (s *Stream) next() (chunk []float32, idle, finished bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, true, s.sendClose
	}

	n := s.chunkFrames * s.config.Format.Channels
	if len(s.pending) < n {
		if !s.sendClose {
			// Wait for a full chunk unless this is the tail
			return nil, true, false
		}
		n = len(s.pending)
	}

	chunk = s.pending[:n:n]
	s.pending = s.pending[n:]
	return chunk, false, false
}

// run paces chunks against an absolute deadline
func (s *Stream) run(ctx context.Context) {
	defer close(s.done)

	var seq uint64
	deadline := time.Now()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		// Sleep only until the absolute deadline
		if wait := time.Until(deadline); wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-s.stopChan:
				s.finish(nil)
				return
			case <-ctx.Done():
				s.finish(ctx.Err())
				return
			}
		}

		chunk, idle, finished := s.next()
		if finished {
			s.finish(nil)
			return
		}
		if idle {
			// Starved live source: wait for data and restart the schedule
			select {
			case <-s.wake:
				deadline = time.Now()
				continue
			case <-s.stopChan:
				s.finish(nil)
				return
			case <-ctx.Done():
				s.finish(ctx.Err())
				return
			}
		}

		// Stop must also be seen when the deadline has already passed
		select {
		case <-s.stopChan:
			s.finish(nil)
			return
		case <-ctx.Done():
			s.finish(ctx.Err())
			return
		default:
		}

		payload, err := s.encoder.Encode(chunk)
		if err != nil {
			s.finish(fmt.Errorf("failed to encode chunk %d: %w", seq, err))
			return
		}

		if err := s.sink.SendChunk(s.id, seq, payload); err != nil {
			if errors.Is(err, ErrStreamEnded) {
				log.Printf("Stream %s ended by server after %d chunks", s.id, seq)
				s.err = ErrStreamEnded
				s.encoder.Close()
				return
			}
			s.finish(fmt.Errorf("failed to send chunk %d: %w", seq, err))
			return
		}

		if s.config.Debug && seq%20 == 0 {
			log.Printf("[DEBUG] Stream %s sent chunk %d (%d bytes, late by %v)",
				s.id, seq, len(payload), time.Since(deadline))
		}

		seq++
		s.mu.Lock()
		s.sent = seq
		s.mu.Unlock()

		deadline = deadline.Add(s.config.ChunkDuration)
	}
}

// finish stops the stream at the sink and records why the loop ended
func (s *Stream) finish(cause error) {
	s.err = cause
	if err := s.sink.StopStream(s.id); err != nil && s.err == nil {
		s.err = fmt.Errorf("failed to stop stream: %w", err)
	}
	s.encoder.Close()

	s.mu.Lock()
	sent := s.sent
	s.mu.Unlock()
	log.Printf("Stream %s stopped after %d chunks", s.id, sent)
}

// SendClip streams a whole clip, converting it to the configured format.
// Clips longer than the maximum duration are rejected before any stream is
// started.
func SendClip(ctx context.Context, sink Sink, config Config, clip audio.Clip) error {
	maxDuration := config.MaxDuration
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	if d := clip.Duration(); d > maxDuration {
		return fmt.Errorf("%w: %v > %v", ErrTooLong, d, maxDuration)
	}

	if clip.SampleRate != config.Format.SampleRate || clip.Channels != config.Format.Channels {
		clip = resample.Convert(clip, config.Format.SampleRate, config.Format.Channels)
	}

	stream, err := Start(ctx, sink, config)
	if err != nil {
		return err
	}

	if err := stream.Push(clip.Samples); err != nil {
		stream.Stop()
		stream.Wait()
		return err
	}
	stream.CloseSend()

	return stream.Wait()
}
