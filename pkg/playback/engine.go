// ABOUTME: Per-stream playback engine
// ABOUTME: Decodes chunks, gates on jitter, resamples into output blocks
package playback

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/audio/decode"
)

const (
	// DefaultJitterThreshold is how much source audio must be buffered before playback starts
	DefaultJitterThreshold = 100 * time.Millisecond
	// DefaultCapacity is the ring size in source audio
	DefaultCapacity = 2 * time.Second
	// DefaultQueueDepth is the number of decoded chunks that may wait for the audio thread
	DefaultQueueDepth = 64
)

var (
	// ErrClosed is returned when enqueueing into a closed engine
	ErrClosed = errors.New("playback engine closed")
	// ErrQueueFull is returned when the audio thread has fallen behind; the chunk is dropped
	ErrQueueFull = errors.New("playback queue full")
)

// Config holds engine configuration
type Config struct {
	Format           audio.Format  // stream format on the wire
	OutputSampleRate int           // device rate
	OutputChannels   int           // device channel count
	JitterThreshold  time.Duration // source audio buffered before playback (re)starts
	Capacity         time.Duration // ring size
	QueueDepth       int           // decoded chunks in flight to the audio thread
}

// Chunk is one unit of stream data as received from the network
type Chunk struct {
	Sequence uint64
	Payload  []byte
}

// Stats tracks engine metrics
type Stats struct {
	Enqueued          int64
	DroppedChunks     int64
	OutOfOrder        int64
	OverwrittenFrames int64
	Underruns         int64
	AudibleFrames     int64
	SilentFrames      int64
	Buffered          int64
	Playing           bool
}

// Engine buffers one stream and renders it at the device rate.
// Enqueue may be called from any single goroutine; Produce only from the
// audio thread.
type Engine struct {
	config  Config
	decoder decode.Decoder
	queue   chan []float32

	// audio thread state
	ring    *Ring
	ratio   float64
	phase   float64
	jitter  int
	playing bool

	closed    atomic.Bool
	started   atomic.Bool
	lastSeq   atomic.Uint64
	enqueued  atomic.Int64
	dropped   atomic.Int64
	reordered atomic.Int64
	overwrote atomic.Int64
	underruns atomic.Int64
	audible   atomic.Int64
	silent    atomic.Int64
	buffered  atomic.Int64
	isPlaying atomic.Bool
}

// NewEngine creates an engine for a stream
func NewEngine(config Config) (*Engine, error) {
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream format: %w", err)
	}
	if config.OutputSampleRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate: %d", config.OutputSampleRate)
	}
	if config.OutputChannels < 1 || config.OutputChannels > audio.MaxChannels {
		return nil, fmt.Errorf("invalid output channel count: %d", config.OutputChannels)
	}
	if config.JitterThreshold <= 0 {
		config.JitterThreshold = DefaultJitterThreshold
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultQueueDepth
	}

	dec, err := decode.NewPCM(config.Format)
	if err != nil {
		return nil, err
	}

	jitter := config.Format.FramesFor(config.JitterThreshold)
	capacity := config.Format.FramesFor(config.Capacity)
	if capacity < 2*jitter {
		capacity = 2 * jitter
	}

	return &Engine{
		config:  config,
		decoder: dec,
		queue:   make(chan []float32, config.QueueDepth),
		ring:    NewRing(capacity, config.Format.Channels),
		ratio:   float64(config.Format.SampleRate) / float64(config.OutputSampleRate),
		jitter:  jitter,
	}, nil
}

// Config returns the engine configuration with defaults applied
func (e *Engine) Config() Config {
	return e.config
}

// Enqueue decodes a chunk and hands it to the audio thread without blocking.
// Chunks that arrive while the hand-off queue is full are dropped.
func (e *Engine) Enqueue(chunk Chunk) error {
	if e.closed.Load() {
		return ErrClosed
	}

	if e.started.Swap(true) && chunk.Sequence <= e.lastSeq.Load() {
		e.reordered.Add(1)
	} else {
		e.lastSeq.Store(chunk.Sequence)
	}

	samples, err := e.decoder.Decode(chunk.Payload)
	if err != nil {
		return fmt.Errorf("failed to decode chunk %d: %w", chunk.Sequence, err)
	}

	select {
	case e.queue <- samples:
		e.enqueued.Add(1)
		return nil
	default:
		e.dropped.Add(1)
		return ErrQueueFull
	}
}

// Produce fills out with the next block of interleaved output frames and
// returns the number of audible frames written (0 when the block is silence).
// len(out) must be a multiple of the output channel count.
func (e *Engine) Produce(out []float32) int {
	outCh := e.config.OutputChannels
	frames := len(out) / outCh
	out = out[:frames*outCh]

	if e.closed.Load() {
		e.release()
		silence(out)
		return 0
	}

	e.drain()

	if !e.playing {
		if e.ring.Buffered() < e.jitter || e.ring.Buffered() == 0 {
			e.silent.Add(int64(frames))
			silence(out)
			e.publish()
			return 0
		}
		e.playing = true
	}

	if frames == 0 {
		return 0
	}

	end := e.phase + float64(frames)*e.ratio
	consumed := int(end)
	maxIdx := int(e.phase + float64(frames-1)*e.ratio)
	need := consumed
	if maxIdx+1 > need {
		need = maxIdx + 1
	}

	avail := e.ring.Buffered()
	if need > avail {
		// Underrun: never read past valid data
		e.playing = false
		e.phase = 0
		e.underruns.Add(1)
		e.silent.Add(int64(frames))
		silence(out)
		e.publish()
		return 0
	}

	srcCh := e.config.Format.Channels
	last := avail - 1

	for i := 0; i < frames; i++ {
		pos := e.phase + float64(i)*e.ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		next := idx + 1
		if next > last {
			next = last
		}

		base := i * outCh
		switch {
		case srcCh == outCh:
			for ch := 0; ch < outCh; ch++ {
				out[base+ch] = lerp(e.ring.Sample(idx, ch), e.ring.Sample(next, ch), frac)
			}
		case srcCh == 1:
			v := lerp(e.ring.Sample(idx, 0), e.ring.Sample(next, 0), frac)
			for ch := 0; ch < outCh; ch++ {
				out[base+ch] = v
			}
		default:
			// Downmix to fewer output channels
			var sum float32
			for ch := 0; ch < srcCh; ch++ {
				sum += lerp(e.ring.Sample(idx, ch), e.ring.Sample(next, ch), frac)
			}
			v := sum / float32(srcCh)
			for ch := 0; ch < outCh; ch++ {
				out[base+ch] = v
			}
		}
	}

	e.ring.Advance(consumed)
	e.phase = end - math.Floor(end)
	e.audible.Add(int64(frames))
	e.publish()

	return frames
}

// Close retires the engine. The next Produce call releases the ring and
// returns silence. Close is idempotent.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.decoder.Close()
}

// Closed reports whether Close has been called
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// Playing reports whether the gate is open
func (e *Engine) Playing() bool {
	return e.isPlaying.Load()
}

// Stats returns engine statistics
func (e *Engine) Stats() Stats {
	return Stats{
		Enqueued:          e.enqueued.Load(),
		DroppedChunks:     e.dropped.Load(),
		OutOfOrder:        e.reordered.Load(),
		OverwrittenFrames: e.overwrote.Load(),
		Underruns:         e.underruns.Load(),
		AudibleFrames:     e.audible.Load(),
		SilentFrames:      e.silent.Load(),
		Buffered:          e.buffered.Load(),
		Playing:           e.isPlaying.Load(),
	}
}

// drain moves every waiting chunk into the ring
func (e *Engine) drain() {
	for {
		select {
		case samples := <-e.queue:
			if over := e.ring.Write(samples); over > 0 {
				e.overwrote.Add(int64(over))
			}
		default:
			return
		}
	}
}

func (e *Engine) publish() {
	e.buffered.Store(int64(e.ring.Buffered()))
	e.isPlaying.Store(e.playing)
}

func (e *Engine) release() {
	if e.ring == nil {
		return
	}
	e.ring = nil
	e.playing = false
	e.buffered.Store(0)
	e.isPlaying.Store(false)
}

func lerp(a, b, frac float32) float32 {
	return a + (b-a)*frac
}

func silence(out []float32) {
	for i := range out {
		out[i] = 0
	}
}
