// ABOUTME: Oto-based audio output implementation
// ABOUTME: Pulls float32 frames from a Renderer with software volume control
package output

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// DeviceBufferDuration is the oto player buffer length
const DeviceBufferDuration = 40 * time.Millisecond

// Oto output implementation using oto library
type Oto struct {
	otoCtx     *oto.Context
	player     *oto.Player
	reader     *renderReader
	sampleRate int
	channels   int
	volume     atomic.Int32
	muted      atomic.Bool
	ready      bool
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	o := &Oto{}
	o.volume.Store(100)
	return o
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int, r Renderer) error {
	// oto only allows one context per process
	if o.otoCtx != nil {
		return fmt.Errorf("audio output already open (%dHz, %d channels)", o.sampleRate, o.channels)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   DeviceBufferDuration,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels

	maxFrames := sampleRate // one second covers any device request
	o.reader = newRenderReader(r, channels, maxFrames, o.gain)

	o.player = o.otoCtx.NewPlayer(o.reader)
	o.player.SetBufferSize(sampleRate * channels * 4 * int(DeviceBufferDuration) / int(time.Second))
	o.player.Play()

	o.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels", sampleRate, channels)

	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	if o.player != nil {
		o.player.Pause()
		if err := o.player.Close(); err != nil {
			return fmt.Errorf("failed to close player: %w", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil && o.ready {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend audio context: %w", err)
		}
		o.ready = false
	}
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume.Store(int32(volume))
	log.Printf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.muted.Store(muted)
	log.Printf("Muted: %v", muted)
}

// GetVolume returns current volume
func (o *Oto) GetVolume() int {
	return int(o.volume.Load())
}

// IsMuted returns mute state
func (o *Oto) IsMuted() bool {
	return o.muted.Load()
}

func (o *Oto) gain() float32 {
	return getVolumeMultiplier(int(o.volume.Load()), o.muted.Load())
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0.0
	}
	return float32(volume) / 100.0
}

// renderReader turns a Renderer into the byte stream oto pulls from
type renderReader struct {
	r        Renderer
	channels int
	buf      []float32
	gain     func() float32
}

func newRenderReader(r Renderer, channels, maxFrames int, gain func() float32) *renderReader {
	return &renderReader{
		r:        r,
		channels: channels,
		buf:      make([]float32, maxFrames*channels),
		gain:     gain,
	}
}

// Read renders whole frames into p as little-endian float32
func (rr *renderReader) Read(p []byte) (int, error) {
	frameBytes := rr.channels * 4
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if n := frames * rr.channels; n > len(rr.buf) {
		frames = len(rr.buf) / rr.channels
	}

	samples := rr.buf[:frames*rr.channels]
	rr.r.Render(samples)

	g := float32(1)
	if rr.gain != nil {
		g = rr.gain()
	}

	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s*g))
	}

	return frames * frameBytes, nil
}
