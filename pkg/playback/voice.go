// ABOUTME: Positional voice wrapping a playback engine
// ABOUTME: Applies per-channel gains ramped across each placement update
package playback

import (
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// MaxBlockFrames is the largest block a voice renders in one pass
const MaxBlockFrames = 4096

// Placement is the gain applied to each output channel, reached linearly
// over Ramp.
type Placement struct {
	Gains [audio.MaxChannels]float32
	Ramp  time.Duration
}

// Voice renders one engine into a mix with positional gains.
// SetPlacement may be called from any goroutine; mixing happens on the
// audio thread.
type Voice struct {
	engine     *Engine
	channels   int
	sampleRate int
	target     atomic.Pointer[Placement]

	// audio thread state
	scratch   []float32
	seen      *Placement
	gains     [audio.MaxChannels]float32
	step      [audio.MaxChannels]float32
	goal      [audio.MaxChannels]float32
	remaining int
}

// NewVoice creates a voice at unity gain
func NewVoice(engine *Engine) *Voice {
	cfg := engine.Config()
	v := &Voice{
		engine:     engine,
		channels:   cfg.OutputChannels,
		sampleRate: cfg.OutputSampleRate,
		scratch:    make([]float32, MaxBlockFrames*cfg.OutputChannels),
	}
	for ch := range v.gains {
		v.gains[ch] = 1
		v.goal[ch] = 1
	}
	return v
}

// Engine returns the wrapped engine
func (v *Voice) Engine() *Engine {
	return v.engine
}

// SetPlacement sets new target gains
func (v *Voice) SetPlacement(p Placement) {
	v.target.Store(&p)
}

// Placement returns the most recent target, or unity gain if none was set
func (v *Voice) Placement() Placement {
	if p := v.target.Load(); p != nil {
		return *p
	}
	var p Placement
	for ch := range p.Gains {
		p.Gains[ch] = 1
	}
	return p
}

// mixInto adds this voice's next block to out
func (v *Voice) mixInto(out []float32) {
	frames := len(out) / v.channels

	for off := 0; off < frames; off += MaxBlockFrames {
		n := frames - off
		if n > MaxBlockFrames {
			n = MaxBlockFrames
		}

		block := v.scratch[:n*v.channels]
		v.engine.Produce(block)
		dst := out[off*v.channels : (off+n)*v.channels]

		v.retarget()
		for i := 0; i < n; i++ {
			base := i * v.channels
			for ch := 0; ch < v.channels; ch++ {
				dst[base+ch] += block[base+ch] * v.gains[ch]
			}
			v.advanceRamp()
		}
	}
}

// retarget picks up a new placement and plans the ramp towards it
func (v *Voice) retarget() {
	p := v.target.Load()
	if p == nil || p == v.seen {
		return
	}
	v.seen = p
	v.goal = p.Gains

	rampFrames := int(p.Ramp.Seconds() * float64(v.sampleRate))
	if rampFrames <= 0 {
		v.gains = p.Gains
		v.remaining = 0
		return
	}

	for ch := range v.gains {
		v.step[ch] = (p.Gains[ch] - v.gains[ch]) / float32(rampFrames)
	}
	v.remaining = rampFrames
}

func (v *Voice) advanceRamp() {
	if v.remaining == 0 {
		return
	}
	v.remaining--
	if v.remaining == 0 {
		v.gains = v.goal
		return
	}
	for ch := range v.gains {
		v.gains[ch] += v.step[ch]
	}
}
