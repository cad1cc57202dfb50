// ABOUTME: Real-time mixer summing playback voices
// ABOUTME: Voice list is swapped copy-on-write so rendering never locks
package playback

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Mixer sums voices into device blocks. It satisfies output.Renderer.
type Mixer struct {
	sampleRate int
	channels   int

	mu     sync.Mutex // serializes writers
	voices atomic.Pointer[[]*Voice]

	blocks  atomic.Int64
	clipped atomic.Int64
}

// NewMixer creates a mixer for the device format
func NewMixer(sampleRate, channels int) *Mixer {
	m := &Mixer{
		sampleRate: sampleRate,
		channels:   channels,
	}
	empty := []*Voice{}
	m.voices.Store(&empty)
	return m
}

// SampleRate returns the device rate
func (m *Mixer) SampleRate() int { return m.sampleRate }

// Channels returns the device channel count
func (m *Mixer) Channels() int { return m.channels }

// Add starts mixing v
func (m *Mixer) Add(v *Voice) error {
	if v.channels != m.channels || v.sampleRate != m.sampleRate {
		return fmt.Errorf("voice renders %dHz %dch, mixer is %dHz %dch",
			v.sampleRate, v.channels, m.sampleRate, m.channels)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := *m.voices.Load()
	next := make([]*Voice, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, v)
	m.voices.Store(&next)
	return nil
}

// Remove stops mixing v. Once Remove returns, no later Render touches v.
func (m *Mixer) Remove(v *Voice) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := *m.voices.Load()
	next := make([]*Voice, 0, len(cur))
	found := false
	for _, other := range cur {
		if other == v {
			found = true
			continue
		}
		next = append(next, other)
	}
	if found {
		m.voices.Store(&next)
	}
	return found
}

// Len returns the number of voices being mixed
func (m *Mixer) Len() int {
	return len(*m.voices.Load())
}

// Render fills out with the sum of all voices, clamped to [-1, 1]
func (m *Mixer) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	voices := *m.voices.Load()
	for _, v := range voices {
		v.mixInto(out)
	}

	var clipped int64
	for i, s := range out {
		if s > 1 {
			out[i] = 1
			clipped++
		} else if s < -1 {
			out[i] = -1
			clipped++
		}
	}

	m.blocks.Add(1)
	if clipped > 0 {
		m.clipped.Add(clipped)
	}
}

// Blocks returns how many blocks have been rendered
func (m *Mixer) Blocks() int64 { return m.blocks.Load() }

// Clipped returns how many samples were clamped
func (m *Mixer) Clipped() int64 { return m.clipped.Load() }
