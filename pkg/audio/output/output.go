// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for pull-model playback backends
package output

import (
	"fmt"
	"strings"
)

// Renderer fills interleaved float32 frames on demand.
// Render is called from the audio thread and must not block.
type Renderer interface {
	Render(out []float32)
}

// RenderFunc adapts a function to Renderer
type RenderFunc func(out []float32)

// Render calls f(out)
func (f RenderFunc) Render(out []float32) { f(out) }

// Output represents an audio output device
type Output interface {
	// Open initializes the device and starts pulling from r
	Open(sampleRate, channels int, r Renderer) error

	// Close stops playback and releases output resources
	Close() error
}

// New returns the backend with the given name ("oto", "portaudio" or "null")
func New(name string) (Output, error) {
	switch strings.ToLower(name) {
	case "", "oto":
		return NewOto(), nil
	case "portaudio":
		return NewPortAudio(), nil
	case "null":
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown audio output: %s", name)
	}
}
