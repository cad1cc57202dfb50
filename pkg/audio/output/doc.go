// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides pull-model Output interface with oto and PortAudio backends
// Package output provides audio playback backends.
//
// Backends pull float32 frames from a Renderer on the device's own thread.
// Renderers must not block or allocate. oto is the default backend; PortAudio
// is available when built with -tags portaudio.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(48000, 2, mixer)
//	defer out.Close()
package output
