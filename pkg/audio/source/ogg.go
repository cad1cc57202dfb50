// ABOUTME: Ogg Vorbis decoding via jfreymuth/oggvorbis
// ABOUTME: Vorbis decodes straight to interleaved float32
package source

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

func decodeOgg(r io.Reader) (audio.Clip, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}

	return audio.Clip{
		Samples:    samples,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}
