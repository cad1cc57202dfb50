// ABOUTME: Clip loader that dispatches on file extension or URL
// ABOUTME: Local paths and HTTP(S) URLs are supported
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// MaxFileSize bounds how much encoded data Load will read
const MaxFileSize = 64 << 20

var (
	// ErrUnsupportedFormat is returned for unknown file extensions
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrEmptyClip is returned when a file decodes to no samples
	ErrEmptyClip = errors.New("audio file contains no samples")
)

// Kind identifies a container format
type Kind string

const (
	KindWAV  Kind = "wav"
	KindMP3  Kind = "mp3"
	KindFLAC Kind = "flac"
	KindOgg  Kind = "ogg"
)

// KindFromPath guesses the container format from a path or URL extension
func KindFromPath(path string) (Kind, error) {
	if i := strings.IndexAny(path, "?#"); i >= 0 && strings.Contains(path, "://") {
		path = path[:i]
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return KindWAV, nil
	case ".mp3":
		return KindMP3, nil
	case ".flac":
		return KindFLAC, nil
	case ".ogg", ".oga":
		return KindOgg, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: .wav, .mp3, .flac, .ogg)", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load decodes a file path or HTTP(S) URL into a clip
func Load(pathOrURL string) (audio.Clip, error) {
	kind, err := KindFromPath(pathOrURL)
	if err != nil {
		return audio.Clip{}, err
	}

	var data []byte
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		data, err = fetch(pathOrURL)
	} else {
		data, err = readFile(pathOrURL)
	}
	if err != nil {
		return audio.Clip{}, err
	}

	clip, err := Decode(bytes.NewReader(data), kind)
	if err != nil {
		return audio.Clip{}, err
	}

	log.Printf("Loaded %s: %s (sample rate: %d Hz, channels: %d, duration: %v)",
		strings.ToUpper(string(kind)), filepath.Base(pathOrURL), clip.SampleRate, clip.Channels,
		clip.Duration().Round(time.Millisecond))

	return clip, nil
}

// Decode decodes an in-memory container of the given kind
func Decode(r io.ReadSeeker, kind Kind) (audio.Clip, error) {
	var (
		clip audio.Clip
		err  error
	)

	switch kind {
	case KindWAV:
		clip, err = decodeWAV(r)
	case KindMP3:
		clip, err = decodeMP3(r)
	case KindFLAC:
		clip, err = decodeFLAC(r)
	case KindOgg:
		clip, err = decodeOgg(r)
	default:
		return audio.Clip{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind)
	}
	if err != nil {
		return audio.Clip{}, err
	}

	if clip.Frames() == 0 {
		return audio.Clip{}, ErrEmptyClip
	}
	return clip, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("audio file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	return data, nil
}

func fetch(url string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}
	return data, nil
}
