// ABOUTME: Entry point for the proximity audio speaker
// ABOUTME: Streams an audio file or a generated tone from one entity
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/proxaudio/internal/discovery"
	"github.com/Resonate-Protocol/proxaudio/internal/version"
	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
	"github.com/Resonate-Protocol/proxaudio/pkg/audio/source"
	"github.com/Resonate-Protocol/proxaudio/pkg/proxaudio"
	"github.com/Resonate-Protocol/proxaudio/pkg/sender"
	"github.com/Resonate-Protocol/proxaudio/pkg/spatial"
)

var (
	serverAddr  = flag.String("server", "", "Manual server address host:port (skip mDNS)")
	path        = flag.String("path", "", "WebSocket path on the server (default /proxaudio)")
	name        = flag.String("name", "", "Speaker friendly name (default: hostname-proxaudio-speaker)")
	entity      = flag.String("entity", "", "Entity the audio comes from (required)")
	pos         = flag.String("pos", "0,0,0", "Speaker position x,y,z")
	facing      = flag.String("facing", "0,0,-1", "Speaker forward direction x,y,z")
	file        = flag.String("file", "", "Audio file or URL to stream (WAV, MP3, FLAC, OGG). Plays a tone when empty")
	tone        = flag.Float64("tone", source.DefaultToneFrequency, "Tone frequency in Hz when no file is given")
	duration    = flag.Duration("duration", 3*time.Second, "Tone duration")
	live        = flag.Bool("live", false, "Generate the tone live until interrupted or the maximum duration")
	sampleRate  = flag.Int("rate", 24000, "Stream sample rate")
	channels    = flag.Int("channels", 1, "Stream channel count (1 or 2)")
	format      = flag.String("format", "s16", "Stream sample format: s16 or f32")
	maxDuration = flag.Duration("max-duration", sender.DefaultMaxDuration, "Longest audio one stream may carry")
	logFile     = flag.String("log-file", "proxaudio-speaker.log", "Log file path")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	if *entity == "" {
		log.Fatalf("-entity is required")
	}

	streamFormat := audio.Format{
		SampleRate: *sampleRate,
		Channels:   *channels,
		Encoding:   audio.SampleFormat(*format),
	}
	if err := streamFormat.Validate(); err != nil {
		log.Fatalf("invalid stream format: %v", err)
	}

	position, err := spatial.ParseVec3(*pos)
	if err != nil {
		log.Fatalf("invalid -pos: %v", err)
	}
	forward, err := spatial.ParseVec3(*facing)
	if err != nil {
		log.Fatalf("invalid -facing: %v", err)
	}

	speakerName := *name
	if speakerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		speakerName = fmt.Sprintf("%s-proxaudio-speaker", hostname)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverAddress, serverPath := *serverAddr, *path
	if serverAddress == "" {
		log.Printf("Starting server discovery...")
		findCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		server, err := discovery.FindServer(findCtx)
		cancel()
		if err != nil {
			log.Fatalf("Server discovery failed: %v", err)
		}
		serverAddress = server.Addr()
		if serverPath == "" {
			serverPath = server.Path
		}
		log.Printf("Discovered %s at %s", server.Name, serverAddress)
	}

	speaker := proxaudio.NewSpeaker(proxaudio.SpeakerConfig{
		ServerAddr:  serverAddress,
		Path:        serverPath,
		Name:        speakerName,
		EntityID:    *entity,
		Position:    position.Array(),
		Forward:     forward.Array(),
		Format:      streamFormat,
		MaxDuration: *maxDuration,
		Debug:       *debug,
	})

	if err := speaker.Connect(ctx); err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer speaker.Close()

	log.Printf("%s speaking as %s at %s", version.String(), *entity, serverAddress)

	if *live {
		err = playLive(ctx, speaker, *tone)
	} else {
		err = playClip(ctx, speaker)
	}

	switch {
	case err == nil:
		log.Printf("Stream finished")
	case errors.Is(err, context.Canceled):
		log.Printf("Interrupted")
	default:
		log.Fatalf("Stream failed: %v", err)
	}
}

// playClip streams a whole file or a fixed-length tone
func playClip(ctx context.Context, speaker *proxaudio.Speaker) error {
	var clip audio.Clip
	if *file != "" {
		var err error
		clip, err = source.Load(*file)
		if err != nil {
			return err
		}
		log.Printf("Loaded %s: %v at %d Hz, %d channels", *file, clip.Duration(), clip.SampleRate, clip.Channels)
	} else {
		format := speaker.Format()
		clip = source.Tone(*tone, *duration, format.SampleRate, format.Channels)
		log.Printf("Playing %.0f Hz tone for %v", *tone, *duration)
	}
	return speaker.Play(ctx, clip)
}

// playLive pushes tone blocks in real time until interrupted
func playLive(ctx context.Context, speaker *proxaudio.Speaker, frequency float64) error {
	stream, err := speaker.Start(ctx)
	if err != nil {
		return err
	}
	log.Printf("Live stream %s started", stream.ID())

	const block = 100 * time.Millisecond
	format := speaker.Format()
	ticker := time.NewTicker(block)
	defer ticker.Stop()

	// Continuous phase across blocks needs a whole number of cycles per block
	cycles := float64(int(frequency*block.Seconds() + 0.5))
	if cycles < 1 {
		cycles = 1
	}
	samples := source.Tone(cycles/block.Seconds(), block, format.SampleRate, format.Channels).Samples

	for {
		if err := stream.Push(samples); err != nil {
			if errors.Is(err, sender.ErrTooLong) {
				log.Printf("Reached maximum stream duration")
				stream.CloseSend()
				return stream.Wait()
			}
			stream.Stop()
			stream.Wait()
			return err
		}

		select {
		case <-ticker.C:
		case <-stream.Done():
			return stream.Wait()
		case <-ctx.Done():
			stream.Stop()
			stream.Wait()
			return ctx.Err()
		}
	}
}
