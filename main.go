// ABOUTME: Entry point for the proximity audio listener
// ABOUTME: Parses CLI flags, joins the world and plays nearby streams
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/proxaudio/internal/discovery"
	"github.com/Resonate-Protocol/proxaudio/internal/ui"
	"github.com/Resonate-Protocol/proxaudio/internal/version"
	"github.com/Resonate-Protocol/proxaudio/pkg/audio/output"
	"github.com/Resonate-Protocol/proxaudio/pkg/proxaudio"
	"github.com/Resonate-Protocol/proxaudio/pkg/spatial"
)

var (
	serverAddr  = flag.String("server", "", "Manual server address host:port (skip mDNS)")
	path        = flag.String("path", "", "WebSocket path on the server (default /proxaudio)")
	name        = flag.String("name", "", "Listener friendly name (default: hostname-proxaudio-listener)")
	entity      = flag.String("entity", "", "Entity this listener hears as (empty: hear every stream)")
	pos         = flag.String("pos", "0,0,0", "Listener position x,y,z")
	facing      = flag.String("facing", "0,0,-1", "Listener forward direction x,y,z")
	outputName  = flag.String("output", "oto", "Audio output: oto, portaudio or null")
	bufferMs    = flag.Int("buffer-ms", 100, "Jitter threshold in milliseconds")
	logFile     = flag.String("log-file", "proxaudio-listener.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	position, err := spatial.ParseVec3(*pos)
	if err != nil {
		log.Fatalf("invalid -pos: %v", err)
	}
	forward, err := spatial.ParseVec3(*facing)
	if err != nil {
		log.Fatalf("invalid -facing: %v", err)
	}

	listenerName := *name
	if listenerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		listenerName = fmt.Sprintf("%s-proxaudio-listener", hostname)
	}

	if !useTUI {
		log.Printf("Starting %s listener: %s", version.String(), listenerName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverAddress, serverPath := *serverAddr, *path
	if serverAddress == "" {
		log.Printf("Starting server discovery...")
		findCtx, findCancel := context.WithTimeout(ctx, 10*time.Second)
		server, err := discovery.FindServer(findCtx)
		findCancel()
		if err != nil {
			log.Fatalf("Server discovery failed: %v", err)
		}
		serverAddress = server.Addr()
		if serverPath == "" {
			serverPath = server.Path
		}
		log.Printf("Discovered %s at %s", server.Name, serverAddress)
	}

	out, err := output.New(*outputName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	listener := proxaudio.NewListener(proxaudio.ListenerConfig{
		ServerAddr:      serverAddress,
		Path:            serverPath,
		Name:            listenerName,
		EntityID:        *entity,
		Position:        position.Array(),
		Forward:         forward.Array(),
		Output:          out,
		JitterThreshold: time.Duration(*bufferMs) * time.Millisecond,
		Debug:           *debug,
	})

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls

	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(controls)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
		p := position.Array()
		tuiProg.Send(ui.StatusMsg{
			ServerName: serverAddress,
			Name:       listenerName,
			EntityID:   *entity,
			Position:   &p,
		})
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- listener.Run(ctx)
	}()

	if tuiProg != nil {
		go handleControls(ctx, listener, out, forward.Array(), controls)
		go statusLoop(ctx, listener, tuiProg)
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var quit <-chan struct{}
	if controls != nil {
		quit = controls.Quit
	}

	select {
	case <-quit:
		log.Printf("Received quit signal from TUI")
		cancel()
		err = <-runErr
	case sig := <-sigChan:
		log.Printf("Received %v signal, shutting down", sig)
		cancel()
		err = <-runErr
	case err = <-runErr:
	}

	if tuiProg != nil {
		tuiProg.Quit()
	}
	if err != nil {
		log.Fatalf("Listener error: %v", err)
	}
	log.Printf("Listener stopped")
}

// volumeSetter is implemented by outputs with a software volume stage
type volumeSetter interface {
	SetVolume(volume int)
	SetMuted(muted bool)
}

// handleControls applies volume and movement input from the TUI
func handleControls(ctx context.Context, listener *proxaudio.Listener, out output.Output, forward [3]float64, controls *ui.Controls) {
	vs, hasVolume := out.(volumeSetter)
	for {
		select {
		case vol := <-controls.Changes:
			log.Printf("Volume change: %d%%, muted=%v", vol.Volume, vol.Muted)
			if hasVolume {
				vs.SetVolume(vol.Volume)
				vs.SetMuted(vol.Muted)
			}
		case mv := <-controls.Moves:
			if err := listener.Move(mv.Position, forward); err != nil {
				log.Printf("Failed to report position: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// statusLoop periodically pushes stream state to the TUI
func statusLoop(ctx context.Context, listener *proxaudio.Listener, prog *tea.Program) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	connected := false
	for {
		select {
		case <-ticker.C:
			streams := listener.Streams()
			rows := make([]ui.StreamRow, 0, len(streams))
			for _, s := range streams {
				rows = append(rows, ui.StreamRow{
					StreamID:  shortID(s.StreamID),
					EntityID:  s.SourceEntityID,
					Speaking:  listener.Speaking(s.SourceEntityID),
					Playing:   s.Stats.Playing,
					Buffered:  s.Stats.Buffered,
					Underruns: s.Stats.Underruns,
					Dropped:   s.Stats.DroppedChunks + s.Stats.OverwrittenFrames,
				})
			}
			connected = listener.Connected()
			prog.Send(ui.StatusMsg{
				Connected:  &connected,
				Streams:    rows,
				Goroutines: runtime.NumGoroutine(),
			})
		case <-ctx.Done():
			return
		}
	}
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
