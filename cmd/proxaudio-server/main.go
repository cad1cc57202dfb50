// ABOUTME: Entry point for the proximity audio server
// ABOUTME: Loads configuration, applies CLI flags and runs the registry server
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/Resonate-Protocol/proxaudio/internal/config"
	"github.com/Resonate-Protocol/proxaudio/internal/registry"
	"github.com/Resonate-Protocol/proxaudio/internal/server"
	"github.com/Resonate-Protocol/proxaudio/internal/version"
)

var (
	configFile  = flag.String("config", "", "YAML configuration file")
	envFile     = flag.String("env", ".env", "Environment file with PROXAUDIO_* overrides")
	port        = flag.Int("port", 0, "WebSocket server port (overrides config)")
	name        = flag.String("name", "", "Server friendly name (default: hostname-proxaudio-server)")
	logFile     = flag.String("log-file", "", "Log file path (overrides config)")
	radius      = flag.Float64("radius", 0, "Hearing radius in world units (overrides config)")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set up logging
	f, err := os.OpenFile(cfg.Server.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if cfg.Server.NoTUI {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	} else {
		// TUI mode: log only to file
		log.SetOutput(f)
	}

	log.Printf("Starting %s server: %s on port %d", version.String(), cfg.Server.Name, cfg.Server.Port)
	if cfg.Server.Debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", cfg.Server.LogFile)

	srv := server.New(serverConfig(cfg))

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}

// applyFlags overrides configuration with flags given on the command line
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "name":
			cfg.Server.Name = *name
		case "log-file":
			cfg.Server.LogFile = *logFile
		case "radius":
			cfg.Registry.Radius = *radius
		case "debug":
			cfg.Server.Debug = *debug
		case "no-mdns":
			cfg.Discovery.Enabled = !*noMDNS
		case "no-tui":
			cfg.Server.NoTUI = *noTUI
		}
	})

	if cfg.Server.Name == config.Default().Server.Name {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Server.Name = fmt.Sprintf("%s-proxaudio-server", hostname)
	}
}

// serverConfig maps the loaded configuration onto the server and registry
func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Port:       cfg.Server.Port,
		Name:       cfg.Server.Name,
		Path:       cfg.Server.Path,
		EnableMDNS: cfg.Discovery.Enabled,
		Debug:      cfg.Server.Debug,
		UseTUI:     !cfg.Server.NoTUI,
		Registry: registry.Config{
			MaxStreamsPerSource: cfg.Registry.MaxStreamsPerSource,
			IdleTimeout:         cfg.Registry.IdleTimeout,
			TickInterval:        cfg.Registry.TickInterval,
			Policy:              registry.RadiusPolicy{Radius: cfg.Registry.Radius},
			DataRate:            rate.Limit(cfg.Registry.DataRate),
			DataBurst:           cfg.Registry.DataBurst,
			Debug:               cfg.Server.Debug,
		},
	}
}
