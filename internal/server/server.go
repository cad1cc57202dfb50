// ABOUTME: Proximity audio server
// ABOUTME: Accepts websocket clients and relays streams through the registry
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/proxaudio/internal/discovery"
	"github.com/Resonate-Protocol/proxaudio/internal/health"
	"github.com/Resonate-Protocol/proxaudio/internal/metrics"
	"github.com/Resonate-Protocol/proxaudio/internal/registry"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
)

const (
	// DefaultPort is the default HTTP listen port
	DefaultPort = 8927

	// shutdownTimeout bounds graceful HTTP shutdown
	shutdownTimeout = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	Path       string
	EnableMDNS bool
	Debug      bool
	UseTUI     bool
	Registry   registry.Config
}

// Server relays proximity audio between websocket clients
type Server struct {
	config   Config
	serverID string

	upgrader   websocket.Upgrader
	router     *mux.Router
	httpServer *http.Server

	world    *World
	registry *registry.Registry
	metrics  *metrics.Collector
	health   *health.Handler

	mdnsManager *discovery.Manager

	tui       *ServerTUI
	startTime time.Time

	ticking    atomic.Bool
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// New creates a server. Registry defaults apply to zero values in config.Registry.
func New(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Path == "" {
		config.Path = protocol.DefaultPath
	}
	if config.Name == "" {
		config.Name = "proxaudio"
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			// Local network deployments; browsers are not the expected client
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		router:    mux.NewRouter(),
		world:     NewWorld(),
		metrics:   metrics.New(),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}

	regConfig := config.Registry
	regConfig.Metrics = s.metrics
	regConfig.Debug = regConfig.Debug || config.Debug
	s.registry = registry.New(regConfig, s.world, s)

	s.health = health.New(health.Checker{
		Name: "registry",
		Check: func(context.Context) error {
			if !s.ticking.Load() {
				return errors.New("registry is not ticking")
			}
			return nil
		},
	})

	s.routes()
	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the stream registry
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// World returns the connected socket directory
func (s *Server) World() *World {
	return s.world
}

// ID returns the server id sent in server/hello
func (s *Server) ID() string {
	return s.serverID
}

// Start runs the server until Stop is called, the TUI quits or the
// listener fails
func (s *Server) Start() error {
	if s.config.UseTUI {
		s.tui = NewServerTUI()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.config.Name, s.config.Port); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
			Debug:       s.config.Debug,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.ticking.Store(true)
		defer s.ticking.Store(false)
		if err := s.registry.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Printf("WebSocket server listening on %s%s", addr, s.config.Path)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if s.tui != nil {
		g.Go(func() error {
			s.statusLoop(gctx)
			return nil
		})
	}

	g.Go(func() error {
		var tuiQuit <-chan struct{}
		if s.tui != nil {
			tuiQuit = s.tui.QuitChan()
		}

		select {
		case <-s.stopChan:
			log.Printf("Server shutting down...")
		case <-tuiQuit:
			log.Printf("TUI quit requested, shutting down...")
		case <-gctx.Done():
		}

		s.shutdown()
		cancel()
		return nil
	})

	err := g.Wait()
	s.wg.Wait()
	log.Printf("Server stopped cleanly")
	return err
}

// shutdown rejects new connections and closes everything that is open
func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Hijacked websocket connections are not closed by Shutdown
	s.world.closeAll()
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Send queues a JSON message for a socket without blocking
func (s *Server) Send(socketID string, msg protocol.Message) bool {
	client, ok := s.world.client(socketID)
	if !ok {
		return false
	}
	return client.enqueue(msg)
}

// SendBinary queues a binary frame for a socket without blocking
func (s *Server) SendBinary(socketID string, data []byte) bool {
	client, ok := s.world.client(socketID)
	if !ok {
		return false
	}
	return client.enqueue(data)
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShutdown
}
