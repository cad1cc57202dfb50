// ABOUTME: HTTP routes served next to the websocket endpoint
// ABOUTME: Stream snapshot, Prometheus metrics and health probes
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Resonate-Protocol/proxaudio/internal/registry"
	"github.com/Resonate-Protocol/proxaudio/internal/version"
)

// StreamsResponse is the body of GET /streams
type StreamsResponse struct {
	ServerID string                `json:"server_id"`
	Name     string                `json:"name"`
	Version  string                `json:"version"`
	Clients  int                   `json:"clients"`
	Streams  []registry.StreamInfo `json:"streams"`
}

func (s *Server) routes() {
	s.router.HandleFunc(s.config.Path, s.handleWebSocket)
	s.router.HandleFunc("/streams", s.handleStreams).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.health.Register(s.router)
}

func (s *Server) handleStreams(w http.ResponseWriter, _ *http.Request) {
	resp := StreamsResponse{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  version.Version,
		Clients:  len(s.world.Clients()),
		Streams:  s.registry.Streams(),
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Error encoding streams: %v", err)
	}
}
