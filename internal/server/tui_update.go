// ABOUTME: TUI update helpers for server
// ABOUTME: Periodically snapshots sockets and streams into the TUI
package server

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// statusLoop pushes a status snapshot to the TUI every second
func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		s.updateTUI()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// updateTUI sends current server state to the TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}

func (s *Server) status() ServerStatus {
	clients := s.world.Clients()
	infos := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		infos = append(infos, ClientInfo{
			Name:     c.Name,
			ID:       c.ID,
			EntityID: c.EntityID,
			Roles:    strings.Join(c.Roles, ","),
		})
	}

	streams := s.registry.Streams()
	rows := make([]StreamRow, 0, len(streams))
	for _, st := range streams {
		rows = append(rows, StreamRow{
			ID:        st.ID,
			EntityID:  st.SourceEntityID,
			Format:    fmt.Sprintf("%s %d Hz %dch", st.Format.Encoding, st.Format.SampleRate, st.Format.Channels),
			Listeners: len(st.Listeners),
			Chunks:    st.Chunks,
		})
	}

	return ServerStatus{
		Name:    s.config.Name,
		Port:    s.config.Port,
		Clients: infos,
		Streams: rows,
	}
}
