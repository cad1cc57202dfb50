// ABOUTME: Directory of connected sockets and entity transforms
// ABOUTME: Implements the registry's view of the world
package server

import (
	"sort"
	"sync"

	"github.com/Resonate-Protocol/proxaudio/internal/registry"
	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
	"github.com/Resonate-Protocol/proxaudio/pkg/spatial"
)

// World tracks connected clients and the last reported transform of each entity
type World struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	transforms map[string]spatial.Transform
}

// NewWorld creates an empty world
func NewWorld() *World {
	return &World{
		clients:    make(map[string]*Client),
		transforms: make(map[string]spatial.Transform),
	}
}

func (w *World) add(c *Client) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients[c.ID] = c
}

// remove drops a client, and its entity's transform when no other socket is bound to it
func (w *World) remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.clients[id]
	if !ok {
		return
	}
	delete(w.clients, id)

	if c.EntityID == "" {
		return
	}
	for _, other := range w.clients {
		if other.EntityID == c.EntityID {
			return
		}
	}
	delete(w.transforms, c.EntityID)
}

func (w *World) client(id string) (*Client, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.clients[id]
	return c, ok
}

// Clients returns connected clients ordered by name then id
func (w *World) Clients() []*Client {
	w.mu.RLock()
	out := make([]*Client, 0, len(w.clients))
	for _, c := range w.clients {
		out = append(out, c)
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UpdateEntity records an entity's transform
func (w *World) UpdateEntity(entityID string, t spatial.Transform) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transforms[entityID] = t
}

// Sockets implements registry.World
func (w *World) Sockets() []registry.Socket {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]registry.Socket, 0, len(w.clients))
	for _, c := range w.clients {
		out = append(out, socketOf(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Socket implements registry.World
func (w *World) Socket(id string) (registry.Socket, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.clients[id]
	if !ok {
		return registry.Socket{}, false
	}
	return socketOf(c), true
}

// Transform implements registry.World
func (w *World) Transform(entityID string) (spatial.Transform, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.transforms[entityID]
	return t, ok
}

func (w *World) closeAll() {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.clients {
		c.Conn.Close()
	}
}

func socketOf(c *Client) registry.Socket {
	return registry.Socket{
		ID:       c.ID,
		EntityID: c.EntityID,
		Listener: c.HasRole(protocol.RoleListener),
	}
}
