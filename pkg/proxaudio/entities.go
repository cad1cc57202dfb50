// ABOUTME: Client-side table of entity transforms and speaking flags
// ABOUTME: Fed by entity/transform messages and read by the positioner
package proxaudio

import (
	"sync"

	"github.com/Resonate-Protocol/proxaudio/pkg/spatial"
)

type entityTable struct {
	mu         sync.RWMutex
	transforms map[string]spatial.Transform
	speaking   map[string]bool
}

func newEntityTable() *entityTable {
	return &entityTable{
		transforms: make(map[string]spatial.Transform),
		speaking:   make(map[string]bool),
	}
}

func (t *entityTable) update(entityID string, tr spatial.Transform) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transforms[entityID] = tr
}

// Transform implements spatial.EntityLookup
func (t *entityTable) Transform(entityID string) (spatial.Transform, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.transforms[entityID]
	return tr, ok
}

// Speaking implements spatial.SpeakingIndicator
func (t *entityTable) Speaking(entityID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.speaking[entityID]
}

// SetSpeaking implements spatial.SpeakingIndicator
func (t *entityTable) SetSpeaking(entityID string, speaking bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if speaking {
		t.speaking[entityID] = true
	} else {
		delete(t.speaking, entityID)
	}
}
