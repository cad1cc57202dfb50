// ABOUTME: Per-frame positioner for attached stream voices
// ABOUTME: Re-aims every voice from its source entity's transform each frame
package spatial

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/proxaudio/pkg/playback"
)

// DefaultFrameRate is how often Run updates placements
const DefaultFrameRate = 60

// EntityLookup resolves an entity's current transform
type EntityLookup interface {
	Transform(entityID string) (Transform, bool)
}

// SpeakingIndicator is the "currently speaking" state a world exposes
type SpeakingIndicator interface {
	Speaking(entityID string) bool
	SetSpeaking(entityID string, speaking bool)
}

// Node receives placements; *playback.Voice implements it
type Node interface {
	SetPlacement(p playback.Placement)
}

// Config holds positioner configuration
type Config struct {
	Entities  EntityLookup
	Indicator SpeakingIndicator // optional
	Model     Model
	Channels  int // device channel count
	Debug     bool
}

type attachment struct {
	entityID string
	last     Transform
	seen     bool
}

// speakState remembers an entity's indicator before its first attachment
type speakState struct {
	count int
	was   bool
}

// Positioner keeps attached nodes aimed at their source entities
type Positioner struct {
	config Config

	mu       sync.Mutex
	listener string
	attached map[Node]*attachment
	speakers map[string]*speakState
}

// NewPositioner creates a positioner
func NewPositioner(config Config) *Positioner {
	if config.Model == (Model{}) {
		config.Model = DefaultModel()
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}

	return &Positioner{
		config:   config,
		attached: make(map[Node]*attachment),
		speakers: make(map[string]*speakState),
	}
}

// SetListener sets the entity whose ears the mix is rendered for
func (p *Positioner) SetListener(entityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = entityID
}

// Attach starts aiming node at sourceEntityID and marks the entity speaking.
// Re-attaching a node moves it to the new entity.
func (p *Positioner) Attach(node Node, sourceEntityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.attached[node]; ok {
		if prev.entityID == sourceEntityID {
			return
		}
		p.restoreLocked(node, prev)
	}

	a := &attachment{entityID: sourceEntityID}
	p.attached[node] = a

	st, ok := p.speakers[sourceEntityID]
	if !ok {
		st = &speakState{}
		if ind := p.config.Indicator; ind != nil {
			st.was = ind.Speaking(sourceEntityID)
			ind.SetSpeaking(sourceEntityID, true)
		}
		p.speakers[sourceEntityID] = st
	}
	st.count++

	// Place immediately so the first audible block is already positioned
	p.updateLocked(node, a, 0)

	if p.config.Debug {
		log.Printf("[DEBUG] Positioner attached to entity %s", sourceEntityID)
	}
}

// Detach stops updating node and restores the entity's speaking state
func (p *Positioner) Detach(node Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.attached[node]
	if !ok {
		return
	}
	p.restoreLocked(node, a)

	if p.config.Debug {
		log.Printf("[DEBUG] Positioner detached from entity %s", a.entityID)
	}
}

// Attached returns the number of attached nodes
func (p *Positioner) Attached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attached)
}

// UpdatePerFrame pushes a fresh placement to every attached node, ramped
// across dt
func (p *Positioner) UpdatePerFrame(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for node, a := range p.attached {
		p.updateLocked(node, a, dt)
	}
}

// Run calls UpdatePerFrame at frameRate until ctx is done
func (p *Positioner) Run(ctx context.Context, frameRate int) error {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	interval := time.Second / time.Duration(frameRate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			p.UpdatePerFrame(now.Sub(last))
			last = now
		}
	}
}

func (p *Positioner) updateLocked(node Node, a *attachment, dt time.Duration) {
	src, ok := p.config.Entities.Transform(a.entityID)
	if !ok {
		if !a.seen {
			return
		}
		// Hold the last known placement
		src = a.last
	}
	a.last = src
	a.seen = true

	var ears Transform
	if p.listener != "" {
		if t, ok := p.config.Entities.Transform(p.listener); ok {
			ears = t
		}
	}

	node.SetPlacement(playback.Placement{
		Gains: p.config.Model.Gains(ears, src, p.config.Channels),
		Ramp:  dt,
	})
}

// restoreLocked drops the attachment; the last one for an entity restores
// its speaking indicator
func (p *Positioner) restoreLocked(node Node, a *attachment) {
	delete(p.attached, node)

	st, ok := p.speakers[a.entityID]
	if !ok {
		return
	}
	st.count--
	if st.count > 0 {
		return
	}
	delete(p.speakers, a.entityID)
	if ind := p.config.Indicator; ind != nil {
		ind.SetSpeaking(a.entityID, st.was)
	}
}
