// ABOUTME: Listener membership deltas and their dispatcher
// ABOUTME: Entered sockets get a start notification, left sockets a stop
package registry

import (
	"sort"

	"github.com/Resonate-Protocol/proxaudio/pkg/protocol"
)

// DeltaKind tags a membership change
type DeltaKind int

const (
	// Entered means the socket joined a stream's listener set
	Entered DeltaKind = iota
	// Left means the socket left a stream's listener set
	Left
)

func (k DeltaKind) String() string {
	switch k {
	case Entered:
		return "entered"
	case Left:
		return "left"
	default:
		return "unknown"
	}
}

// Delta is one membership change for one stream
type Delta struct {
	Kind     DeltaKind
	StreamID string
	SocketID string
	start    protocol.StreamStart
}

// diffMembers returns the deltas that turn old into next, in socket order
func diffMembers(s *stream, old, next map[string]struct{}) []Delta {
	var deltas []Delta
	for id := range next {
		if _, ok := old[id]; !ok {
			deltas = append(deltas, Delta{Kind: Entered, StreamID: s.id, SocketID: id, start: s.startMessage()})
		}
	}
	for id := range old {
		if _, ok := next[id]; !ok {
			deltas = append(deltas, Delta{Kind: Left, StreamID: s.id, SocketID: id})
		}
	}

	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].SocketID != deltas[j].SocketID {
			return deltas[i].SocketID < deltas[j].SocketID
		}
		return deltas[i].Kind < deltas[j].Kind
	})
	return deltas
}

// dispatcher turns deltas into notifications
type dispatcher struct {
	transport Transport
	metrics   Metrics
}

// dispatch sends one notification per delta and returns the deltas whose
// notification was queued. A refused delta must not be applied so the next
// tick finds the same difference and retries it.
func (d dispatcher) dispatch(deltas []Delta) (sent, refused []Delta) {
	for _, delta := range deltas {
		var msg protocol.Message
		switch delta.Kind {
		case Entered:
			msg = protocol.Message{Type: protocol.TypeStreamStart, Payload: delta.start}
		case Left:
			msg = protocol.Message{Type: protocol.TypeStreamStop, Payload: protocol.StreamStop{StreamID: delta.StreamID}}
		default:
			continue
		}

		if !d.transport.Send(delta.SocketID, msg) {
			refused = append(refused, delta)
			continue
		}
		sent = append(sent, delta)
		if delta.Kind == Entered {
			d.metrics.Notification("start")
		} else {
			d.metrics.Notification("stop")
		}
	}
	return sent, refused
}
