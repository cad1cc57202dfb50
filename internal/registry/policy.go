// ABOUTME: Proximity policy deciding who is in range of a stream source
// ABOUTME: A non-positive radius means every connected listener is in range
package registry

import "github.com/Resonate-Protocol/proxaudio/pkg/spatial"

// DefaultRadius is the hearing distance in world units
const DefaultRadius = 64.0

// Policy decides whether a listener is in range of a source
type Policy interface {
	// InRange is called with ok=false for whichever transform is unknown
	InRange(listener spatial.Transform, listenerKnown bool, source spatial.Transform, sourceKnown bool) bool
}

// RadiusPolicy admits listeners within Radius of the source.
// Radius <= 0 treats every connected listener as in range.
type RadiusPolicy struct {
	Radius float64
}

// InRange implements Policy
func (p RadiusPolicy) InRange(listener spatial.Transform, listenerKnown bool, source spatial.Transform, sourceKnown bool) bool {
	if p.Radius <= 0 {
		return true
	}
	if !listenerKnown || !sourceKnown {
		return false
	}
	return listener.Position.Distance(source.Position) <= p.Radius
}
