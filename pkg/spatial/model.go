// ABOUTME: Panner model turning transforms into channel gains
// ABOUTME: Inverse distance rolloff, directivity cone and equal-power pan
package spatial

import (
	"math"

	"github.com/Resonate-Protocol/proxaudio/pkg/audio"
)

// Model holds panner parameters
type Model struct {
	RefDistance   float64 // distance at which rolloff starts
	MaxDistance   float64 // distance beyond which gain stops falling
	Rolloff       float64 // inverse rolloff factor
	ConeInner     float64 // full-gain cone, degrees
	ConeOuter     float64 // cone edge, degrees
	ConeOuterGain float64 // gain outside the outer cone
}

// DefaultModel returns the parameters used for voice streams
func DefaultModel() Model {
	return Model{
		RefDistance:   1,
		MaxDistance:   10000,
		Rolloff:       1,
		ConeInner:     180,
		ConeOuter:     300,
		ConeOuterGain: 0.4,
	}
}

// DistanceGain returns the inverse distance attenuation at d
func (m Model) DistanceGain(d float64) float64 {
	ref := m.RefDistance
	if ref <= 0 {
		ref = 1
	}
	if m.MaxDistance > 0 && d > m.MaxDistance {
		d = m.MaxDistance
	}
	if d < ref {
		d = ref
	}
	return ref / (ref + m.Rolloff*(d-ref))
}

// ConeGain returns the directivity gain of source heard at listenerPos
func (m Model) ConeGain(source Transform, listenerPos Vec3) float64 {
	toListener := listenerPos.Sub(source.Position)
	if toListener.IsZero() || m.ConeInner >= 360 {
		return 1
	}

	cos := source.Facing().Dot(toListener.Normalize())
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	angle := math.Acos(cos) * 180 / math.Pi

	inner := m.ConeInner / 2
	outer := m.ConeOuter / 2
	switch {
	case angle <= inner:
		return 1
	case angle >= outer || outer <= inner:
		return m.ConeOuterGain
	default:
		x := (angle - inner) / (outer - inner)
		return 1 + (m.ConeOuterGain-1)*x
	}
}

// Pan returns equal-power left and right gains for a source at sourcePos
func (m Model) Pan(listener Transform, sourcePos Vec3) (left, right float64) {
	dir := sourcePos.Sub(listener.Position)
	x := 0.0
	if !dir.IsZero() {
		x = dir.Normalize().Dot(listener.Right())
	}

	p := (x + 1) / 2
	return math.Cos(p * math.Pi / 2), math.Sin(p * math.Pi / 2)
}

// Gains returns the per-channel gains of source heard by listener on a
// device with the given channel count
func (m Model) Gains(listener, source Transform, channels int) [audio.MaxChannels]float32 {
	g := m.DistanceGain(listener.Position.Distance(source.Position)) *
		m.ConeGain(source, listener.Position)

	var out [audio.MaxChannels]float32
	if channels < 2 {
		out[0] = float32(g)
		return out
	}

	l, r := m.Pan(listener, source.Position)
	out[0] = float32(g * l)
	out[1] = float32(g * r)
	return out
}
