// ABOUTME: Three-component vector math
// ABOUTME: Value-typed Vec3 and entity Transform
package spatial

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vec3 is a point or direction in world space
type Vec3 struct {
	X, Y, Z float64
}

var (
	// Up is the world up axis
	Up = Vec3{0, 1, 0}
	// DefaultForward is the facing of an unrotated entity
	DefaultForward = Vec3{0, 0, -1}
)

// V builds a vector from a [3]float64, as carried on the wire
func V(a [3]float64) Vec3 {
	return Vec3{a[0], a[1], a[2]}
}

// Array returns the vector as [x, y, z]
func (v Vec3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v × o
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Len returns the Euclidean length
func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// Distance returns the Euclidean distance to o
func (v Vec3) Distance(o Vec3) float64 {
	return v.Sub(o).Len()
}

// Normalize returns the unit vector, or the zero vector unchanged
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// IsZero reports whether all components are zero
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Transform is an entity's world placement
type Transform struct {
	Position Vec3
	Forward  Vec3
}

// Facing returns the unit forward vector, defaulting to -Z
func (t Transform) Facing() Vec3 {
	if t.Forward.IsZero() {
		return DefaultForward
	}
	return t.Forward.Normalize()
}

// Right returns the unit vector to the entity's right in the horizontal plane
func (t Transform) Right() Vec3 {
	r := t.Facing().Cross(Up)
	if r.IsZero() {
		// Looking straight up or down
		return Vec3{1, 0, 0}
	}
	return r.Normalize()
}

// ParseVec3 parses "x,y,z" as given on the command line
func ParseVec3(s string) (Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Vec3{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var out [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Vec3{}, fmt.Errorf("invalid component %q: %w", p, err)
		}
		out[i] = f
	}
	return V(out), nil
}
