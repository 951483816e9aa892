// Package world provides the authoritative in-memory plaza state: connected
// players, ambient weather and game time, and the positional invariants that
// every mutation path must preserve.
package world

import "math"

// Position is a point on the ground plane. Height is a client rendering
// concern and is not modeled server-side.
type Position struct {
	X float64
	Z float64
}

// Distance returns the Euclidean distance to other.
func (p Position) Distance(other Position) float64 {
	dx := p.X - other.X
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Clamp returns p with both axes forced into [-halfExtent, +halfExtent].
//
// Precondition: halfExtent must be > 0.
func (p Position) Clamp(halfExtent float64) Position {
	return Position{
		X: clampAxis(p.X, halfExtent),
		Z: clampAxis(p.Z, halfExtent),
	}
}

// InBounds reports whether both axes lie within [-halfExtent, +halfExtent].
func (p Position) InBounds(halfExtent float64) bool {
	return math.Abs(p.X) <= halfExtent && math.Abs(p.Z) <= halfExtent
}

func clampAxis(v, halfExtent float64) float64 {
	if v < -halfExtent {
		return -halfExtent
	}
	if v > halfExtent {
		return halfExtent
	}
	return v
}
