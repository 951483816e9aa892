// Package movement validates proposed player positions. The check is a
// coarse anti-cheat speed cap, not a physics simulation: it knows nothing
// about networking and operates only on the previous accepted position.
package movement

import "github.com/cory-johannsen/plaza/internal/game/world"

// Validate checks a proposed position against the previous accepted one.
//
// If the Euclidean distance from prev to proposed exceeds maxStep the
// proposal is rejected outright: prev is returned unchanged and corrected
// is true, and the caller should send a correction to the offending
// session only. Otherwise the proposal is clamped into
// [-halfExtent, +halfExtent] on both axes and accepted.
//
// Precondition: halfExtent and maxStep must be > 0; prev must already be
// in bounds.
// Postcondition: The returned position is always within bounds.
func Validate(prev, proposed world.Position, halfExtent, maxStep float64) (world.Position, bool) {
	if prev.Distance(proposed) > maxStep {
		return prev, true
	}
	return proposed.Clamp(halfExtent), false
}
