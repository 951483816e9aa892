// Package moderation classifies outgoing chat text and turns verdicts into
// credit-score consequences. The pipeline is rate limit, then cheap local
// pattern rules, then the external provider verdict, short-circuiting on
// the first escalation. Provider failures fail open: chat delivery is never
// blocked by provider unavailability.
package moderation

// Severity is the escalation tier driving the penalty and ban decision.
type Severity int

const (
	// SeverityNone: no violation; deltas may still be positive.
	SeverityNone Severity = iota
	// SeverityModerate: apply delta, notify sender, still deliver.
	SeverityModerate
	// SeveritySevere: apply delta, notify sender, still deliver.
	SeveritySevere
	// SeverityCritical: suppress delivery, terminate the session, and ban
	// the originating address for the process lifetime.
	SeverityCritical
)

// String returns the tier name.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityModerate:
		return "moderate"
	case SeveritySevere:
		return "severe"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}
