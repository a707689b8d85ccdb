package types

import "time"

// Compatibility dimensions.
const (
	DimCommunication      = "communication"
	DimValues             = "values"
	DimCollaboration      = "collaboration"
	DimConflictResolution = "conflict_resolution"
)

// ScoredDimensions lists all compatibility dimensions in report order.
var ScoredDimensions = []string{
	DimCommunication,
	DimValues,
	DimCollaboration,
	DimConflictResolution,
}

// Trend labels for a user pair's report history.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// DetectedConflict is an explicit disagreement captured verbatim from the
// conversation. Conflicts are data points, never discarded as noise.
type DetectedConflict struct {
	Sequence int    `json:"sequence"`
	SenderID string `json:"sender_id"`
	// Excerpt is the literal message content that held a value against
	// scenario pressure.
	Excerpt string `json:"excerpt"`
	Topic   string `json:"topic,omitempty"`
}

// CompatibilityReport is the finalized outcome of one session. Reports are
// append-only history; they are never mutated after generation.
type CompatibilityReport struct {
	SessionID string `json:"session_id"`
	UserA     string `json:"user_a"`
	UserB     string `json:"user_b"`
	// Overall is the mean of dimension scores, in [0,1].
	Overall float64 `json:"overall"`
	// Dimensions maps dimension name to a score in [0,1].
	Dimensions map[string]float64 `json:"dimensions"`
	// Insights justify each dimension score with a literal conversation
	// excerpt.
	Insights  []string           `json:"insights"`
	Conflicts []DetectedConflict `json:"conflicts"`
	// Partial marks reports computed from an aborted or timed-out session.
	Partial     bool      `json:"partial,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// PartialReport is the scorer's running view after each message.
type PartialReport struct {
	SessionID  string             `json:"session_id"`
	Overall    float64            `json:"overall"`
	Dimensions map[string]float64 `json:"dimensions"`
	MessageSeq int                `json:"message_seq"`
}

// PairKey returns the canonical ordering of a user pair for report indexing.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
