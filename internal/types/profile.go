package types

import "time"

// Trait keys of the five-factor model. Scores are normalized to [0,1].
const (
	TraitOpenness          = "openness"
	TraitConscientiousness = "conscientiousness"
	TraitExtraversion      = "extraversion"
	TraitAgreeableness     = "agreeableness"
	TraitNeuroticism       = "neuroticism"
)

// Communication styles.
const (
	CommDirect     = "direct"
	CommDiplomatic = "diplomatic"
	CommReserved   = "reserved"
	CommExpressive = "expressive"
)

// Conflict resolution styles.
const (
	ConflictCollaborating = "collaborating"
	ConflictCompromising  = "compromising"
	ConflictAvoiding      = "avoiding"
	ConflictCompeting     = "competing"
)

// Memory dimensions. Completeness requires at least one record per dimension.
const (
	DimensionPersonality = "personality"
	DimensionValues      = "values"
	DimensionLifestyle   = "lifestyle"
	DimensionPreferences = "preferences"
)

// RequiredDimensions lists the dimensions a complete profile must cover.
var RequiredDimensions = []string{
	DimensionPersonality,
	DimensionValues,
	DimensionLifestyle,
	DimensionPreferences,
}

// PersonalityProfile is the assembled view of one user's stored personality
// data. It is built from MemoryRecords and mutated only through the memory
// store's write path.
type PersonalityProfile struct {
	UserID string `json:"user_id"`
	// Traits maps trait keys to scores in [0,1].
	Traits map[string]float64 `json:"traits"`
	// Values maps named values to importance weights in [0,1].
	Values             map[string]float64 `json:"values"`
	CommunicationStyle string             `json:"communication_style"`
	ConflictStyle      string             `json:"conflict_style"`
	DealBreakers       []string           `json:"deal_breakers"`
	// Completeness is covered dimensions over required dimensions, in [0,1].
	Completeness float64   `json:"completeness"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MemoryRecord is one atomic fact about a user. Records are immutable once
// written; a later contradicting record supersedes rather than overwrites.
type MemoryRecord struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	// Dimension is one of the memory dimensions above.
	Dimension string `json:"dimension"`
	// Key identifies what the record is about (e.g. "family", "openness").
	// Newest record per key wins when assembling the profile.
	Key     string `json:"key"`
	Content string `json:"content"`
	// Weight is the trait score or value importance carried by the record.
	Weight float64 `json:"weight"`
	// SourceContext is the conversational context the record was taken from.
	SourceContext string `json:"source_context"`
	// DealBreaker marks the record as a hard constraint.
	DealBreaker bool `json:"deal_breaker"`
	// SupersedesID links to an older contradicting record, if any.
	SupersedesID string    `json:"supersedes_id,omitempty"`
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RetrievedRecord is a record with its retrieval score attached.
type RetrievedRecord struct {
	Record MemoryRecord `json:"record"`
	// Score is the blended keyword/semantic relevance in [0,1].
	Score float64 `json:"score"`
}

// Clamp01 bounds a score to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
