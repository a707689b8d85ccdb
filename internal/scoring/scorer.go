// Package scoring turns a conversation transcript into compatibility
// scores. Classification is lexical and deterministic: the same transcript
// always produces the same report.
package scoring

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/easeaico/project-duet/internal/types"
)

// ErrAlreadyFinalized is returned when Finalize is called twice.
var ErrAlreadyFinalized = errors.New("report already finalized")

// Scorer accumulates per-dimension compatibility scores over one session.
// It is fed messages in sequence order and owns all of its state; nothing
// mutates a score except Update.
type Scorer struct {
	sessionID string
	userA     string
	userB     string
	smoothing float64
	// valueTerms are significant words from both participants' stated
	// values and deal-breakers.
	valueTerms []string

	scores    map[string]float64
	observed  map[string]bool
	evidence  map[string]string
	conflicts []types.DetectedConflict
	lastSeq   int
	finalized bool
}

// NewScorer creates a Scorer for one session between userA and userB.
func NewScorer(sessionID, userA, userB string, smoothing float64, valueTerms []string) *Scorer {
	if smoothing <= 0 || smoothing >= 1 {
		smoothing = 0.2
	}
	a, b := types.PairKey(userA, userB)
	return &Scorer{
		sessionID:  sessionID,
		userA:      a,
		userB:      b,
		smoothing:  smoothing,
		valueTerms: valueTerms,
		scores:     make(map[string]float64),
		observed:   make(map[string]bool),
		evidence:   make(map[string]string),
	}
}

// ValueTerms collects the significant words from the participants' stated
// values and deal-breakers, for value-alignment classification.
func ValueTerms(profiles ...*types.PersonalityProfile) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(text string) {
		for _, word := range strings.Fields(strings.ToLower(text)) {
			if len(word) > 3 && !seen[word] {
				seen[word] = true
				terms = append(terms, word)
			}
		}
	}
	for _, p := range profiles {
		if p == nil {
			continue
		}
		for name := range p.Values {
			add(name)
		}
		for _, db := range p.DealBreakers {
			add(db)
		}
	}
	return terms
}

// Update folds one message into the accumulator and returns the running
// partial report. Messages arriving out of sequence order are ignored, and
// facilitator messages carry no score signal.
func (s *Scorer) Update(msg types.Message) types.PartialReport {
	if s.finalized || msg.Sequence <= s.lastSeq {
		return s.partial()
	}
	s.lastSeq = msg.Sequence

	if msg.Role != types.RoleAvatar && msg.Role != types.RoleUser {
		return s.partial()
	}
	if msg.Fallback {
		return s.partial()
	}

	disagrees := msg.Emotion == types.EmotionConflict || containsAny(msg.Content, disagreementMarkers)
	escalates := containsAny(msg.Content, escalationMarkers)
	resolves := containsAny(msg.Content, resolutionMarkers)
	touchesValues := s.touchesValueTerm(msg.Content)

	switch {
	case containsAny(msg.Content, positiveMarkers):
		s.observe(types.DimCommunication, 0.9, msg.Content)
	case containsAny(msg.Content, negativeMarkers):
		s.observe(types.DimCommunication, 0.15, msg.Content)
	default:
		s.observe(types.DimCommunication, 0.55, msg.Content)
	}

	if touchesValues {
		if disagrees {
			s.observe(types.DimValues, 0.2, msg.Content)
		} else {
			s.observe(types.DimValues, 0.85, msg.Content)
		}
	}

	if containsAny(msg.Content, cooperativeMarkers) {
		s.observe(types.DimCollaboration, 0.9, msg.Content)
	} else if escalates {
		s.observe(types.DimCollaboration, 0.1, msg.Content)
	}

	if resolves {
		s.observe(types.DimConflictResolution, 0.9, msg.Content)
	} else if disagrees || escalates {
		s.observe(types.DimConflictResolution, 0.25, msg.Content)
	}

	if disagrees {
		s.conflicts = append(s.conflicts, types.DetectedConflict{
			Sequence: msg.Sequence,
			SenderID: msg.SenderID,
			Excerpt:  msg.Content,
			Topic:    s.matchedValueTerm(msg.Content),
		})
	}

	return s.partial()
}

// Finalize seals the accumulator into an immutable report. It succeeds
// exactly once.
func (s *Scorer) Finalize(session *types.ConversationSession) (types.CompatibilityReport, error) {
	if s.finalized {
		return types.CompatibilityReport{}, ErrAlreadyFinalized
	}
	s.finalized = true

	dims := make(map[string]float64, len(types.ScoredDimensions))
	insights := make([]string, 0, len(types.ScoredDimensions))
	total := 0.0
	for _, dim := range types.ScoredDimensions {
		score := 0.5
		if s.observed[dim] {
			score = types.Clamp01(s.scores[dim])
		}
		dims[dim] = score
		total += score
		insights = append(insights, s.insight(dim, score))
	}

	return types.CompatibilityReport{
		SessionID:   s.sessionID,
		UserA:       s.userA,
		UserB:       s.userB,
		Overall:     total / float64(len(types.ScoredDimensions)),
		Dimensions:  dims,
		Insights:    insights,
		Conflicts:   s.conflicts,
		Partial:     session != nil && session.Status != types.StatusCompleted,
		GeneratedAt: time.Now(),
	}, nil
}

// Conflicts returns the disagreements captured so far.
func (s *Scorer) Conflicts() []types.DetectedConflict {
	return s.conflicts
}

func (s *Scorer) observe(dim string, value float64, excerpt string) {
	if !s.observed[dim] {
		s.observed[dim] = true
		s.scores[dim] = value
	} else {
		s.scores[dim] = (1-s.smoothing)*s.scores[dim] + s.smoothing*value
	}
	s.evidence[dim] = excerpt
}

func (s *Scorer) partial() types.PartialReport {
	dims := make(map[string]float64, len(s.scores))
	total := 0.0
	for _, dim := range types.ScoredDimensions {
		score := 0.5
		if s.observed[dim] {
			score = types.Clamp01(s.scores[dim])
		}
		dims[dim] = score
		total += score
	}
	return types.PartialReport{
		SessionID:  s.sessionID,
		Overall:    total / float64(len(types.ScoredDimensions)),
		Dimensions: dims,
		MessageSeq: s.lastSeq,
	}
}

func (s *Scorer) insight(dim string, score float64) string {
	band := "mixed signals"
	switch {
	case score >= 0.7:
		band = "a strong match"
	case score < 0.4:
		band = "a clear friction point"
	}
	excerpt, ok := s.evidence[dim]
	if !ok {
		return fmt.Sprintf("%s: no direct signal in this conversation", dim)
	}
	return fmt.Sprintf("%s: %s, e.g. %q", dim, band, truncate(excerpt, 160))
}

func (s *Scorer) touchesValueTerm(content string) bool {
	return s.matchedValueTerm(content) != ""
}

func (s *Scorer) matchedValueTerm(content string) string {
	lowered := strings.ToLower(content)
	for _, term := range s.valueTerms {
		if strings.Contains(lowered, term) {
			return term
		}
	}
	return ""
}

// truncate cuts at a rune boundary so excerpts stay valid UTF-8.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
