package session

import (
	"strings"

	"github.com/easeaico/project-duet/internal/types"
)

// jaccard is the token set similarity of two texts, in [0,1].
func jaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	intersection := 0
	for tok := range ta {
		if tb[tok] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(field, ".,!?;:\"'")] = true
	}
	delete(set, "")
	return set
}

// looping reports whether the candidate message near-duplicates any of the
// last window participant messages. Redirects and other system messages are
// not compared.
func looping(history []types.Message, candidate string, window int, threshold float64) bool {
	seen := 0
	for i := len(history) - 1; i >= 0 && seen < window; i-- {
		msg := history[i]
		if msg.Role != types.RoleAvatar && msg.Role != types.RoleUser {
			continue
		}
		seen++
		if jaccard(msg.Content, candidate) >= threshold {
			return true
		}
	}
	return false
}
