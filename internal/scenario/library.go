// Package scenario holds the immutable library of relationship scenarios.
package scenario

import (
	"fmt"
	"strings"

	"github.com/easeaico/project-duet/internal/types"
)

// library is the built-in template set. Scenarios are immutable; callers get
// copies.
var library = []types.Scenario{
	{
		ID:          "fin-budget-split",
		Category:    types.CategoryFinancial,
		Difficulty:  2,
		Description: "You are planning a shared monthly budget. One of you earns significantly more than the other. Decide how to split rent, groceries, and savings.",
		SuccessCriteria: []string{"agree on a split", "both state what feels fair"},
	},
	{
		ID:          "fin-debt-disclosure",
		Category:    types.CategoryFinancial,
		Difficulty:  4,
		Description: "One partner reveals a large student debt that was never mentioned before. Work through what this means for shared plans.",
		SuccessCriteria: []string{"acknowledge the disclosure", "agree on a repayment approach"},
	},
	{
		ID:          "fam-holiday-hosting",
		Category:    types.CategoryFamily,
		Difficulty:  2,
		Description: "Both families expect you for the same holiday. Decide where you will spend it without promising to be in two places at once.",
		SuccessCriteria: []string{"pick a plan", "each names a concession"},
	},
	{
		ID:          "fam-relocation",
		Category:    types.CategoryFamily,
		Difficulty:  4,
		Description: "An aging parent needs care in another city. Discuss whether to relocate, bring them closer, or arrange care remotely.",
		SuccessCriteria: []string{"agree on a care arrangement", "discuss the cost"},
	},
	{
		ID:          "par-children-question",
		Category:    types.CategoryParenting,
		Difficulty:  3,
		Description: "The topic of having children comes up directly. Share honestly whether and when you each want children.",
		SuccessCriteria: []string{"each states a clear position", "acknowledge any disagreement"},
	},
	{
		ID:          "par-discipline-styles",
		Category:    types.CategoryParenting,
		Difficulty:  5,
		Description: "You disagree sharply about discipline: one of you favors firm rules, the other a permissive approach. Find a shared stance for a concrete situation.",
		SuccessCriteria: []string{"agree on a shared stance", "name the concrete situation"},
	},
	{
		ID:          "life-city-country",
		Category:    types.CategoryLifestyle,
		Difficulty:  2,
		Description: "One of you dreams of the countryside, the other loves the city. Explore where you would actually live together.",
		SuccessCriteria: []string{"name a workable location", "each lists a need it meets"},
	},
	{
		ID:          "life-spending-habits",
		Category:    types.CategoryLifestyle,
		Difficulty:  3,
		Description: "One of you saves every spare coin, the other spends freely on experiences. A costly trip invitation just arrived. Decide together.",
		SuccessCriteria: []string{"decide on the trip", "agree on a spending principle"},
	},
	{
		ID:          "car-job-offer-abroad",
		Category:    types.CategoryCareer,
		Difficulty:  4,
		Description: "One partner receives a dream job offer in another country. Decide what happens to the relationship and the other's career.",
		SuccessCriteria: []string{"reach a decision", "address the other partner's career"},
	},
	{
		ID:          "car-workload-imbalance",
		Category:    types.CategoryCareer,
		Difficulty:  1,
		Description: "One of you has been working late every night for a month. Talk about how the workload is affecting time together.",
		SuccessCriteria: []string{"acknowledge the impact", "agree on one change"},
	},
	{
		ID:          "com-silent-treatment",
		Category:    types.CategoryCommunication,
		Difficulty:  3,
		Description: "After an argument last week, one of you went quiet for days. Discuss how you each handle conflict and what you need instead.",
		SuccessCriteria: []string{"each names their conflict style", "agree on a repair ritual"},
	},
	{
		ID:          "com-social-energy",
		Category:    types.CategoryCommunication,
		Difficulty:  1,
		Description: "One of you wants to host friends every weekend, the other needs quiet recovery time. Plan the next two weekends.",
		SuccessCriteria: []string{"plan both weekends", "respect both energy needs"},
	},
}

// All returns a copy of the full library.
func All() []types.Scenario {
	out := make([]types.Scenario, len(library))
	copy(out, library)
	return out
}

// ByID returns the scenario with the given id.
func ByID(id string) (types.Scenario, error) {
	for _, s := range library {
		if s.ID == id {
			return s, nil
		}
	}
	return types.Scenario{}, fmt.Errorf("unknown scenario %q", id)
}

// MaxDifficulty returns the highest difficulty level safe for the pairing.
// Harder scenarios are reserved for pairs where both profiles show high
// conscientiousness and low neuroticism, so fragile pairings are not
// overwhelmed.
func MaxDifficulty(a, b *types.PersonalityProfile) int {
	if resilient(a) && resilient(b) {
		return 5
	}
	if fragile(a) || fragile(b) {
		return 2
	}
	return 3
}

func resilient(p *types.PersonalityProfile) bool {
	if p == nil {
		return false
	}
	return p.Traits[types.TraitConscientiousness] >= 0.6 && p.Traits[types.TraitNeuroticism] <= 0.4
}

func fragile(p *types.PersonalityProfile) bool {
	if p == nil {
		return true
	}
	return p.Traits[types.TraitNeuroticism] >= 0.7
}

// PickForPair selects the hardest scenario within the pair's difficulty cap,
// optionally constrained to a category.
func PickForPair(a, b *types.PersonalityProfile, category string) types.Scenario {
	limit := MaxDifficulty(a, b)
	var best types.Scenario
	for _, s := range library {
		if category != "" && s.Category != category {
			continue
		}
		if s.Difficulty > limit {
			continue
		}
		if best.ID == "" || s.Difficulty > best.Difficulty {
			best = s
		}
	}
	if best.ID == "" {
		// Nothing within the cap for this category; fall back to the easiest
		// template overall.
		best = library[0]
		for _, s := range library {
			if s.Difficulty < best.Difficulty {
				best = s
			}
		}
	}
	return best
}

// CriteriaMet reports whether every success criterion is touched by the
// conversation so far. A criterion counts as touched when most of its
// keywords appear in the transcript.
func CriteriaMet(s types.Scenario, messages []types.Message) bool {
	if len(s.SuccessCriteria) == 0 {
		return false
	}
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(strings.ToLower(m.Content))
		sb.WriteString(" ")
	}
	transcript := sb.String()

	for _, criterion := range s.SuccessCriteria {
		words := strings.Fields(strings.ToLower(criterion))
		matched := 0
		for _, w := range words {
			if len(w) > 3 && strings.Contains(transcript, w) {
				matched++
			}
		}
		significant := 0
		for _, w := range words {
			if len(w) > 3 {
				significant++
			}
		}
		if significant == 0 || matched*2 < significant {
			return false
		}
	}
	return true
}
