package scoring

import "strings"

// Lexical markers used to classify message tone. Classification is
// deterministic so a replayed transcript always yields the same report.
var (
	positiveMarkers = []string{
		"love", "great", "wonderful", "appreciate", "happy", "glad",
		"excited", "thank", "agree with you", "that makes sense",
		"good point", "i like",
	}
	negativeMarkers = []string{
		"hate", "terrible", "awful", "annoyed", "frustrated", "angry",
		"ridiculous", "never listen", "whatever", "forget it",
	}
	cooperativeMarkers = []string{
		"let's", "we could", "how about", "together", "compromise",
		"middle ground", "what if we", "we can", "our plan",
	}
	disagreementMarkers = []string{
		"i disagree", "i don't agree", "i can't agree", "i cannot agree",
		"i won't", "i will not", "that doesn't work for me",
		"absolutely not", "non-negotiable", "not negotiable",
	}
	resolutionMarkers = []string{
		"i understand", "i see your point", "fair enough", "let's meet",
		"i can live with", "deal", "that works for both",
	}
	escalationMarkers = []string{
		"you always", "you never", "this is pointless", "i'm done",
		"stop talking", "end of discussion",
	}
)

func containsAny(text string, markers []string) bool {
	lowered := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}
