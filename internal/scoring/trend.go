package scoring

import "github.com/easeaico/project-duet/internal/types"

// trendEpsilon is the overall-score movement below which a pair's history
// counts as stable.
const trendEpsilon = 0.05

// Trend classifies a pair's report history from the overall scores of the
// three most recent reports, oldest first. Fewer than two reports is always
// stable.
func Trend(reports []types.CompatibilityReport) string {
	if len(reports) < 2 {
		return types.TrendStable
	}
	if len(reports) > 3 {
		reports = reports[len(reports)-3:]
	}
	delta := reports[len(reports)-1].Overall - reports[0].Overall
	switch {
	case delta > trendEpsilon:
		return types.TrendImproving
	case delta < -trendEpsilon:
		return types.TrendDeclining
	}
	return types.TrendStable
}
