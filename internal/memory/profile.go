package memory

import (
	"context"
	"time"

	"github.com/easeaico/project-duet/internal/types"
)

// BuildProfile folds the user's records into a PersonalityProfile. Records
// are newest-first from the repo, so the first record seen per key wins; a
// superseded record never overrides its successor.
func (s *Store) BuildProfile(ctx context.Context, userID string) (*types.PersonalityProfile, error) {
	records, err := s.records.ListByUser(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	profile := &types.PersonalityProfile{
		UserID: userID,
		Traits: make(map[string]float64),
		Values: make(map[string]float64),
	}

	seen := make(map[string]bool)
	covered := make(map[string]bool)
	var latest time.Time
	for _, rec := range records {
		covered[rec.Dimension] = true
		if rec.CreatedAt.After(latest) {
			latest = rec.CreatedAt
		}
		if rec.DealBreaker {
			profile.DealBreakers = append(profile.DealBreakers, rec.Content)
		}

		slot := rec.Dimension + "/" + rec.Key
		if rec.Key == "" || seen[slot] {
			continue
		}
		seen[slot] = true

		switch rec.Dimension {
		case types.DimensionPersonality:
			switch rec.Key {
			case "communication_style":
				profile.CommunicationStyle = rec.Content
			case "conflict_style":
				profile.ConflictStyle = rec.Content
			default:
				profile.Traits[rec.Key] = types.Clamp01(rec.Weight)
			}
		case types.DimensionValues:
			profile.Values[rec.Key] = types.Clamp01(rec.Weight)
		}
	}

	count := 0
	for _, required := range types.RequiredDimensions {
		if covered[required] {
			count++
		}
	}
	profile.Completeness = float64(count) / float64(len(types.RequiredDimensions))
	profile.UpdatedAt = latest
	return profile, nil
}
