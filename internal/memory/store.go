package memory

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/project-duet/internal/types"
)

// RecordRepo is the persistence surface the store depends on.
type RecordRepo interface {
	Append(ctx context.Context, rec types.MemoryRecord) (types.MemoryRecord, error)
	Candidates(ctx context.Context, userID string, embedding []float32, limit int) ([]types.RetrievedRecord, error)
	ListByUser(ctx context.Context, userID, dimension string) ([]types.MemoryRecord, error)
	Dimensions(ctx context.Context, userID string) ([]string, error)
}

// Store is the personality memory store. Writes append immutable records;
// retrieval blends keyword overlap with embedding similarity.
type Store struct {
	embedder Embedder
	records  RecordRepo
	topK     int
	// blendAlpha is the keyword share of the blended score.
	blendAlpha float64
}

// NewStore creates a Store.
func NewStore(embedder Embedder, records RecordRepo, topK int, blendAlpha float64) *Store {
	if topK <= 0 {
		topK = 5
	}
	if blendAlpha <= 0 || blendAlpha >= 1 {
		blendAlpha = 0.3
	}
	return &Store{
		embedder:   embedder,
		records:    records,
		topK:       topK,
		blendAlpha: blendAlpha,
	}
}

// Write appends a MemoryRecord for the user. Content is never rejected; only
// an unreachable backend fails the write. When the new record contradicts an
// existing record for the same dimension and key, the old record is linked as
// superseded, not overwritten.
func (s *Store) Write(ctx context.Context, userID string, rec types.MemoryRecord) (types.MemoryRecord, error) {
	rec.UserID = userID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if s.embedder != nil && rec.Content != "" {
		vec, err := s.embedder.EmbedDocument(ctx, rec.Content+" "+rec.SourceContext)
		if err != nil {
			// Embedding is an enrichment; the record is still stored and
			// remains reachable through keyword overlap.
			slog.Warn("failed to embed memory record", "user_id", userID, "error", err.Error())
		} else {
			rec.Embedding = vec
		}
	}

	if rec.Key != "" && rec.SupersedesID == "" {
		if prev := s.newestByKey(ctx, userID, rec.Dimension, rec.Key); prev != nil {
			rec.SupersedesID = prev.ID
		}
	}

	stored, err := s.records.Append(ctx, rec)
	if err != nil {
		return types.MemoryRecord{}, err
	}
	return stored, nil
}

// Retrieve returns a lazy, finite sequence of the topK records most relevant
// to queryContext, ranked by alpha*keyword + (1-alpha)*cosine with recency
// breaking ties. An empty sequence (not an error) means the user has no data
// yet; callers treat that as an insufficient profile.
func (s *Store) Retrieve(ctx context.Context, userID, queryContext string, topK int) (iter.Seq[types.RetrievedRecord], error) {
	if topK <= 0 {
		topK = s.topK
	}

	var queryVec []float32
	if s.embedder != nil && queryContext != "" {
		vec, err := s.embedder.EmbedQuery(ctx, queryContext)
		if err != nil {
			slog.Warn("failed to embed query, falling back to keyword ranking", "error", err.Error())
		} else {
			queryVec = vec
		}
	}

	// Over-fetch so keyword blending can promote records the vector ranking
	// alone would cut.
	poolSize := topK * 4
	if poolSize < 20 {
		poolSize = 20
	}
	candidates, err := s.records.Candidates(ctx, userID, queryVec, poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve candidates: %w", err)
	}

	queryTokens := tokenize(queryContext)
	for i := range candidates {
		keyword := tokenOverlap(queryTokens, tokenize(candidates[i].Record.Content+" "+candidates[i].Record.SourceContext))
		candidates[i].Score = s.blendAlpha*keyword + (1-s.blendAlpha)*candidates[i].Score
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Record.CreatedAt.After(candidates[j].Record.CreatedAt)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	return func(yield func(types.RetrievedRecord) bool) {
		for _, c := range candidates {
			if !yield(c) {
				return
			}
		}
	}, nil
}

// ValidateCompleteness reports whether the user has at least one record per
// required dimension, and which dimensions are still missing.
func (s *Store) ValidateCompleteness(ctx context.Context, userID string) (bool, []string, error) {
	covered, err := s.records.Dimensions(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	have := make(map[string]bool, len(covered))
	for _, d := range covered {
		have[d] = true
	}

	var missing []string
	for _, required := range types.RequiredDimensions {
		if !have[required] {
			missing = append(missing, required)
		}
	}
	return len(missing) == 0, missing, nil
}

func (s *Store) newestByKey(ctx context.Context, userID, dimension, key string) *types.MemoryRecord {
	records, err := s.records.ListByUser(ctx, userID, dimension)
	if err != nil {
		return nil
	}
	for _, rec := range records {
		if rec.Key == key {
			return &rec
		}
	}
	return nil
}

// tokenize lowercases and splits text into word tokens.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(field) > 1 {
			tokens[field] = true
		}
	}
	return tokens
}

// tokenOverlap is the share of query tokens present in the candidate, in
// [0,1].
func tokenOverlap(query, candidate map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for token := range query {
		if candidate[token] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
