package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/easeaico/project-duet/internal/types"
)

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.lookup(text), nil
}

func (e *fakeEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	return e.lookup(text), nil
}

func (e *fakeEmbedder) lookup(text string) []float32 {
	if vec, ok := e.vectors[text]; ok {
		return vec
	}
	return []float32{0.1, 0.1}
}

// fakeRecordRepo keeps records in memory and ranks candidates by cosine
// similarity, mirroring the pgvector query's contract.
type fakeRecordRepo struct {
	records []types.MemoryRecord
	nextID  int
}

func (r *fakeRecordRepo) Append(_ context.Context, rec types.MemoryRecord) (types.MemoryRecord, error) {
	r.nextID++
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%d", r.nextID)
	}
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *fakeRecordRepo) Candidates(_ context.Context, userID string, embedding []float32, limit int) ([]types.RetrievedRecord, error) {
	var results []types.RetrievedRecord
	for _, rec := range r.records {
		if rec.UserID != userID {
			continue
		}
		results = append(results, types.RetrievedRecord{Record: rec, Score: cosine(embedding, rec.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *fakeRecordRepo) ListByUser(_ context.Context, userID, dimension string) ([]types.MemoryRecord, error) {
	var results []types.MemoryRecord
	for _, rec := range r.records {
		if rec.UserID != userID {
			continue
		}
		if dimension != "" && rec.Dimension != dimension {
			continue
		}
		results = append(results, rec)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (r *fakeRecordRepo) Dimensions(_ context.Context, userID string) ([]string, error) {
	seen := map[string]bool{}
	var dims []string
	for _, rec := range r.records {
		if rec.UserID == userID && !seen[rec.Dimension] {
			seen[rec.Dimension] = true
			dims = append(dims, rec.Dimension)
		}
	}
	return dims, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func collect(seq func(func(types.RetrievedRecord) bool)) []types.RetrievedRecord {
	var out []types.RetrievedRecord
	seq(func(r types.RetrievedRecord) bool {
		out = append(out, r)
		return true
	})
	return out
}

func TestWriteThenRetrieveRoundTrip(t *testing.T) {
	repo := &fakeRecordRepo{}
	store := NewStore(&fakeEmbedder{}, repo, 5, 0.3)

	written, err := store.Write(context.Background(), "user-1", types.MemoryRecord{
		Dimension:     types.DimensionValues,
		Key:           "family",
		Content:       "values family highly",
		SourceContext: "asked about weekend plans with family",
		Weight:        0.9,
	})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if written.ID == "" {
		t.Fatal("expected stored record to have an id")
	}

	// A handful of unrelated records must not push the match out of top-5.
	for i := 0; i < 8; i++ {
		if _, err := store.Write(context.Background(), "user-1", types.MemoryRecord{
			Dimension: types.DimensionLifestyle,
			Key:       fmt.Sprintf("hobby-%d", i),
			Content:   fmt.Sprintf("enjoys obscure pastime number %d", i),
		}); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}

	seq, err := store.Retrieve(context.Background(), "user-1", "asked about weekend plans with family", 5)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	results := collect(seq)
	if len(results) == 0 {
		t.Fatal("expected results, got none")
	}
	found := false
	for _, r := range results {
		if r.Record.ID == written.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected record %s in top-5, got %+v", written.ID, results)
	}
}

func TestRetrieveEmptyWhenNoData(t *testing.T) {
	store := NewStore(&fakeEmbedder{}, &fakeRecordRepo{}, 5, 0.3)

	seq, err := store.Retrieve(context.Background(), "unknown-user", "anything", 5)
	if err != nil {
		t.Fatalf("expected empty sequence, got error: %v", err)
	}
	if results := collect(seq); len(results) != 0 {
		t.Fatalf("expected no results for unknown user, got %d", len(results))
	}
}

func TestRetrieveTopKBound(t *testing.T) {
	repo := &fakeRecordRepo{}
	store := NewStore(&fakeEmbedder{}, repo, 3, 0.3)

	for i := 0; i < 10; i++ {
		if _, err := store.Write(context.Background(), "user-1", types.MemoryRecord{
			Dimension: types.DimensionPreferences,
			Key:       fmt.Sprintf("pref-%d", i),
			Content:   fmt.Sprintf("preference %d", i),
		}); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}

	seq, err := store.Retrieve(context.Background(), "user-1", "preference", 0)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if results := collect(seq); len(results) != 3 {
		t.Fatalf("expected default topK of 3 results, got %d", len(results))
	}
}

func TestWriteSupersedesSameKey(t *testing.T) {
	repo := &fakeRecordRepo{}
	store := NewStore(&fakeEmbedder{}, repo, 5, 0.3)

	first, err := store.Write(context.Background(), "user-1", types.MemoryRecord{
		Dimension: types.DimensionValues,
		Key:       "career",
		Content:   "career is everything",
		Weight:    0.9,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	second, err := store.Write(context.Background(), "user-1", types.MemoryRecord{
		Dimension: types.DimensionValues,
		Key:       "career",
		Content:   "career matters but family comes first now",
		Weight:    0.4,
	})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if second.SupersedesID != first.ID {
		t.Fatalf("expected new record to supersede %s, got %q", first.ID, second.SupersedesID)
	}
	if len(repo.records) != 2 {
		t.Fatalf("superseded record must not be deleted, have %d records", len(repo.records))
	}
}

func TestValidateCompletenessMonotonic(t *testing.T) {
	repo := &fakeRecordRepo{}
	store := NewStore(&fakeEmbedder{}, repo, 5, 0.3)
	ctx := context.Background()

	ok, missing, err := store.ValidateCompleteness(ctx, "user-1")
	if err != nil {
		t.Fatalf("ValidateCompleteness returned error: %v", err)
	}
	if ok {
		t.Fatal("expected incomplete profile with no records")
	}
	if len(missing) != len(types.RequiredDimensions) {
		t.Fatalf("expected all dimensions missing, got %v", missing)
	}

	for i, dim := range types.RequiredDimensions {
		if _, err := store.Write(ctx, "user-1", types.MemoryRecord{
			Dimension: dim,
			Key:       "k",
			Content:   "something",
		}); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}

		ok, missing, err = store.ValidateCompleteness(ctx, "user-1")
		if err != nil {
			t.Fatalf("ValidateCompleteness returned error: %v", err)
		}
		wantMissing := len(types.RequiredDimensions) - i - 1
		if len(missing) != wantMissing {
			t.Fatalf("after %d dimensions expected %d missing, got %v", i+1, wantMissing, missing)
		}
		if ok != (wantMissing == 0) {
			t.Fatalf("completeness flag inconsistent with missing set: ok=%v missing=%v", ok, missing)
		}
	}
}

func TestBuildProfileNewestRecordWins(t *testing.T) {
	repo := &fakeRecordRepo{}
	store := NewStore(&fakeEmbedder{}, repo, 5, 0.3)
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Hour)
	writes := []types.MemoryRecord{
		{Dimension: types.DimensionPersonality, Key: types.TraitOpenness, Weight: 0.4, Content: "somewhat curious", CreatedAt: base},
		{Dimension: types.DimensionPersonality, Key: types.TraitOpenness, Weight: 0.8, Content: "very curious", CreatedAt: base.Add(time.Hour)},
		{Dimension: types.DimensionValues, Key: "children", Weight: 1.0, Content: "must want children", DealBreaker: true, CreatedAt: base},
		{Dimension: types.DimensionPersonality, Key: "communication_style", Content: types.CommDirect, CreatedAt: base},
	}
	for _, rec := range writes {
		if _, err := store.Write(ctx, "user-1", rec); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}

	profile, err := store.BuildProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("BuildProfile returned error: %v", err)
	}
	if profile.Traits[types.TraitOpenness] != 0.8 {
		t.Fatalf("expected newest openness score 0.8, got %f", profile.Traits[types.TraitOpenness])
	}
	if profile.CommunicationStyle != types.CommDirect {
		t.Fatalf("expected direct communication style, got %q", profile.CommunicationStyle)
	}
	if len(profile.DealBreakers) != 1 || profile.DealBreakers[0] != "must want children" {
		t.Fatalf("expected deal breaker to be carried, got %v", profile.DealBreakers)
	}
	if profile.Completeness != 0.5 {
		t.Fatalf("expected completeness 0.5 with 2 of 4 dimensions, got %f", profile.Completeness)
	}
}
