package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/easeaico/project-duet/internal/types"
)

// recordModel maps to the memory_records table.
type recordModel struct {
	ID            string
	UserID        string
	Dimension     string
	Key           string `gorm:"column:record_key"`
	Content       string
	Weight        float64
	SourceContext string
	DealBreaker   bool
	SupersedesID  string
	// Embedding stores the vector representation for similarity search.
	Embedding *pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time
}

func (recordModel) TableName() string {
	return "memory_records"
}

// RecordRepo accesses memory record data.
type RecordRepo struct {
	db *gorm.DB
}

// NewRecordRepo returns a RecordRepo.
func NewRecordRepo(db *gorm.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// Append inserts a record. Records are append-only; contradictions supersede
// via SupersedesID rather than overwriting.
func (r *RecordRepo) Append(ctx context.Context, rec types.MemoryRecord) (types.MemoryRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var vector *pgvector.Vector
	if len(rec.Embedding) > 0 {
		v := pgvector.NewVector(rec.Embedding)
		vector = &v
	}
	model := recordModel{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Dimension:     rec.Dimension,
		Key:           rec.Key,
		Content:       rec.Content,
		Weight:        rec.Weight,
		SourceContext: rec.SourceContext,
		DealBreaker:   rec.DealBreaker,
		SupersedesID:  rec.SupersedesID,
		Embedding:     vector,
		CreatedAt:     rec.CreatedAt,
	}
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	})
	if err != nil {
		return types.MemoryRecord{}, fmt.Errorf("failed to insert memory record: %w", err)
	}
	return rec, nil
}

// Candidates returns up to limit records for the user ranked by cosine
// similarity against the query embedding, newest first on ties. The caller
// blends keyword overlap on top of this pool.
func (r *RecordRepo) Candidates(ctx context.Context, userID string, embedding []float32, limit int) ([]types.RetrievedRecord, error) {
	if len(embedding) == 0 {
		return r.recent(ctx, userID, limit)
	}

	query := `
		SELECT id, user_id, dimension, record_key, content, weight,
		       source_context, deal_breaker, supersedes_id, created_at,
		       COALESCE(1 - (embedding <=> $1), 0) AS similarity
		FROM memory_records
		WHERE user_id = $2
		ORDER BY similarity DESC, created_at DESC
		LIMIT $3`

	type row struct {
		recordModel
		Similarity float64
	}
	var rows []row
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).
			Raw(query, pgvector.NewVector(embedding), userID, limit).
			Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search memory records: %w", err)
	}

	results := make([]types.RetrievedRecord, 0, len(rows))
	for _, row := range rows {
		results = append(results, types.RetrievedRecord{
			Record: recordFromModel(row.recordModel),
			Score:  row.Similarity,
		})
	}
	return results, nil
}

// recent is the no-embedding fallback: newest records first, zero similarity.
func (r *RecordRepo) recent(ctx context.Context, userID string, limit int) ([]types.RetrievedRecord, error) {
	var rows []recordModel
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query memory records: %w", err)
	}
	results := make([]types.RetrievedRecord, 0, len(rows))
	for _, row := range rows {
		results = append(results, types.RetrievedRecord{Record: recordFromModel(row)})
	}
	return results, nil
}

// ListByUser returns all records for a user, newest first, optionally
// filtered by dimension.
func (r *RecordRepo) ListByUser(ctx context.Context, userID, dimension string) ([]types.MemoryRecord, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if dimension != "" {
		query = query.Where("dimension = ?", dimension)
	}

	var rows []recordModel
	err := withRetry(ctx, func() error {
		return query.Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list memory records: %w", err)
	}

	results := make([]types.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		results = append(results, recordFromModel(row))
	}
	return results, nil
}

// Dimensions returns the distinct dimensions covered by a user's records.
func (r *RecordRepo) Dimensions(ctx context.Context, userID string) ([]string, error) {
	var dims []string
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).
			Model(&recordModel{}).
			Distinct("dimension").
			Where("user_id = ?", userID).
			Pluck("dimension", &dims).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query record dimensions: %w", err)
	}
	return dims, nil
}

func recordFromModel(model recordModel) types.MemoryRecord {
	return types.MemoryRecord{
		ID:            model.ID,
		UserID:        model.UserID,
		Dimension:     model.Dimension,
		Key:           model.Key,
		Content:       model.Content,
		Weight:        model.Weight,
		SourceContext: model.SourceContext,
		DealBreaker:   model.DealBreaker,
		SupersedesID:  model.SupersedesID,
		CreatedAt:     model.CreatedAt,
	}
}
