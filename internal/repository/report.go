package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-duet/internal/types"
)

// reportModel maps to the compatibility_reports table. Rows are append-only;
// the (user_a, user_b) pair is stored in canonical order for trend queries.
type reportModel struct {
	SessionID   string
	UserA       string
	UserB       string
	Overall     float64
	Dimensions  json.RawMessage `gorm:"type:jsonb"`
	Insights    json.RawMessage `gorm:"type:jsonb"`
	Conflicts   json.RawMessage `gorm:"type:jsonb"`
	Partial     bool
	GeneratedAt time.Time
}

func (reportModel) TableName() string {
	return "compatibility_reports"
}

// ReportRepo accesses compatibility report data.
type ReportRepo struct {
	db *gorm.DB
}

// NewReportRepo returns a ReportRepo.
func NewReportRepo(db *gorm.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Save appends one finalized report.
func (r *ReportRepo) Save(ctx context.Context, report types.CompatibilityReport) error {
	userA, userB := types.PairKey(report.UserA, report.UserB)
	dims, err := json.Marshal(report.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to encode report dimensions: %w", err)
	}
	insights, err := json.Marshal(report.Insights)
	if err != nil {
		return fmt.Errorf("failed to encode report insights: %w", err)
	}
	conflicts, err := json.Marshal(report.Conflicts)
	if err != nil {
		return fmt.Errorf("failed to encode report conflicts: %w", err)
	}
	model := reportModel{
		SessionID:   report.SessionID,
		UserA:       userA,
		UserB:       userB,
		Overall:     report.Overall,
		Dimensions:  dims,
		Insights:    insights,
		Conflicts:   conflicts,
		Partial:     report.Partial,
		GeneratedAt: report.GeneratedAt,
	}
	err = withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// BySession returns the report generated for one session.
func (r *ReportRepo) BySession(ctx context.Context, sessionID string) (*types.CompatibilityReport, error) {
	var model reportModel
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&model).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	report := reportFromModel(model)
	return &report, nil
}

// HistoryByPair returns the pair's reports ordered oldest to newest, the
// input order trend computation expects.
func (r *ReportRepo) HistoryByPair(ctx context.Context, userA, userB string) ([]types.CompatibilityReport, error) {
	a, b := types.PairKey(userA, userB)
	var rows []reportModel
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).
			Where("user_a = ? AND user_b = ?", a, b).
			Order("generated_at ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query report history: %w", err)
	}
	results := make([]types.CompatibilityReport, 0, len(rows))
	for _, row := range rows {
		results = append(results, reportFromModel(row))
	}
	return results, nil
}

func reportFromModel(model reportModel) types.CompatibilityReport {
	report := types.CompatibilityReport{
		SessionID:   model.SessionID,
		UserA:       model.UserA,
		UserB:       model.UserB,
		Overall:     model.Overall,
		Partial:     model.Partial,
		GeneratedAt: model.GeneratedAt,
	}
	_ = json.Unmarshal(model.Dimensions, &report.Dimensions)
	_ = json.Unmarshal(model.Insights, &report.Insights)
	_ = json.Unmarshal(model.Conflicts, &report.Conflicts)
	return report
}
