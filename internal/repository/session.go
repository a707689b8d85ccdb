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

// sessionModel maps to the sessions table.
type sessionModel struct {
	ID           string
	Type         string
	Participants json.RawMessage `gorm:"type:jsonb"`
	ScenarioID   string
	Status       string
	TurnCount    int
	EndReason    string
	StartedAt    time.Time
	EndedAt      *time.Time
}

func (sessionModel) TableName() string {
	return "sessions"
}

// messageModel maps to the session_messages table. Rows are append-only and
// ordered by (session_id, sequence).
type messageModel struct {
	SessionID string
	Sequence  int
	SenderID  string
	Role      string
	Content   string
	Emotion   string
	Fallback  bool
	CreatedAt time.Time
}

func (messageModel) TableName() string {
	return "session_messages"
}

// SessionRepo accesses session and message data.
type SessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo returns a SessionRepo.
func NewSessionRepo(db *gorm.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create persists a new session record.
func (r *SessionRepo) Create(ctx context.Context, sess types.ConversationSession) error {
	participants, err := json.Marshal(sess.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	model := sessionModel{
		ID:           sess.ID,
		Type:         sess.Type,
		Participants: participants,
		ScenarioID:   sess.ScenarioID,
		Status:       sess.Status,
		TurnCount:    sess.TurnCount,
		StartedAt:    sess.StartedAt,
	}
	err = withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// AppendMessage appends one message row.
func (r *SessionRepo) AppendMessage(ctx context.Context, msg types.Message) error {
	model := messageModel{
		SessionID: msg.SessionID,
		Sequence:  msg.Sequence,
		SenderID:  msg.SenderID,
		Role:      msg.Role,
		Content:   msg.Content,
		Emotion:   msg.Emotion,
		Fallback:  msg.Fallback,
		CreatedAt: msg.CreatedAt,
	}
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Finalize records the terminal status, reason and turn count. Sessions are
// immutable afterwards; the repo enforces single-transition by only updating
// rows still in a non-terminal status.
func (r *SessionRepo) Finalize(ctx context.Context, id, status, reason string, turnCount int, endedAt time.Time) error {
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).
			Model(&sessionModel{}).
			Where("id = ? AND status IN ?", id, []string{types.StatusPending, types.StatusActive}).
			Updates(map[string]any{
				"status":     status,
				"end_reason": reason,
				"turn_count": turnCount,
				"ended_at":   endedAt,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	return nil
}

// Get loads a session with its full message history.
func (r *SessionRepo) Get(ctx context.Context, id string) (*types.ConversationSession, error) {
	var model sessionModel
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rows []messageModel
	err = withRetry(ctx, func() error {
		return r.db.WithContext(ctx).
			Where("session_id = ?", id).
			Order("sequence ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load session messages: %w", err)
	}

	var participants []string
	_ = json.Unmarshal(model.Participants, &participants)

	sess := &types.ConversationSession{
		ID:           model.ID,
		Type:         model.Type,
		Participants: participants,
		ScenarioID:   model.ScenarioID,
		Status:       model.Status,
		TurnCount:    model.TurnCount,
		EndReason:    model.EndReason,
		StartedAt:    model.StartedAt,
	}
	if model.EndedAt != nil {
		sess.EndedAt = *model.EndedAt
	}
	for _, row := range rows {
		sess.Messages = append(sess.Messages, types.Message{
			SessionID: row.SessionID,
			Sequence:  row.Sequence,
			SenderID:  row.SenderID,
			Role:      row.Role,
			Content:   row.Content,
			Emotion:   row.Emotion,
			Fallback:  row.Fallback,
			CreatedAt: row.CreatedAt,
		})
	}
	return sess, nil
}
