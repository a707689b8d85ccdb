package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/easeaico/project-duet/internal/generation"
	"github.com/easeaico/project-duet/internal/memory"
	"github.com/easeaico/project-duet/internal/types"
)

const trainerClosingText = "That gives me a really good picture of you. Thanks for being so open, we're done for today."

// Trainer interviews one user and turns their answers into memory records.
// It walks the required dimensions in order, asking progressively deeper
// questions within each, and closes the session once every dimension is
// covered.
type Trainer struct {
	userID string
	store  *memory.Store
	gen    generation.Generator

	lastQuestion string
	// depth counts questions asked per dimension.
	depth map[string]int
}

// NewTrainer returns a Trainer interviewing the given user.
func NewTrainer(userID string, store *memory.Store, gen generation.Generator) *Trainer {
	return &Trainer{
		userID: userID,
		store:  store,
		gen:    gen,
		depth:  make(map[string]int),
	}
}

func (t *Trainer) ID() string   { return "trainer" }
func (t *Trainer) Role() string { return types.RoleSystem }

// Respond ingests the user's latest answer, stores whatever records it
// yields, then either asks the next question or signals closing when the
// profile covers every required dimension.
func (t *Trainer) Respond(ctx context.Context, sc *Context) (types.Message, error) {
	if last := lastOther(sc.Window, t.ID()); last != nil && t.lastQuestion != "" {
		t.ingest(ctx, last.Content)
	}

	complete, missing, err := t.store.ValidateCompleteness(ctx, t.userID)
	if err != nil {
		slog.Error("failed to check profile completeness", "user_id", t.userID, "error", err.Error())
		return fallbackMessage(sc, t.ID(), types.RoleSystem), err
	}
	if complete {
		t.lastQuestion = ""
		return types.Message{
			SessionID: sc.SessionID,
			SenderID:  t.ID(),
			Role:      types.RoleSystem,
			Content:   trainerClosingText,
			Emotion:   types.EmotionClosing,
			CreatedAt: time.Now(),
		}, nil
	}

	dimension := missing[0]
	instruction, err := renderTemplate(trainerQuestionTmpl, struct {
		Dimension string
		Depth     int
		Missing   []string
	}{dimension, t.depth[dimension], missing[1:]})
	if err != nil {
		return fallbackMessage(sc, t.ID(), types.RoleSystem), err
	}

	question, genErr := t.gen.Generate(ctx, instruction, historyContents(sc.Window, t.ID()))
	if genErr != nil {
		slog.Warn("trainer question generation failed, using fallback", "user_id", t.userID, "error", genErr.Error())
		msg := fallbackMessage(sc, t.ID(), types.RoleSystem)
		t.lastQuestion = ""
		return msg, genErr
	}

	t.depth[dimension]++
	t.lastQuestion = question
	return types.Message{
		SessionID: sc.SessionID,
		SenderID:  t.ID(),
		Role:      types.RoleSystem,
		Content:   question,
		CreatedAt: time.Now(),
	}, nil
}

// ingest extracts records from one answer and writes them. Extraction
// failures lose the one answer, never the session.
func (t *Trainer) ingest(ctx context.Context, answer string) {
	records, err := extractRecords(ctx, t.gen, t.lastQuestion, answer)
	if err != nil {
		slog.Warn("failed to extract records from answer", "user_id", t.userID, "error", err.Error())
		return
	}
	for _, rec := range records {
		if _, err := t.store.Write(ctx, t.userID, rec); err != nil {
			slog.Error("failed to store extracted record", "user_id", t.userID, "key", rec.Key, "error", err.Error())
		}
	}
}

// Done reports whether the user's profile now covers every required
// dimension.
func (t *Trainer) Done(ctx context.Context) bool {
	complete, _, err := t.store.ValidateCompleteness(ctx, t.userID)
	return err == nil && complete
}
