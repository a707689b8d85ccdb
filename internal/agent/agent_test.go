package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/easeaico/project-duet/internal/memory"
	"github.com/easeaico/project-duet/internal/types"
)

type scriptedGen struct {
	replies []string
	err     error
	calls   []string
}

func (g *scriptedGen) Generate(_ context.Context, instruction string, _ []*genai.Content) (string, error) {
	g.calls = append(g.calls, instruction)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "ok", nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

type fakeRepo struct {
	recs []types.MemoryRecord
}

func (r *fakeRepo) Append(_ context.Context, rec types.MemoryRecord) (types.MemoryRecord, error) {
	rec.ID = fmt.Sprintf("rec-%d", len(r.recs)+1)
	r.recs = append(r.recs, rec)
	return rec, nil
}

func (r *fakeRepo) Candidates(_ context.Context, userID string, _ []float32, limit int) ([]types.RetrievedRecord, error) {
	var out []types.RetrievedRecord
	for _, rec := range r.recs {
		if rec.UserID != userID {
			continue
		}
		out = append(out, types.RetrievedRecord{Record: rec, Score: 0.5})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByUser(_ context.Context, userID, dimension string) ([]types.MemoryRecord, error) {
	var out []types.MemoryRecord
	for i := len(r.recs) - 1; i >= 0; i-- {
		rec := r.recs[i]
		if rec.UserID != userID {
			continue
		}
		if dimension != "" && rec.Dimension != dimension {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeRepo) Dimensions(_ context.Context, userID string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range r.recs {
		if rec.UserID != userID || seen[rec.Dimension] {
			continue
		}
		seen[rec.Dimension] = true
		out = append(out, rec.Dimension)
	}
	return out, nil
}

func seedRecord(repo *fakeRepo, userID, dimension, key, content string, dealBreaker bool) {
	repo.recs = append(repo.recs, types.MemoryRecord{
		ID:          fmt.Sprintf("rec-%d", len(repo.recs)+1),
		UserID:      userID,
		Dimension:   dimension,
		Key:         key,
		Content:     content,
		Weight:      0.9,
		DealBreaker: dealBreaker,
		CreatedAt:   time.Now(),
	})
}

func userMessage(content string) types.Message {
	return types.Message{SenderID: "other", Role: types.RoleUser, Content: content, CreatedAt: time.Now()}
}

func TestAvatarReplacesAgreeableReplyOnDealBreaker(t *testing.T) {
	repo := &fakeRepo{}
	seedRecord(repo, "alice", types.DimensionValues, "children", "I must have children someday.", true)
	store := memory.NewStore(nil, repo, 5, 0.3)
	gen := &scriptedGen{replies: []string{"Sure, putting career first sounds reasonable to me."}}
	avatar := NewAvatar("alice", store, gen, 5)

	msg, err := avatar.Respond(context.Background(), &Context{
		SessionID: "s1",
		Window:    []types.Message{userMessage("I want to put my career over family, no children for me.")},
	})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !containsDisagreement(msg.Content) {
		t.Fatalf("reply should contain an explicit disagreement, got %q", msg.Content)
	}
	if msg.Emotion != types.EmotionConflict {
		t.Errorf("Emotion = %q, want %q", msg.Emotion, types.EmotionConflict)
	}
	if !strings.Contains(msg.Content, "I must have children someday") {
		t.Errorf("replacement reply should name the deal-breaker, got %q", msg.Content)
	}
}

func TestAvatarKeepsConformingDisagreement(t *testing.T) {
	repo := &fakeRepo{}
	seedRecord(repo, "alice", types.DimensionValues, "children", "I must have children someday.", true)
	store := memory.NewStore(nil, repo, 5, 0.3)
	reply := "I disagree. Having children matters too much to me to set aside."
	gen := &scriptedGen{replies: []string{reply}}
	avatar := NewAvatar("alice", store, gen, 5)

	msg, err := avatar.Respond(context.Background(), &Context{
		SessionID: "s1",
		Window:    []types.Message{userMessage("Honestly, children just aren't part of my plan.")},
	})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if msg.Content != reply {
		t.Fatalf("conforming reply should be kept, got %q", msg.Content)
	}
	if msg.Emotion != types.EmotionConflict {
		t.Errorf("Emotion = %q, want %q", msg.Emotion, types.EmotionConflict)
	}
}

func TestAvatarFallbackOnGenerationFailure(t *testing.T) {
	repo := &fakeRepo{}
	seedRecord(repo, "alice", types.DimensionLifestyle, "city", "I love living downtown.", false)
	store := memory.NewStore(nil, repo, 5, 0.3)
	genErr := errors.New("backend down")
	avatar := NewAvatar("alice", store, &scriptedGen{err: genErr}, 5)

	msg, err := avatar.Respond(context.Background(), &Context{
		SessionID: "s1",
		Window:    []types.Message{userMessage("Where would you want to live?")},
	})
	if !errors.Is(err, genErr) {
		t.Fatalf("Respond() error = %v, want %v", err, genErr)
	}
	if !msg.Fallback {
		t.Error("fallback flag should be set")
	}
	if msg.Content != FallbackText {
		t.Errorf("Content = %q, want fallback text", msg.Content)
	}
}

func TestTrainerAsksQuestionThenIngestsAnswer(t *testing.T) {
	repo := &fakeRepo{}
	store := memory.NewStore(nil, repo, 5, 0.3)
	gen := &scriptedGen{replies: []string{
		"What new experiences excite you the most?",
		`[{"dimension":"personality","key":"openness","content":"I love trying unfamiliar things.","weight":0.8,"deal_breaker":false}]`,
		"What values guide your biggest decisions?",
	}}
	trainer := NewTrainer("bob", store, gen)

	first, err := trainer.Respond(context.Background(), &Context{SessionID: "s1"})
	if err != nil {
		t.Fatalf("first Respond() error = %v", err)
	}
	if first.Content != "What new experiences excite you the most?" {
		t.Fatalf("unexpected first question %q", first.Content)
	}

	window := []types.Message{first, userMessage("I get a real kick out of trying unfamiliar things.")}
	second, err := trainer.Respond(context.Background(), &Context{SessionID: "s1", Window: window})
	if err != nil {
		t.Fatalf("second Respond() error = %v", err)
	}
	if second.Emotion == types.EmotionClosing {
		t.Fatal("trainer closed with three dimensions still missing")
	}
	if len(repo.recs) != 1 {
		t.Fatalf("stored %d records, want 1", len(repo.recs))
	}
	if repo.recs[0].Dimension != types.DimensionPersonality || repo.recs[0].Key != "openness" {
		t.Errorf("stored record = %+v", repo.recs[0])
	}
	if repo.recs[0].SourceContext != first.Content {
		t.Errorf("SourceContext = %q, want the question asked", repo.recs[0].SourceContext)
	}
}

func TestTrainerClosesWhenProfileComplete(t *testing.T) {
	repo := &fakeRepo{}
	for _, dim := range types.RequiredDimensions {
		seedRecord(repo, "bob", dim, dim+"_key", "something about "+dim, false)
	}
	store := memory.NewStore(nil, repo, 5, 0.3)
	trainer := NewTrainer("bob", store, &scriptedGen{})

	msg, err := trainer.Respond(context.Background(), &Context{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if msg.Emotion != types.EmotionClosing {
		t.Fatalf("Emotion = %q, want %q", msg.Emotion, types.EmotionClosing)
	}
	if !trainer.Done(context.Background()) {
		t.Error("Done() should report true once every dimension is covered")
	}
}

func TestScenarioAgentIntroducesThenCloses(t *testing.T) {
	s := types.Scenario{
		ID:              "test-scn",
		Category:        types.CategoryFinancial,
		Difficulty:      2,
		Description:     "You disagree about how to split monthly expenses.",
		SuccessCriteria: []string{"propose split"},
	}
	agent := NewScenarioAgent(s, &scriptedGen{})

	intro, err := agent.Respond(context.Background(), &Context{SessionID: "s1"})
	if err != nil {
		t.Fatalf("intro Respond() error = %v", err)
	}
	if !strings.Contains(intro.Content, s.Description) {
		t.Fatalf("intro should carry the scenario description, got %q", intro.Content)
	}

	window := []types.Message{
		intro,
		userMessage("I propose we split everything evenly."),
	}
	closing, err := agent.Respond(context.Background(), &Context{SessionID: "s1", Window: window})
	if err != nil {
		t.Fatalf("closing Respond() error = %v", err)
	}
	if closing.Emotion != types.EmotionClosing {
		t.Errorf("Emotion = %q, want %q once criteria are met", closing.Emotion, types.EmotionClosing)
	}
}

func TestExtractRecordsRejectsInvalidDimension(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		"```json\n[{\"dimension\":\"astrology\",\"key\":\"sign\",\"content\":\"I am a Leo.\"}]\n```",
	}}
	if _, err := extractRecords(context.Background(), gen, "q", "a"); err == nil {
		t.Fatal("expected validation error for unknown dimension")
	}
}

func TestExtractRecordsTrimsFencesAndClamps(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		"```json\n[{\"dimension\":\"values\",\"key\":\"honesty\",\"content\":\"Honesty is everything to me.\",\"weight\":0.95,\"deal_breaker\":true}]\n```",
	}}
	records, err := extractRecords(context.Background(), gen, "What matters most?", "Honesty, always.")
	if err != nil {
		t.Fatalf("extractRecords() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if !records[0].DealBreaker {
		t.Error("deal_breaker flag should carry through")
	}
	if records[0].Weight != 0.95 {
		t.Errorf("Weight = %v, want 0.95", records[0].Weight)
	}
}
