package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/easeaico/project-duet/internal/generation"
	"github.com/easeaico/project-duet/internal/memory"
	"github.com/easeaico/project-duet/internal/types"
)

// disagreementMarkers are the phrases that count as explicit disagreement.
// A reply touching a deal-breaker must contain one of them.
var disagreementMarkers = []string{
	"i disagree",
	"i don't agree",
	"i can't agree",
	"i cannot agree",
	"i won't",
	"i will not",
	"that doesn't work for me",
	"that's not something i can accept",
	"no, ",
	"absolutely not",
}

// Avatar represents one user's personality in conversation.
type Avatar struct {
	userID string
	store  *memory.Store
	gen    generation.Generator
	topK   int
}

// NewAvatar returns an Avatar for the given user.
func NewAvatar(userID string, store *memory.Store, gen generation.Generator, topK int) *Avatar {
	if topK <= 0 {
		topK = 5
	}
	return &Avatar{userID: userID, store: store, gen: gen, topK: topK}
}

func (a *Avatar) ID() string   { return a.userID }
func (a *Avatar) Role() string { return types.RoleAvatar }

// Respond retrieves the records most relevant to the current topic and
// generates a reply constrained to them. When the topic contradicts a stored
// deal-breaker, the reply is guaranteed to carry an explicit disagreement
// marker: a generation that agrees anyway is replaced, not repaired.
func (a *Avatar) Respond(ctx context.Context, sc *Context) (types.Message, error) {
	topic := ""
	if last := lastOther(sc.Window, a.userID); last != nil {
		topic = last.Content
	}

	profile, err := a.store.BuildProfile(ctx, a.userID)
	if err != nil {
		slog.Error("failed to build avatar profile", "user_id", a.userID, "error", err.Error())
		return fallbackMessage(sc, a.userID, types.RoleAvatar), err
	}

	var records []types.RetrievedRecord
	seq, err := a.store.Retrieve(ctx, a.userID, topic, a.topK)
	if err != nil {
		slog.Warn("avatar memory retrieval failed, replying without records", "user_id", a.userID, "error", err.Error())
	} else {
		for rec := range seq {
			records = append(records, rec)
		}
	}

	instruction, err := renderTemplate(avatarInstructionTmpl, struct {
		Records     []types.RetrievedRecord
		Profile     *types.PersonalityProfile
		Scenario    *types.Scenario
		Instruction string
	}{records, profile, sc.Scenario, sc.Instruction})
	if err != nil {
		return fallbackMessage(sc, a.userID, types.RoleAvatar), err
	}

	violated := triggeredDealBreaker(topic, profile.DealBreakers)

	reply, genErr := a.gen.Generate(ctx, instruction, historyContents(sc.Window, a.userID))
	if genErr != nil {
		slog.Warn("avatar generation failed, using fallback", "user_id", a.userID, "error", genErr.Error())
		msg := fallbackMessage(sc, a.userID, types.RoleAvatar)
		if violated != "" {
			// The authenticity contract outranks the neutral fallback.
			msg = a.disagreementMessage(sc, violated)
			msg.Fallback = true
		}
		return msg, genErr
	}

	msg := types.Message{
		SessionID: sc.SessionID,
		SenderID:  a.userID,
		Role:      types.RoleAvatar,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if violated != "" {
		if !containsDisagreement(reply) {
			slog.Warn("avatar reply violated deal-breaker contract, replacing", "user_id", a.userID, "deal_breaker", violated)
			msg = a.disagreementMessage(sc, violated)
		} else {
			msg.Emotion = types.EmotionConflict
		}
	}
	return msg, nil
}

// disagreementMessage is the deterministic reply used when generation will
// not hold the line on a deal-breaker.
func (a *Avatar) disagreementMessage(sc *Context, dealBreaker string) types.Message {
	return types.Message{
		SessionID: sc.SessionID,
		SenderID:  a.userID,
		Role:      types.RoleAvatar,
		Content:   fmt.Sprintf("I disagree. For me this is not negotiable: %s.", dealBreaker),
		Emotion:   types.EmotionConflict,
		CreatedAt: time.Now(),
	}
}

// triggeredDealBreaker returns the first deal-breaker whose significant
// words appear in the topic, or "" when none is touched.
func triggeredDealBreaker(topic string, dealBreakers []string) string {
	if topic == "" {
		return ""
	}
	lowered := strings.ToLower(topic)
	for _, db := range dealBreakers {
		for _, word := range strings.Fields(strings.ToLower(db)) {
			if len(word) > 3 && strings.Contains(lowered, word) {
				return db
			}
		}
	}
	return ""
}

func containsDisagreement(reply string) bool {
	lowered := strings.ToLower(reply)
	for _, marker := range disagreementMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
