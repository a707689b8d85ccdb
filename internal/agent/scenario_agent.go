package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/easeaico/project-duet/internal/generation"
	"github.com/easeaico/project-duet/internal/scenario"
	"github.com/easeaico/project-duet/internal/types"
)

// ScenarioAgent facilitates a scripted situation between two avatars. Its
// first turn is a deterministic introduction of the scenario; later turns
// steer toward the unmet success criteria, and it signals closing once the
// criteria are satisfied.
type ScenarioAgent struct {
	scenario types.Scenario
	gen      generation.Generator

	introduced bool
}

// NewScenarioAgent returns a facilitator for the given scenario.
func NewScenarioAgent(s types.Scenario, gen generation.Generator) *ScenarioAgent {
	return &ScenarioAgent{scenario: s, gen: gen}
}

func (s *ScenarioAgent) ID() string   { return "facilitator" }
func (s *ScenarioAgent) Role() string { return types.RoleScenarioAgent }

func (s *ScenarioAgent) Respond(ctx context.Context, sc *Context) (types.Message, error) {
	if !s.introduced {
		s.introduced = true
		return types.Message{
			SessionID: sc.SessionID,
			SenderID:  s.ID(),
			Role:      types.RoleScenarioAgent,
			Content:   scenarioIntro(&s.scenario),
			CreatedAt: time.Now(),
		}, nil
	}

	if scenario.CriteriaMet(s.scenario, sc.Window) {
		return types.Message{
			SessionID: sc.SessionID,
			SenderID:  s.ID(),
			Role:      types.RoleScenarioAgent,
			Content:   "You two worked through it. Let's leave it there.",
			Emotion:   types.EmotionClosing,
			CreatedAt: time.Now(),
		}, nil
	}

	instruction, err := renderTemplate(scenarioFollowupTmpl, struct {
		Scenario *types.Scenario
	}{&s.scenario})
	if err != nil {
		return fallbackMessage(sc, s.ID(), types.RoleScenarioAgent), err
	}

	reply, genErr := s.gen.Generate(ctx, instruction, historyContents(sc.Window, s.ID()))
	if genErr != nil {
		slog.Warn("facilitator generation failed, using fallback", "scenario_id", s.scenario.ID, "error", genErr.Error())
		return fallbackMessage(sc, s.ID(), types.RoleScenarioAgent), genErr
	}

	return types.Message{
		SessionID: sc.SessionID,
		SenderID:  s.ID(),
		Role:      types.RoleScenarioAgent,
		Content:   reply,
		CreatedAt: time.Now(),
	}, nil
}
