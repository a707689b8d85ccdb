// Package orchestrator creates sessions, runs each as its own goroutine,
// and answers queries about their state and reports.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/project-duet/internal/agent"
	"github.com/easeaico/project-duet/internal/generation"
	"github.com/easeaico/project-duet/internal/memory"
	"github.com/easeaico/project-duet/internal/scenario"
	"github.com/easeaico/project-duet/internal/scoring"
	"github.com/easeaico/project-duet/internal/session"
	"github.com/easeaico/project-duet/internal/types"
)

// SessionStore is the session persistence surface the hub needs.
type SessionStore interface {
	Create(ctx context.Context, sess types.ConversationSession) error
	AppendMessage(ctx context.Context, msg types.Message) error
	Finalize(ctx context.Context, id, status, reason string, turnCount int, endedAt time.Time) error
	Get(ctx context.Context, id string) (*types.ConversationSession, error)
}

// ReportStore is the report persistence surface the hub needs.
type ReportStore interface {
	Save(ctx context.Context, report types.CompatibilityReport) error
	BySession(ctx context.Context, sessionID string) (*types.CompatibilityReport, error)
	HistoryByPair(ctx context.Context, userA, userB string) ([]types.CompatibilityReport, error)
}

// CreateRequest describes a session to create.
type CreateRequest struct {
	Participants []string `json:"participant_ids"`
	Type         string   `json:"session_type"`
	ScenarioID   string   `json:"scenario_id,omitempty"`
}

// Options bound every session the hub creates.
type Options struct {
	Session       session.Options
	TopK          int
	Smoothing     float64
	QuotaCooldown time.Duration
}

// Hub is the session orchestrator.
type Hub struct {
	memories  *memory.Store
	sessions  SessionStore
	reports   ReportStore
	gen       generation.Generator
	observers *ObserverHub
	opts      Options

	mu          sync.Mutex
	running     map[string]*session.Runner
	pausedUntil time.Time

	runCtx context.Context
	wg     sync.WaitGroup
}

// NewHub creates a Hub. runCtx bounds the lifetime of every session the hub
// starts.
func NewHub(runCtx context.Context, memories *memory.Store, sessions SessionStore, reports ReportStore, gen generation.Generator, opts Options) *Hub {
	if opts.QuotaCooldown <= 0 {
		opts.QuotaCooldown = time.Minute
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Hub{
		memories:  memories,
		sessions:  sessions,
		reports:   reports,
		gen:       gen,
		observers: NewObserverHub(),
		opts:      opts,
		running:   make(map[string]*session.Runner),
		runCtx:    runCtx,
	}
}

// CreateSession validates the request, assembles the participant agents, and
// starts the session goroutine. It returns the new session id.
func (h *Hub) CreateSession(ctx context.Context, req CreateRequest) (string, error) {
	if h.admissionPaused() {
		return "", types.ErrAdmissionPaused
	}

	required, err := requiredParticipants(req.Type)
	if err != nil {
		return "", err
	}
	if len(req.Participants) != required {
		return "", fmt.Errorf("%w: %s sessions need %d participants, got %d",
			types.ErrInvalidParticipants, req.Type, required, len(req.Participants))
	}

	if req.Type != types.SessionTraining {
		for _, userID := range req.Participants {
			complete, missing, err := h.memories.ValidateCompleteness(ctx, userID)
			if err != nil {
				return "", err
			}
			if !complete {
				return "", fmt.Errorf("%w: user %s missing dimensions %v", types.ErrProfileIncomplete, userID, missing)
			}
		}
	}

	sessionID := uuid.New().String()
	agents, scorer, scn, err := h.assemble(ctx, sessionID, req)
	if err != nil {
		return "", err
	}

	sess := types.ConversationSession{
		ID:           sessionID,
		Type:         req.Type,
		Participants: req.Participants,
		Status:       types.StatusPending,
		StartedAt:    time.Now(),
	}
	if scn != nil {
		sess.ScenarioID = scn.ID
	}
	if err := h.sessions.Create(ctx, sess); err != nil {
		return "", err
	}

	sessOpts := h.opts.Session
	sessOpts.OnQuota = h.pauseAdmission
	runner := session.New(sess, agents, scorer, scn, h.sessions, h.reports, h.observers, sessOpts)

	h.mu.Lock()
	h.running[sess.ID] = runner
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		runner.Run(h.runCtx)

		h.mu.Lock()
		delete(h.running, sess.ID)
		h.mu.Unlock()
		h.observers.CloseSession(sess.ID)
	}()

	slog.Info("session started", "session_id", sess.ID, "type", sess.Type, "participants", sess.Participants)
	return sess.ID, nil
}

// assemble builds the agent roster, scorer, and scenario for one request.
func (h *Hub) assemble(ctx context.Context, sessionID string, req CreateRequest) ([]agent.Agent, *scoring.Scorer, *types.Scenario, error) {
	switch req.Type {
	case types.SessionTraining:
		userID := req.Participants[0]
		return []agent.Agent{
			agent.NewTrainer(userID, h.memories, h.gen),
			agent.NewAvatar(userID, h.memories, h.gen, h.opts.TopK),
		}, nil, nil, nil

	case types.SessionMatchmaking, types.SessionSimulation:
		userA, userB := req.Participants[0], req.Participants[1]
		profileA, err := h.memories.BuildProfile(ctx, userA)
		if err != nil {
			return nil, nil, nil, err
		}
		profileB, err := h.memories.BuildProfile(ctx, userB)
		if err != nil {
			return nil, nil, nil, err
		}

		var scn types.Scenario
		if req.ScenarioID != "" {
			scn, err = scenario.ByID(req.ScenarioID)
			if err != nil {
				return nil, nil, nil, err
			}
		} else {
			category := types.CategoryCommunication
			if req.Type == types.SessionSimulation {
				category = types.CategoryFamily
			}
			scn = scenario.PickForPair(profileA, profileB, category)
		}

		scorer := scoring.NewScorer(sessionID, userA, userB, h.opts.Smoothing, scoring.ValueTerms(profileA, profileB))
		agents := []agent.Agent{
			agent.NewScenarioAgent(scn, h.gen),
			agent.NewAvatar(userA, h.memories, h.gen, h.opts.TopK),
			agent.NewAvatar(userB, h.memories, h.gen, h.opts.TopK),
		}
		return agents, scorer, &scn, nil
	}
	return nil, nil, nil, fmt.Errorf("%w: unknown session type %q", types.ErrInvalidParticipants, req.Type)
}

// Abort requests cancellation of a running session.
func (h *Hub) Abort(sessionID, reason string) error {
	h.mu.Lock()
	runner, ok := h.running[sessionID]
	h.mu.Unlock()
	if !ok {
		return types.ErrSessionNotFound
	}
	runner.Abort(reason)
	return nil
}

// GetSession returns a live snapshot for a running session, or the persisted
// record for a finished one.
func (h *Hub) GetSession(ctx context.Context, sessionID string) (*types.ConversationSession, error) {
	h.mu.Lock()
	runner, ok := h.running[sessionID]
	h.mu.Unlock()
	if ok {
		sess := runner.Snapshot()
		return &sess, nil
	}
	return h.sessions.Get(ctx, sessionID)
}

// Subscribe attaches an observer to a session's event stream.
func (h *Hub) Subscribe(sessionID string) (<-chan session.Event, func(), error) {
	h.mu.Lock()
	_, ok := h.running[sessionID]
	h.mu.Unlock()
	if !ok {
		return nil, nil, types.ErrSessionNotFound
	}
	ch, cancel := h.observers.Subscribe(sessionID)
	return ch, cancel, nil
}

// LatestReport returns the report for a specific session, or the most recent
// one for the pair.
func (h *Hub) LatestReport(ctx context.Context, userA, userB, sessionID string) (*types.CompatibilityReport, error) {
	if sessionID != "" {
		return h.reports.BySession(ctx, sessionID)
	}
	history, err := h.reports.HistoryByPair(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, types.ErrSessionNotFound
	}
	return &history[len(history)-1], nil
}

// PairHistory returns the pair's full report history plus its trend label.
func (h *Hub) PairHistory(ctx context.Context, userA, userB string) ([]types.CompatibilityReport, string, error) {
	history, err := h.reports.HistoryByPair(ctx, userA, userB)
	if err != nil {
		return nil, "", err
	}
	return history, scoring.Trend(history), nil
}

// Close aborts every running session and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	for _, runner := range h.running {
		runner.Abort("orchestrator shutting down")
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// pauseAdmission starts the quota cooldown. In-flight sessions keep running.
func (h *Hub) pauseAdmission() {
	h.mu.Lock()
	defer h.mu.Unlock()
	until := time.Now().Add(h.opts.QuotaCooldown)
	if until.After(h.pausedUntil) {
		h.pausedUntil = until
		slog.Warn("generation quota exhausted, pausing session admission", "until", until)
	}
}

func (h *Hub) admissionPaused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Now().Before(h.pausedUntil)
}

func requiredParticipants(sessionType string) (int, error) {
	switch sessionType {
	case types.SessionTraining:
		return 1, nil
	case types.SessionMatchmaking, types.SessionSimulation:
		return 2, nil
	}
	return 0, fmt.Errorf("%w: unknown session type %q", types.ErrInvalidParticipants, sessionType)
}
