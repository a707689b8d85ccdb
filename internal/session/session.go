// Package session implements the bounded conversation state machine. A
// Runner owns one session's history exclusively; everything outside observes
// through snapshots and events.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/easeaico/project-duet/internal/agent"
	"github.com/easeaico/project-duet/internal/scenario"
	"github.com/easeaico/project-duet/internal/scoring"
	"github.com/easeaico/project-duet/internal/types"
)

// Observer event types.
const (
	EventMessage = "message"
	EventPartial = "partial_report"
	EventStatus  = "status"
	EventReport  = "report"
)

// Event is one observer stream item.
type Event struct {
	Type    string                     `json:"type"`
	Message *types.Message             `json:"message,omitempty"`
	Partial *types.PartialReport       `json:"partial,omitempty"`
	Status  string                     `json:"status,omitempty"`
	Reason  string                     `json:"reason,omitempty"`
	Report  *types.CompatibilityReport `json:"report,omitempty"`
}

// Store is the session persistence surface the runner needs.
type Store interface {
	AppendMessage(ctx context.Context, msg types.Message) error
	Finalize(ctx context.Context, id, status, reason string, turnCount int, endedAt time.Time) error
}

// ReportStore persists finalized compatibility reports.
type ReportStore interface {
	Save(ctx context.Context, report types.CompatibilityReport) error
}

// Notifier pushes events to observers. Publish must never block.
type Notifier interface {
	Publish(sessionID string, ev Event)
}

// Options bound one session run.
type Options struct {
	MaxTurns       int
	TurnTimeout    time.Duration
	MaxDuration    time.Duration
	LoopWindow     int
	LoopSimilarity float64
	FallbackLimit  int
	// OnQuota is invoked when a turn surfaces a generation quota error.
	OnQuota func()
}

func (o *Options) applyDefaults() {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 20
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = 30 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = time.Duration(o.MaxTurns) * o.TurnTimeout
	}
	if o.LoopWindow <= 0 {
		o.LoopWindow = 4
	}
	if o.LoopSimilarity <= 0 || o.LoopSimilarity > 1 {
		o.LoopSimilarity = 0.82
	}
	if o.FallbackLimit <= 0 {
		o.FallbackLimit = 3
	}
}

const redirectInstruction = "The conversation is repeating itself. Bring up a different aspect of the situation you have not discussed yet."

// historyWindow is how many recent messages an agent sees each turn.
const historyWindow = 12

// Runner drives one session from pending to a terminal status. It is the
// sole writer of the session's history.
type Runner struct {
	store    Store
	reports  ReportStore
	notifier Notifier
	agents   []agent.Agent
	scorer   *scoring.Scorer
	scn      *types.Scenario
	opts     Options

	mu          sync.RWMutex
	sess        types.ConversationSession
	abortReason string

	finalizeOnce sync.Once
	fallbacks    int
	redirect     string
	done         chan struct{}
}

// New creates a Runner. The scorer may be nil for training sessions; the
// scenario may be nil for sessions without a scripted situation.
func New(sess types.ConversationSession, agents []agent.Agent, scorer *scoring.Scorer, scn *types.Scenario, store Store, reports ReportStore, notifier Notifier, opts Options) *Runner {
	opts.applyDefaults()
	sess.Status = types.StatusPending
	return &Runner{
		store:    store,
		reports:  reports,
		notifier: notifier,
		agents:   agents,
		scorer:   scorer,
		scn:      scn,
		opts:     opts,
		sess:     sess,
		done:     make(chan struct{}),
	}
}

// Run advances turns until a terminal condition. It blocks until the session
// is finalized.
func (r *Runner) Run(ctx context.Context) {
	r.mu.Lock()
	r.sess.Status = types.StatusActive
	if r.sess.StartedAt.IsZero() {
		r.sess.StartedAt = time.Now()
	}
	deadline := r.sess.StartedAt.Add(r.opts.MaxDuration)
	r.mu.Unlock()
	r.publish(Event{Type: EventStatus, Status: types.StatusActive})

	turnIdx := 0
	for {
		// Termination checks run at turn boundaries only; an in-flight
		// generation call completes or hits its own timeout.
		if ctx.Err() != nil {
			r.finalize(types.StatusAborted, "run context cancelled")
			return
		}
		if reason := r.requestedAbort(); reason != "" {
			r.finalize(types.StatusAborted, reason)
			return
		}
		if time.Now().After(deadline) {
			r.finalize(types.StatusTimedOut, "max duration exceeded")
			return
		}
		if r.Snapshot().TurnCount >= r.opts.MaxTurns {
			r.finalize(types.StatusCompleted, "max turns reached")
			return
		}

		ag := r.agents[turnIdx%len(r.agents)]
		turnIdx++

		turnCtx, cancel := context.WithTimeout(ctx, r.opts.TurnTimeout)
		msg, err := ag.Respond(turnCtx, r.agentContext())
		cancel()
		if err != nil {
			if errors.Is(err, types.ErrGenerationQuota) && r.opts.OnQuota != nil {
				r.opts.OnQuota()
			}
			slog.Warn("agent turn degraded", "session_id", r.sess.ID, "agent_id", ag.ID(), "error", err.Error())
		}

		if participantRole(msg.Role) && !msg.Fallback && r.isLooping(msg.Content) {
			r.appendMessage(ctx, r.redirectMessage())
			r.redirect = redirectInstruction
			continue
		}
		r.redirect = ""

		r.appendMessage(ctx, msg)

		if msg.Fallback {
			r.fallbacks++
			if r.fallbacks >= r.opts.FallbackLimit {
				r.finalize(types.StatusAborted, "generation fallback limit reached")
				return
			}
		}
		if msg.Emotion == types.EmotionClosing {
			r.finalize(types.StatusCompleted, "closing signal")
			return
		}
		if r.scn != nil && scenario.CriteriaMet(*r.scn, r.Snapshot().Messages) {
			r.finalize(types.StatusCompleted, "success criteria met")
			return
		}
	}
}

// Abort requests cancellation. It is observed at the next turn boundary.
func (r *Runner) Abort(reason string) {
	if reason == "" {
		reason = "aborted by operator"
	}
	r.mu.Lock()
	if r.abortReason == "" {
		r.abortReason = reason
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the session state.
func (r *Runner) Snapshot() types.ConversationSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess := r.sess
	sess.Messages = make([]types.Message, len(r.sess.Messages))
	copy(sess.Messages, r.sess.Messages)
	return sess
}

// Done is closed when the session reaches a terminal status.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) requestedAbort() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.abortReason
}

func (r *Runner) agentContext() *agent.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := len(r.sess.Messages) - historyWindow
	if start < 0 {
		start = 0
	}
	window := make([]types.Message, len(r.sess.Messages)-start)
	copy(window, r.sess.Messages[start:])
	return &agent.Context{
		SessionID:   r.sess.ID,
		SessionType: r.sess.Type,
		Scenario:    r.scn,
		Window:      window,
		Instruction: r.redirect,
	}
}

func (r *Runner) isLooping(content string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return looping(r.sess.Messages, content, r.opts.LoopWindow, r.opts.LoopSimilarity)
}

func (r *Runner) redirectMessage() types.Message {
	return types.Message{
		SessionID: r.sess.ID,
		SenderID:  "facilitator",
		Role:      types.RoleSystem,
		Content:   "Let's change direction. " + redirectInstruction,
		CreatedAt: time.Now(),
	}
}

// appendMessage assigns the next sequence number, persists the message,
// feeds the scorer, and notifies observers. Persistence failures degrade to
// a warning; the in-memory history stays authoritative for the run.
func (r *Runner) appendMessage(ctx context.Context, msg types.Message) {
	r.mu.Lock()
	msg.SessionID = r.sess.ID
	msg.Sequence = len(r.sess.Messages) + 1
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	r.sess.Messages = append(r.sess.Messages, msg)
	if participantRole(msg.Role) {
		r.sess.TurnCount++
	}
	r.mu.Unlock()

	if err := r.store.AppendMessage(ctx, msg); err != nil {
		slog.Warn("failed to persist message", "session_id", r.sess.ID, "sequence", msg.Sequence, "error", err.Error())
	}

	r.publish(Event{Type: EventMessage, Message: &msg})
	if r.scorer != nil && participantRole(msg.Role) {
		partial := r.scorer.Update(msg)
		r.publish(Event{Type: EventPartial, Partial: &partial})
	}
}

// finalize performs the single terminal transition. Under a concurrent
// abort and timeout race, whichever reaches here first wins and the other
// is a no-op.
func (r *Runner) finalize(status, reason string) {
	r.finalizeOnce.Do(func() {
		r.mu.Lock()
		r.sess.Status = status
		r.sess.EndReason = reason
		r.sess.EndedAt = time.Now()
		sess := r.sess
		r.mu.Unlock()

		// Terminal writes use their own context so cancellation cannot
		// lose the outcome.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := r.store.Finalize(ctx, sess.ID, status, reason, sess.TurnCount, sess.EndedAt); err != nil {
			slog.Error("failed to persist terminal session state", "session_id", sess.ID, "error", err.Error())
		}

		if r.scorer != nil {
			report, err := r.scorer.Finalize(&sess)
			if err != nil {
				slog.Error("failed to finalize report", "session_id", sess.ID, "error", err.Error())
			} else {
				if err := r.reports.Save(ctx, report); err != nil {
					slog.Error("failed to persist report", "session_id", sess.ID, "error", err.Error())
				}
				r.publish(Event{Type: EventReport, Report: &report})
			}
		}

		slog.Info("session finalized", "session_id", sess.ID, "status", status, "reason", reason, "turns", sess.TurnCount)
		r.publish(Event{Type: EventStatus, Status: status, Reason: reason})
		close(r.done)
	})
}

func (r *Runner) publish(ev Event) {
	if r.notifier != nil {
		r.notifier.Publish(r.sess.ID, ev)
	}
}

func participantRole(role string) bool {
	return role == types.RoleAvatar || role == types.RoleUser
}
