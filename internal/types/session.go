package types

import "time"

// Session types.
const (
	SessionTraining    = "training"
	SessionMatchmaking = "matchmaking"
	SessionSimulation  = "simulation"
)

// Session statuses. pending -> active -> {completed, aborted, timed_out}.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusTimedOut  = "timed_out"
)

// Message emotion/conflict annotations.
const (
	EmotionNeutral  = "neutral"
	EmotionPositive = "positive"
	EmotionNegative = "negative"
	// EmotionConflict marks an explicit disagreement held against scenario
	// pressure.
	EmotionConflict = "conflict"
	// EmotionClosing is the facilitator's explicit closing signal.
	EmotionClosing = "closing"
)

// Message sender roles.
const (
	RoleAvatar        = "avatar"
	RoleScenarioAgent = "scenario_agent"
	RoleSystem        = "system"
	RoleUser          = "user"
)

// ConversationSession is a bounded multi-party exchange. It is mutated only
// by its own turn-advance and termination logic, and becomes immutable once
// it reaches a terminal status.
type ConversationSession struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Participants []string `json:"participants"`
	ScenarioID   string   `json:"scenario_id,omitempty"`
	Status       string   `json:"status"`
	// TurnCount counts participant turns; facilitator redirects are excluded.
	TurnCount int `json:"turn_count"`
	// EndReason records why the session reached a terminal status.
	EndReason string    `json:"end_reason,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Messages  []Message `json:"messages"`
}

// Message is one appended utterance. Sequence numbers are monotonically
// increasing within a session.
type Message struct {
	SessionID string `json:"session_id"`
	Sequence  int    `json:"sequence"`
	SenderID  string `json:"sender_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	// Emotion is an optional structured annotation (e.g. "conflict",
	// "positive") attached by the sender.
	Emotion string `json:"emotion,omitempty"`
	// Fallback marks a pre-defined neutral continuation substituted after a
	// generation failure.
	Fallback  bool      `json:"fallback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Terminal reports whether the status is terminal.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusAborted, StatusTimedOut:
		return true
	}
	return false
}

// Scenario categories.
const (
	CategoryFinancial     = "financial"
	CategoryFamily        = "family"
	CategoryParenting     = "parenting"
	CategoryLifestyle     = "lifestyle"
	CategoryCareer        = "career"
	CategoryCommunication = "communication"
)

// Scenario is a scripted situation drawn from the library. Immutable once
// selected for a session.
type Scenario struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	// Difficulty is an integer level 1-5.
	Difficulty      int      `json:"difficulty"`
	Description     string   `json:"description"`
	SuccessCriteria []string `json:"success_criteria"`
}
