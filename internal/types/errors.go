package types

import "errors"

// Error taxonomy. Transient infrastructure errors are recovered locally via
// retry or fallback; precondition errors are rejected at session creation and
// never enter the state machine.
var (
	// ErrStorageUnavailable means the memory store backend could not be
	// reached after bounded retries.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrGenerationTimeout means a generation call exceeded its per-call
	// timeout. Triggers the agent's fallback response.
	ErrGenerationTimeout = errors.New("generation timeout")

	// ErrGenerationQuota means the generation backend rejected the call for
	// quota or rate-limit reasons. Pauses new session admission.
	ErrGenerationQuota = errors.New("generation quota exceeded")

	// ErrProfileIncomplete means a participant's profile fails completeness
	// validation for the requested session type.
	ErrProfileIncomplete = errors.New("profile incomplete")

	// ErrInvalidParticipants means the session request carried fewer
	// participants than the session type requires.
	ErrInvalidParticipants = errors.New("invalid participants")

	// ErrSessionAborted means the session was cancelled by an operator.
	ErrSessionAborted = errors.New("session aborted by operator")

	// ErrSessionNotFound means no session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAdmissionPaused means new session creation is paused while the
	// generation quota cooldown elapses.
	ErrAdmissionPaused = errors.New("session admission paused")
)
