// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/easeaico/project-duet/internal/orchestrator"
	"github.com/easeaico/project-duet/internal/session"
	"github.com/easeaico/project-duet/internal/types"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Orchestrator is the hub surface the API layer consumes.
type Orchestrator interface {
	CreateSession(ctx context.Context, req orchestrator.CreateRequest) (string, error)
	GetSession(ctx context.Context, sessionID string) (*types.ConversationSession, error)
	Abort(sessionID, reason string) error
	Subscribe(sessionID string) (<-chan session.Event, func(), error)
	LatestReport(ctx context.Context, userA, userB, sessionID string) (*types.CompatibilityReport, error)
	PairHistory(ctx context.Context, userA, userB string) ([]types.CompatibilityReport, string, error)
}

// NewHandler builds the HTTP routes over the orchestrator.
func NewHandler(hub Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Post("/sessions", handleCreateSession(hub))
	r.Get("/sessions/{id}", handleGetSession(hub))
	r.Post("/sessions/{id}/abort", handleAbortSession(hub))
	r.Get("/sessions/{id}/watch", handleWatchSession(hub))
	r.Get("/reports", handleGetReports(hub))

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleCreateSession(hub Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req orchestrator.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		sessionID, err := hub.CreateSession(r.Context(), req)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
	}
}

func handleGetSession(hub Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := hub.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, sess)
	}
}

func handleAbortSession(hub Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reason := r.URL.Query().Get("reason")
		if reason == "" {
			reason = "aborted by operator"
		}
		if err := hub.Abort(chi.URLParam(r, "id"), reason); err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "aborting"})
	}
}

func handleGetReports(hub Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userA := q.Get("user_a")
		userB := q.Get("user_b")
		sessionID := q.Get("session_id")
		if sessionID == "" && (userA == "" || userB == "") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_a and user_b (or session_id) are required")
			return
		}

		if q.Get("trend") == "true" {
			history, trend, err := hub.PairHistory(r.Context(), userA, userB)
			if err != nil {
				respondDomainError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]any{
				"trend":   trend,
				"reports": history,
			})
			return
		}

		report, err := hub.LatestReport(r.Context(), userA, userB, sessionID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, report)
	}
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// respondDomainError maps the error taxonomy onto HTTP status codes.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidParticipants):
		httpError(w, http.StatusBadRequest, "invalid_participants", "%v", err)
	case errors.Is(err, types.ErrProfileIncomplete):
		httpError(w, http.StatusConflict, "profile_incomplete", "%v", err)
	case errors.Is(err, types.ErrSessionNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, types.ErrAdmissionPaused):
		httpError(w, http.StatusServiceUnavailable, "admission_paused", "%v", err)
	case errors.Is(err, types.ErrStorageUnavailable):
		httpError(w, http.StatusServiceUnavailable, "storage_unavailable", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "internal_error", "%v", err)
	}
}
