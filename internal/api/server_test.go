package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/easeaico/project-duet/internal/orchestrator"
	"github.com/easeaico/project-duet/internal/session"
	"github.com/easeaico/project-duet/internal/types"
)

type fakeHub struct {
	createErr  error
	sessionID  string
	sess       *types.ConversationSession
	sessErr    error
	abortErr   error
	report     *types.CompatibilityReport
	reportErr  error
	history    []types.CompatibilityReport
	trend      string
	events     chan session.Event
	subErr     error
	aborted    []string
	lastCreate orchestrator.CreateRequest
}

func (h *fakeHub) CreateSession(_ context.Context, req orchestrator.CreateRequest) (string, error) {
	h.lastCreate = req
	return h.sessionID, h.createErr
}

func (h *fakeHub) GetSession(context.Context, string) (*types.ConversationSession, error) {
	return h.sess, h.sessErr
}

func (h *fakeHub) Abort(sessionID, _ string) error {
	h.aborted = append(h.aborted, sessionID)
	return h.abortErr
}

func (h *fakeHub) Subscribe(string) (<-chan session.Event, func(), error) {
	if h.subErr != nil {
		return nil, nil, h.subErr
	}
	return h.events, func() {}, nil
}

func (h *fakeHub) LatestReport(context.Context, string, string, string) (*types.CompatibilityReport, error) {
	return h.report, h.reportErr
}

func (h *fakeHub) PairHistory(context.Context, string, string) ([]types.CompatibilityReport, string, error) {
	return h.history, h.trend, nil
}

func TestCreateSessionStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"created", nil, http.StatusCreated},
		{"invalid participants", types.ErrInvalidParticipants, http.StatusBadRequest},
		{"profile incomplete", types.ErrProfileIncomplete, http.StatusConflict},
		{"admission paused", types.ErrAdmissionPaused, http.StatusServiceUnavailable},
		{"storage unavailable", types.ErrStorageUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hub := &fakeHub{sessionID: "s1", createErr: tc.err}
			handler := NewHandler(hub)

			body := strings.NewReader(`{"participant_ids":["alice","bob"],"session_type":"matchmaking"}`)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", body))

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.err == nil {
				var resp map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if resp["session_id"] != "s1" {
					t.Errorf("session_id = %q", resp["session_id"])
				}
				if hub.lastCreate.Type != types.SessionMatchmaking {
					t.Errorf("decoded session type = %q", hub.lastCreate.Type)
				}
			}
		})
	}
}

func TestCreateSessionRejectsBadJSON(t *testing.T) {
	handler := NewHandler(&fakeHub{sessionID: "s1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{nope")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	handler := NewHandler(&fakeHub{sessErr: types.ErrSessionNotFound})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetSessionReturnsSnapshot(t *testing.T) {
	handler := NewHandler(&fakeHub{sess: &types.ConversationSession{ID: "s1", Status: types.StatusActive}})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sess types.ConversationSession
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if sess.ID != "s1" || sess.Status != types.StatusActive {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestAbortSession(t *testing.T) {
	hub := &fakeHub{}
	handler := NewHandler(hub)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/s1/abort?reason=testing", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(hub.aborted) != 1 || hub.aborted[0] != "s1" {
		t.Errorf("aborted = %v", hub.aborted)
	}
}

func TestReportsRequirePairOrSession(t *testing.T) {
	handler := NewHandler(&fakeHub{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?user_a=alice", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReportsTrendQuery(t *testing.T) {
	hub := &fakeHub{
		history: []types.CompatibilityReport{{Overall: 0.4}, {Overall: 0.7}},
		trend:   types.TrendImproving,
	}
	handler := NewHandler(hub)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?user_a=alice&user_b=bob&trend=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Trend   string                      `json:"trend"`
		Reports []types.CompatibilityReport `json:"reports"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Trend != types.TrendImproving || len(resp.Reports) != 2 {
		t.Errorf("unexpected trend response %+v", resp)
	}
}

func TestWatchStreamsEventsUntilSessionEnds(t *testing.T) {
	events := make(chan session.Event, 4)
	hub := &fakeHub{events: events}
	server := httptest.NewServer(NewHandler(hub))
	defer server.Close()

	msg := types.Message{SessionID: "s1", Sequence: 1, Content: "hello"}
	events <- session.Event{Type: session.EventMessage, Message: &msg}
	close(events)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/s1/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	var ev session.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != session.EventMessage || ev.Message.Content != "hello" {
		t.Errorf("unexpected event %+v", ev)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("stream should close after the channel drains")
	}
}

func TestWatchUnknownSession(t *testing.T) {
	handler := NewHandler(&fakeHub{subErr: types.ErrSessionNotFound})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/nope/watch", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	handler := NewHandler(&fakeHub{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
