package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWatchSession streams session events over a websocket until the
// session finishes or the client goes away.
func handleWatchSession(hub Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		events, cancel, err := hub.Subscribe(sessionID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		defer cancel()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "session_id", sessionID, "error", err.Error())
			return
		}
		defer conn.Close()

		// Drain client frames so closes are noticed.
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"),
						time.Now().Add(wsWriteTimeout))
					return
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					slog.Warn("dropping websocket observer", "session_id", sessionID, "error", err.Error())
					return
				}
			case <-clientGone:
				return
			}
		}
	}
}
