// Package agent implements the conversational agent variants: the trainer
// that interviews a user, the avatar that represents one, and the scenario
// agent that drives a scripted situation.
package agent

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/easeaico/project-duet/internal/types"
)

// Context carries what an agent sees when asked for a reply.
type Context struct {
	SessionID   string
	SessionType string
	Scenario    *types.Scenario
	// Window is the recent message history, oldest first.
	Window []types.Message
	// Instruction is an optional steer from the session (e.g. a facilitator
	// redirect the agent should honor).
	Instruction string
}

// Agent is the single capability all variants implement. Respond never
// propagates a generation failure: on error it substitutes the designated
// fallback message and returns the classified error alongside it so the
// caller can count fallbacks and observe quota exhaustion.
type Agent interface {
	ID() string
	Role() string
	Respond(ctx context.Context, sc *Context) (types.Message, error)
}

// FallbackText is the pre-defined neutral continuation substituted when the
// generation backend fails or times out.
const FallbackText = "I need a moment to gather my thoughts. Tell me more about how you see it."

func fallbackMessage(sc *Context, senderID, role string) types.Message {
	return types.Message{
		SessionID: sc.SessionID,
		SenderID:  senderID,
		Role:      role,
		Content:   FallbackText,
		Fallback:  true,
		CreatedAt: time.Now(),
	}
}

// historyContents converts the window into generation contents, mapping the
// agent's own messages to the model role.
func historyContents(window []types.Message, selfID string) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range window {
		role := "user"
		if msg.SenderID == selfID {
			role = "model"
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, genai.Role(role)))
	}
	return contents
}

// lastOther returns the most recent message not sent by selfID.
func lastOther(window []types.Message, selfID string) *types.Message {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].SenderID != selfID {
			return &window[i]
		}
	}
	return nil
}
