package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/helmsman-ai/helmsman/internal/domain/chat"
)

// Event type constants for WebSocket messages.
const (
	EventChatState     = "chat.state"
	EventSessionStatus = "session.status"
	EventPRCreated     = "pr.created"
)

// ChatStateEvent carries a full conversation-state snapshot. The gateway
// pushes one on every reducer fold; clients render the latest and may drop
// intermediates.
type ChatStateEvent struct {
	SessionID string     `json:"session_id"`
	State     chat.State `json:"state"`
}

// Session implements the session scoping used by BroadcastEvent.
func (e ChatStateEvent) Session() string { return e.SessionID }

// SessionStatusEvent is broadcast when a session's connection or activity
// status changes.
type SessionStatusEvent struct {
	SessionID  string               `json:"session_id"`
	Connection chat.ConnectionState `json:"connection"`
	Streaming  bool                 `json:"streaming"`
}

func (e SessionStatusEvent) Session() string { return e.SessionID }

// PRCreatedEvent surfaces the pr-created side channel.
type PRCreatedEvent struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

func (e PRCreatedEvent) Session() string { return e.SessionID }

// sessionScoped is implemented by payloads tied to a single session.
type sessionScoped interface {
	Session() string
}

// BroadcastEvent marshals a typed event and broadcasts it, scoping delivery
// to the payload's session when it has one. Implements broadcast.Broadcaster.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	msg := Message{Type: eventType, Payload: json.RawMessage(data)}
	if s, ok := payload.(sessionScoped); ok {
		msg.SessionID = s.Session()
	}
	h.Broadcast(ctx, msg)
}
