// Package chat defines per-session conversation state and the pure reducer
// that folds agent events into it.
package chat

import (
	"time"

	"github.com/helmsman-ai/helmsman/internal/domain/cost"
	"github.com/helmsman-ai/helmsman/internal/domain/event"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolStatus is the lifecycle state of one tool invocation.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// ToolInvocation records one agent-initiated action and its lifecycle.
// Within one message CallID is unique; repeated updates for the same call
// merge into a single invocation, last write wins.
type ToolInvocation struct {
	CallID    string         `json:"call_id"`
	Tool      string         `json:"tool"`
	Status    ToolStatus     `json:"status"`
	Input     map[string]any `json:"input,omitempty"`
	Output    string         `json:"output,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// Duration returns endedAt-startedAt when both timestamps are present.
func (t ToolInvocation) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.EndedAt == nil {
		return 0, false
	}
	return t.EndedAt.Sub(*t.StartedAt), true
}

// ErrorInfo tags a system message that represents a failure.
type ErrorInfo struct {
	Category  event.Category `json:"category"`
	Retryable bool           `json:"retryable"`
	Message   string         `json:"message"`
}

// Message is one chat turn. User messages are immutable after creation;
// the assistant message currently streaming is mutated in place by the
// reducer until the turn's terminal event.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Tools     []ToolInvocation `json:"tools,omitempty"`
	Reasoning []string         `json:"reasoning,omitempty"`
	Error     *ErrorInfo       `json:"error,omitempty"`
	Usage     *cost.Usage      `json:"usage,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Turn is the cost/progress accumulator for one in-flight request cycle.
type Turn struct {
	Active bool       `json:"active"`
	Usage  cost.Usage `json:"usage"`
	Steps  int        `json:"steps"`
}

// ConnectionState is the out-of-band push channel status. It gates delivery
// of cross-client events, not the correctness of the SSE turn logic.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

// State is the reducible conversation state for one session.
type State struct {
	Messages    []Message        `json:"messages"`
	StreamingID string           `json:"streaming_id,omitempty"`
	Turn        Turn             `json:"turn"`
	Todos       []event.TodoItem `json:"todos,omitempty"`
	Diff        []event.FileDiff `json:"diff,omitempty"`
	Status      string           `json:"status,omitempty"`
	PRURL       string           `json:"pr_url,omitempty"`
}

// Message returns the message with the given ID and whether it exists.
func (s State) Message(id string) (Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Streaming returns the message currently receiving deltas, if any.
func (s State) Streaming() (Message, bool) {
	if s.StreamingID == "" {
		return Message{}, false
	}
	return s.Message(s.StreamingID)
}
