// Package event defines the closed union of agent-activity events carried
// over the session SSE stream, and the discriminator that classifies decoded
// frames into it.
package event

import (
	"time"

	"github.com/helmsman-ai/helmsman/internal/domain/cost"
)

// Type identifies the kind of agent event.
type Type string

const (
	TypeStatus             Type = "status"
	TypeMessagePartUpdated Type = "message.part.updated"
	TypeSessionStatus      Type = "session.status"
	TypeSessionIdle        Type = "session.idle"
	TypeSessionDiff        Type = "session.diff"
	TypeSessionError       Type = "session.error"
	TypeTodoUpdated        Type = "todo.updated"
	TypeFileWatcher        Type = "file-watcher.updated"
	TypeCommandExecuted    Type = "command.executed"
	TypeDone               Type = "done"
	TypeError              Type = "error"
)

// PartType identifies the kind of message part inside a
// message.part.updated event.
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartTool       PartType = "tool"
	PartStepStart  PartType = "step-start"
	PartStepFinish PartType = "step-finish"
)

// Category classifies a failure for retry policy and UI affordances.
type Category string

const (
	CategoryTransient  Category = "transient"
	CategoryPersistent Category = "persistent"
	CategoryUserAction Category = "user-action"
	CategoryFatal      Category = "fatal"
)

// Event is one classified agent-activity event. Exactly the payload field
// matching Type is populated; PRURL is a side channel that may accompany
// any event type.
type Event struct {
	Type    Type
	Status  *Status
	Part    *MessagePart
	Todos   []TodoItem
	Diff    []FileDiff
	File    *FileChange
	Command *CommandResult
	Err     *Failure
	PRURL   string
}

// Terminal reports whether the event ends the current turn.
// Errors are terminal only when fatal; a session.error always is.
func (e Event) Terminal() bool {
	switch e.Type {
	case TypeDone, TypeSessionIdle, TypeSessionError:
		return true
	case TypeError:
		return e.Err != nil && e.Err.Category == CategoryFatal
	}
	return false
}

// Status carries a free-text progress label plus a machine status code
// (initializing, provisioning, cloning, tool-call, agent-thinking, ...).
type Status struct {
	Label string `json:"label"`
	Code  string `json:"code"`
}

// MessagePart is one part of a streamed assistant message.
type MessagePart struct {
	ID        string         `json:"id"`
	MessageID string         `json:"messageID"`
	Type      PartType       `json:"type"`
	Text      string         `json:"text"`
	Delta     *string        `json:"delta"`
	Tool      string         `json:"tool"`
	CallID    string         `json:"callID"`
	State     *ToolState     `json:"state"`
	Time      *TimeRange     `json:"time"`
	Tokens    *TokenInfo     `json:"tokens"`
	Cost      float64        `json:"cost"`
	Metadata  map[string]any `json:"metadata"`
}

// StepUsage converts a step-finish part into a cost.Usage.
func (p *MessagePart) StepUsage() cost.Usage {
	u := cost.Usage{CostUSD: p.Cost}
	if p.Tokens != nil {
		u.TokensIn = int64(p.Tokens.Input)
		u.TokensOut = int64(p.Tokens.Output)
		u.TokensReasoning = int64(p.Tokens.Reasoning)
		u.CacheRead = int64(p.Tokens.Cache.Read)
		u.CacheWrite = int64(p.Tokens.Cache.Write)
	}
	return u
}

// ToolState is the lifecycle snapshot of a tool call inside a tool part.
type ToolState struct {
	Status string         `json:"status"`
	Input  map[string]any `json:"input"`
	Output string         `json:"output"`
	Title  string         `json:"title"`
	Error  string         `json:"error"`
	Time   *TimeRange     `json:"time"`
}

// TimeRange holds start/end instants in Unix milliseconds. End is nil while
// the activity is still running.
type TimeRange struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end"`
}

// StartTime returns Start as a time.Time, or the zero value when unset.
func (t *TimeRange) StartTime() time.Time {
	if t == nil || t.Start == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.Start)
}

// EndTime returns End as a time.Time and whether it is set.
func (t *TimeRange) EndTime() (time.Time, bool) {
	if t == nil || t.End == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*t.End), true
}

// TokenInfo is the per-step token breakdown attached to step-finish parts.
type TokenInfo struct {
	Input     int       `json:"input"`
	Output    int       `json:"output"`
	Reasoning int       `json:"reasoning"`
	Cache     CacheInfo `json:"cache"`
}

// CacheInfo counts prompt-cache reads and writes.
type CacheInfo struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// TodoItem is one entry of the agent's task list. todo.updated events carry
// the full replacement list.
type TodoItem struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// FileDiff is one changed file in a session.diff event.
type FileDiff struct {
	File      string `json:"file"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// FileChange is a filesystem notification from the sandbox file watcher.
type FileChange struct {
	Action string `json:"action"` // "create", "modify", "delete"
	Path   string `json:"path"`
}

// CommandResult is a shell command completion notice.
type CommandResult struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
}

// Failure carries the error taxonomy for error and session.error events.
type Failure struct {
	Category  Category `json:"category"`
	Retryable bool     `json:"retryable"`
	Message   string   `json:"message"`
}
