package chat

import (
	"fmt"
	"slices"
	"time"

	"github.com/helmsman-ai/helmsman/internal/domain/event"
)

// Apply folds one agent event into the state and returns the next state.
// It is a pure function: the input state is never mutated, and now is
// injected so folds are reproducible in tests.
func Apply(s State, ev event.Event, now time.Time) State {
	switch ev.Type {
	case event.TypeMessagePartUpdated:
		s = applyPart(s, ev.Part, now)

	case event.TypeStatus, event.TypeSessionStatus:
		if ev.Status != nil {
			s.Status = statusLine(ev.Status)
		}

	case event.TypeTodoUpdated:
		// Full replacement list, no merge.
		s.Todos = ev.Todos

	case event.TypeSessionDiff:
		s.Diff = ev.Diff

	case event.TypeFileWatcher:
		if ev.File != nil {
			s.Status = ev.File.Action + " " + ev.File.Path
		}

	case event.TypeCommandExecuted:
		if ev.Command != nil {
			s.Status = fmt.Sprintf("$ %s (exit %d)", ev.Command.Command, ev.Command.ExitCode)
		}

	case event.TypeDone, event.TypeSessionIdle:
		s = finalize(s)

	case event.TypeError, event.TypeSessionError:
		s = applyError(s, ev, now)
	}

	if ev.PRURL != "" {
		s.PRURL = ev.PRURL
	}
	return s
}

// WithUserMessage appends an immutable user message.
func (s State) WithUserMessage(id, content string, now time.Time) State {
	s.Messages = append(slices.Clone(s.Messages), Message{
		ID:        id,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: now,
	})
	return s
}

// WithAssistantPlaceholder appends an empty assistant message and marks it
// as the streaming target for subsequent deltas.
func (s State) WithAssistantPlaceholder(id string, now time.Time) State {
	s.Messages = append(slices.Clone(s.Messages), Message{
		ID:        id,
		Role:      RoleAssistant,
		CreatedAt: now,
	})
	s.StreamingID = id
	s.Turn.Active = true
	return s
}

// WithoutMessage removes the message with the given ID, if present. The
// controller uses it to drop a dangling placeholder when a turn fails
// before any streaming began.
func (s State) WithoutMessage(id string) State {
	msgs := slices.Clone(s.Messages)
	s.Messages = slices.DeleteFunc(msgs, func(m Message) bool { return m.ID == id })
	if s.StreamingID == id {
		s.StreamingID = ""
	}
	return s
}

// MergeRemote inserts a message that arrived over the out-of-band push
// channel. Cross-stream ordering is not guaranteed, so the merge is a
// superset: dedupe by ID, never reorder existing messages.
func (s State) MergeRemote(m Message) State {
	for _, existing := range s.Messages {
		if existing.ID == m.ID {
			return s
		}
	}
	s.Messages = append(slices.Clone(s.Messages), m)
	return s
}

func applyPart(s State, p *event.MessagePart, now time.Time) State {
	if p == nil {
		return s
	}

	switch p.Type {
	case event.PartStepFinish:
		s.Turn.Usage = s.Turn.Usage.Add(p.StepUsage())
		s.Turn.Steps++
		return s

	case event.PartStepStart:
		return s
	}

	s, idx := ensureStreaming(s, p.MessageID, now)
	msg := s.Messages[idx]

	switch p.Type {
	case event.PartText:
		// Upstream sends either incremental deltas or cumulative snapshots.
		// A delta appends and never re-sends prior text; a full-text payload
		// always fully replaces.
		if p.Delta != nil {
			msg.Content += *p.Delta
		} else if p.Text != "" {
			msg.Content = p.Text
		}

	case event.PartReasoning:
		// Reasoning is cumulative: each event carries the full text so far,
		// so this replaces wholesale. Not the same as the text-delta case.
		text := p.Text
		if text == "" && p.Delta != nil {
			text = *p.Delta
		}
		msg.Reasoning = []string{text}

	case event.PartTool:
		msg.Tools = upsertTool(msg.Tools, p)
		s.Status = ToolLabel(p.Tool)
	}

	s.Messages[idx] = msg
	return s
}

// ensureStreaming returns the index of the streaming message, creating an
// assistant message when no placeholder exists (events can arrive before the
// controller seeds one, e.g. on a resumed session).
func ensureStreaming(s State, messageID string, now time.Time) (State, int) {
	if s.StreamingID != "" {
		for i, m := range s.Messages {
			if m.ID == s.StreamingID {
				s.Messages = slices.Clone(s.Messages)
				return s, i
			}
		}
	}

	id := messageID
	if id == "" {
		id = fmt.Sprintf("assistant-%d", len(s.Messages))
	}
	s.Messages = append(slices.Clone(s.Messages), Message{
		ID:        id,
		Role:      RoleAssistant,
		CreatedAt: now,
	})
	s.StreamingID = id
	s.Turn.Active = true
	return s, len(s.Messages) - 1
}

// upsertTool merges a tool snapshot into the invocation list keyed by callID.
// Order is first-seen; repeated updates overwrite in place, never append
// duplicates. Fields absent from the update keep their previous value.
func upsertTool(tools []ToolInvocation, p *event.MessagePart) []ToolInvocation {
	inv := ToolInvocation{CallID: p.CallID, Tool: p.Tool}
	idx := -1
	for i, t := range tools {
		if t.CallID == p.CallID {
			inv = t
			idx = i
			break
		}
	}
	if p.Tool != "" {
		inv.Tool = p.Tool
	}

	if st := p.State; st != nil {
		if status := toolStatus(st.Status); status != "" {
			inv.Status = status
		}
		if st.Input != nil {
			inv.Input = st.Input
		}
		if st.Output != "" {
			inv.Output = st.Output
		}
		if st.Error != "" && inv.Output == "" {
			inv.Output = st.Error
		}
		if t := st.Time.StartTime(); !t.IsZero() {
			inv.StartedAt = &t
		}
		if t, ok := st.Time.EndTime(); ok {
			inv.EndedAt = &t
		}
	}
	if inv.Status == "" {
		inv.Status = ToolPending
	}

	if idx >= 0 {
		tools = slices.Clone(tools)
		tools[idx] = inv
		return tools
	}
	return append(slices.Clone(tools), inv)
}

func toolStatus(raw string) ToolStatus {
	switch raw {
	case "pending":
		return ToolPending
	case "running", "in_progress":
		return ToolRunning
	case "completed", "success":
		return ToolCompleted
	case "failed", "error":
		return ToolFailed
	}
	return ""
}

// finalize freezes the streaming message on a terminal event: accumulated
// cost becomes the message's usage summary, and transient live-activity
// state is cleared.
func finalize(s State) State {
	if s.StreamingID != "" {
		s.Messages = slices.Clone(s.Messages)
		for i, m := range s.Messages {
			if m.ID == s.StreamingID {
				if !s.Turn.Usage.IsZero() {
					u := s.Turn.Usage
					m.Usage = &u
				}
				s.Messages[i] = m
				break
			}
		}
	}
	s.StreamingID = ""
	s.Turn = Turn{}
	s.Status = ""
	return s
}

func applyError(s State, ev event.Event, now time.Time) State {
	msg := ""
	category := event.Category("")
	retryable := false
	if ev.Err != nil {
		msg = ev.Err.Message
		category = ev.Err.Category
		retryable = ev.Err.Retryable
	}
	if category == "" {
		category, retryable = Classify(msg)
	}

	s.Messages = append(slices.Clone(s.Messages), Message{
		ID:      fmt.Sprintf("error-%d", len(s.Messages)),
		Role:    RoleSystem,
		Content: msg,
		Error: &ErrorInfo{
			Category:  category,
			Retryable: retryable,
			Message:   msg,
		},
		CreatedAt: now,
	})

	if ev.Terminal() {
		s = finalize(s)
	}
	return s
}

func statusLine(st *event.Status) string {
	if st.Label != "" {
		return st.Label
	}
	return st.Code
}
