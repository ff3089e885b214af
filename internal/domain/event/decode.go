package event

import (
	"encoding/json"

	"github.com/helmsman-ai/helmsman/internal/sse"
)

// envelope is the lenient outer wire shape. Upstream sends either
// {"type":..., "properties":{...}} or a flat payload; some endpoints rely on
// the SSE "event:" line alone and omit the embedded type.
type envelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
	PRURL      string          `json:"prUrl"`
}

// Decode classifies a decoded SSE frame into the event union.
//
// The payload's own "type" field wins over the frame's "event:" line when
// both are present. Unknown types are treated as informational status events;
// forward compatibility with future event kinds must never crash dispatch.
func Decode(f sse.Frame) Event {
	if len(f.Data) == 0 {
		if Type(f.EventType) == TypeDone {
			return Event{Type: TypeDone}
		}
		return Event{Type: TypeStatus, Status: &Status{Code: f.EventType}}
	}

	var env envelope
	// Frame data was validated as JSON by the decoder; a non-object payload
	// (bare string or array) simply leaves the envelope empty.
	_ = json.Unmarshal(f.Data, &env)

	typ := env.Type
	if typ == "" {
		typ = f.EventType
	}

	payload := f.Data
	if len(env.Properties) > 0 {
		payload = env.Properties
	}

	ev := decodeTyped(Type(typ), payload, f.Data)
	ev.PRURL = prURL(env, payload)
	return ev
}

func decodeTyped(typ Type, payload, raw json.RawMessage) Event {
	// Some endpoints put the part type directly in data.type
	// (e.g. {"type":"text","text":"Hello"} under event: message.part.updated).
	switch PartType(typ) {
	case PartText, PartReasoning, PartTool, PartStepStart, PartStepFinish:
		return Event{Type: TypeMessagePartUpdated, Part: decodePart(raw, PartType(typ))}
	}

	switch typ {
	case TypeDone:
		return Event{Type: TypeDone}

	case TypeSessionIdle:
		return Event{Type: TypeSessionIdle}

	case TypeMessagePartUpdated:
		return Event{Type: TypeMessagePartUpdated, Part: decodePart(payload, "")}

	case TypeTodoUpdated:
		var body struct {
			Todos []TodoItem `json:"todos"`
		}
		_ = json.Unmarshal(payload, &body)
		return Event{Type: TypeTodoUpdated, Todos: body.Todos}

	case TypeSessionDiff:
		var body struct {
			Diff  []FileDiff `json:"diff"`
			Files []FileDiff `json:"files"`
		}
		_ = json.Unmarshal(payload, &body)
		diff := body.Diff
		if diff == nil {
			diff = body.Files
		}
		return Event{Type: TypeSessionDiff, Diff: diff}

	case TypeFileWatcher:
		var fc FileChange
		_ = json.Unmarshal(payload, &fc)
		return Event{Type: TypeFileWatcher, File: &fc}

	case TypeCommandExecuted:
		var cr CommandResult
		_ = json.Unmarshal(payload, &cr)
		return Event{Type: TypeCommandExecuted, Command: &cr}

	case TypeError, TypeSessionError:
		return Event{Type: typ, Err: decodeFailure(payload)}

	case TypeStatus, TypeSessionStatus:
		return Event{Type: typ, Status: decodeStatus(payload)}

	default:
		// Unknown event kind: forward as informational status.
		s := decodeStatus(payload)
		if s.Code == "" {
			s.Code = string(typ)
		}
		return Event{Type: TypeStatus, Status: s}
	}
}

func decodePart(payload json.RawMessage, fallback PartType) *MessagePart {
	// Nested shape first: {"part":{...}}.
	var nested struct {
		Part *MessagePart `json:"part"`
	}
	if err := json.Unmarshal(payload, &nested); err == nil && nested.Part != nil && nested.Part.Type != "" {
		return nested.Part
	}

	var p MessagePart
	_ = json.Unmarshal(payload, &p)
	if p.Type == "" {
		p.Type = fallback
	}
	return &p
}

func decodeStatus(payload json.RawMessage) *Status {
	var body struct {
		Label   string `json:"label"`
		Code    string `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &body)

	s := Status{Label: body.Label, Code: body.Code}
	if s.Label == "" {
		s.Label = body.Message
	}
	if s.Code == "" {
		s.Code = body.Status
	}
	return &s
}

func decodeFailure(payload json.RawMessage) *Failure {
	var body struct {
		Category  Category `json:"category"`
		Retryable bool     `json:"retryable"`
		Message   string   `json:"message"`
		Error     string   `json:"error"`
	}
	_ = json.Unmarshal(payload, &body)

	f := Failure{Category: body.Category, Retryable: body.Retryable, Message: body.Message}
	if f.Message == "" {
		f.Message = body.Error
	}
	return &f
}

// prURL surfaces the pr-created side channel: a prUrl field on any payload.
func prURL(env envelope, payload json.RawMessage) string {
	if env.PRURL != "" {
		return env.PRURL
	}
	var body struct {
		PRURL string `json:"prUrl"`
	}
	_ = json.Unmarshal(payload, &body)
	return body.PRURL
}
