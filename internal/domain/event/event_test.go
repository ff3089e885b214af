package event

import (
	"encoding/json"
	"testing"

	"github.com/helmsman-ai/helmsman/internal/sse"
)

func frame(eventType, data string) sse.Frame {
	f := sse.Frame{EventType: eventType}
	if data != "" {
		f.Data = json.RawMessage(data)
	}
	return f
}

func TestDecodeTextPartFlat(t *testing.T) {
	ev := Decode(frame("message.part.updated", `{"type":"text","text":"Hello"}`))

	if ev.Type != TypeMessagePartUpdated {
		t.Fatalf("Type = %q", ev.Type)
	}
	if ev.Part == nil || ev.Part.Type != PartText || ev.Part.Text != "Hello" {
		t.Fatalf("Part = %+v", ev.Part)
	}
}

func TestDecodeNestedPart(t *testing.T) {
	data := `{"type":"message.part.updated","properties":{"part":{"id":"p1","messageID":"m1","type":"tool","tool":"bash","callID":"t1","state":{"status":"running","input":{"command":"ls"}}}}}`
	ev := Decode(frame("", data))

	if ev.Type != TypeMessagePartUpdated {
		t.Fatalf("Type = %q", ev.Type)
	}
	p := ev.Part
	if p == nil || p.Type != PartTool || p.CallID != "t1" || p.Tool != "bash" {
		t.Fatalf("Part = %+v", p)
	}
	if p.State == nil || p.State.Status != "running" {
		t.Fatalf("State = %+v", p.State)
	}
}

// The payload's embedded type wins over the event: line.
func TestEmbeddedTypeWins(t *testing.T) {
	ev := Decode(frame("status", `{"type":"done"}`))
	if ev.Type != TypeDone {
		t.Fatalf("Type = %q, want done", ev.Type)
	}
}

func TestDecodeDeltaDistinguishedFromAbsent(t *testing.T) {
	ev := Decode(frame("message.part.updated", `{"type":"text","delta":""}`))
	if ev.Part.Delta == nil {
		t.Fatal("empty-string delta should be present, not nil")
	}

	ev = Decode(frame("message.part.updated", `{"type":"text","text":"full"}`))
	if ev.Part.Delta != nil {
		t.Fatal("absent delta should be nil")
	}
}

func TestDecodeStepFinishUsage(t *testing.T) {
	data := `{"type":"step-finish","cost":0.0042,"tokens":{"input":100,"output":30,"reasoning":7,"cache":{"read":200,"write":12}}}`
	ev := Decode(frame("message.part.updated", data))

	if ev.Part == nil || ev.Part.Type != PartStepFinish {
		t.Fatalf("Part = %+v", ev.Part)
	}
	u := ev.Part.StepUsage()
	if u.CostUSD != 0.0042 || u.TokensIn != 100 || u.TokensOut != 30 || u.TokensReasoning != 7 || u.CacheRead != 200 || u.CacheWrite != 12 {
		t.Fatalf("StepUsage = %+v", u)
	}
}

func TestDecodeTodoUpdated(t *testing.T) {
	data := `{"type":"todo.updated","properties":{"todos":[{"id":"1","content":"write tests","status":"in_progress","priority":"high"}]}}`
	ev := Decode(frame("", data))

	if ev.Type != TypeTodoUpdated || len(ev.Todos) != 1 || ev.Todos[0].Content != "write tests" {
		t.Fatalf("ev = %+v", ev)
	}
}

func TestDecodeSessionDiff(t *testing.T) {
	data := `{"type":"session.diff","diff":[{"file":"main.go","additions":3,"deletions":1}]}`
	ev := Decode(frame("", data))

	if ev.Type != TypeSessionDiff || len(ev.Diff) != 1 || ev.Diff[0].File != "main.go" {
		t.Fatalf("ev = %+v", ev)
	}
}

func TestDecodeError(t *testing.T) {
	data := `{"type":"error","category":"transient","retryable":true,"message":"rate limit exceeded"}`
	ev := Decode(frame("", data))

	if ev.Type != TypeError {
		t.Fatalf("Type = %q", ev.Type)
	}
	if ev.Err.Category != CategoryTransient || !ev.Err.Retryable || ev.Err.Message != "rate limit exceeded" {
		t.Fatalf("Err = %+v", ev.Err)
	}
	if ev.Terminal() {
		t.Error("transient error should not be terminal")
	}
}

func TestFatalErrorIsTerminal(t *testing.T) {
	ev := Decode(frame("", `{"type":"error","category":"fatal","message":"session destroyed"}`))
	if !ev.Terminal() {
		t.Fatal("fatal error should be terminal")
	}
}

func TestDecodeUnknownTypeIsStatus(t *testing.T) {
	ev := Decode(frame("", `{"type":"shiny.new.thing","label":"doing something"}`))

	if ev.Type != TypeStatus {
		t.Fatalf("Type = %q, want status", ev.Type)
	}
	if ev.Status == nil || ev.Status.Label != "doing something" || ev.Status.Code != "shiny.new.thing" {
		t.Fatalf("Status = %+v", ev.Status)
	}
}

func TestDecodePRURLSideChannel(t *testing.T) {
	ev := Decode(frame("", `{"type":"command.executed","command":"gh pr create","exitCode":0,"prUrl":"https://github.com/acme/app/pull/7"}`))

	if ev.Type != TypeCommandExecuted {
		t.Fatalf("Type = %q", ev.Type)
	}
	if ev.PRURL != "https://github.com/acme/app/pull/7" {
		t.Fatalf("PRURL = %q", ev.PRURL)
	}
}

func TestDecodeDoneSentinelFrame(t *testing.T) {
	ev := Decode(frame("done", ""))
	if ev.Type != TypeDone || !ev.Terminal() {
		t.Fatalf("ev = %+v", ev)
	}
}

func TestDecodeFileWatcher(t *testing.T) {
	ev := Decode(frame("", `{"type":"file-watcher.updated","action":"modify","path":"internal/app.go"}`))
	if ev.Type != TypeFileWatcher || ev.File.Action != "modify" || ev.File.Path != "internal/app.go" {
		t.Fatalf("ev = %+v", ev)
	}
}

func TestTimeRangeDuration(t *testing.T) {
	end := int64(1_700_000_001_500)
	tr := &TimeRange{Start: 1_700_000_000_000, End: &end}

	start := tr.StartTime()
	finish, ok := tr.EndTime()
	if !ok {
		t.Fatal("EndTime not set")
	}
	if d := finish.Sub(start); d.Milliseconds() != 1500 {
		t.Fatalf("duration = %v", d)
	}
}
