package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helmsman-ai/helmsman/internal/adapter/ws"
	"github.com/helmsman-ai/helmsman/internal/port/agentstream"
	"github.com/helmsman-ai/helmsman/internal/service"
)

// stubGateway answers every turn with a short completed stream.
type stubGateway struct {
	mu      sync.Mutex
	opens   int
	stops   int
	retries int
	body    string
}

func (g *stubGateway) OpenTurn(context.Context, string, agentstream.TurnRequest) (io.ReadCloser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opens++
	body := g.body
	if body == "" {
		body = "data: {\"type\":\"text\",\"text\":\"ok\"}\n\ndata: {\"type\":\"done\"}\n\n"
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (g *stubGateway) Stop(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stops++
	return nil
}

func (g *stubGateway) Retry(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retries++
	return nil
}

func newTestRouter(gw agentstream.Gateway) (*chi.Mux, *service.SessionService) {
	hub := ws.NewHub()
	sessions := service.NewSessionService(gw, hub, hub, nil, nil, 0, 0, time.Minute)
	h := NewHandlers(sessions, hub, "test")

	r := chi.NewRouter()
	MountRoutes(r, h)
	return r, sessions
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(&stubGateway{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSendMessageAccepted(t *testing.T) {
	r, sessions := newTestRouter(&stubGateway{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/messages",
		strings.NewReader(`{"content":"hello","mode":"build"}`)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	c := sessions.Controller("s1")
	deadline := time.Now().Add(2 * time.Second)
	for c.Active() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if got := len(c.Snapshot().Messages); got != 2 {
		t.Fatalf("expected user + assistant messages, got %d", got)
	}
}

func TestSendMessageValidation(t *testing.T) {
	r, _ := newTestRouter(&stubGateway{})

	cases := []struct {
		name string
		body string
	}{
		{"empty content", `{"content":""}`},
		{"bad mode", `{"content":"hi","mode":"yolo"}`},
		{"invalid json", `{not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/messages",
				strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetMessagesEmptySession(t *testing.T) {
	r, _ := newTestRouter(&stubGateway{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/messages", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(state.Messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(state.Messages))
	}
}

func TestGetTurnIdle(t *testing.T) {
	r, _ := newTestRouter(&stubGateway{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/turn", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Active   bool `json:"active"`
		QueueLen int  `json:"queue_len"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Active || body.QueueLen != 0 {
		t.Fatalf("expected idle turn, got %+v", body)
	}
}

func TestStopTurn(t *testing.T) {
	gw := &stubGateway{}
	r, _ := newTestRouter(gw)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/stop", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRetryTurn(t *testing.T) {
	gw := &stubGateway{}
	r, _ := newTestRouter(gw)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/retry", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.retries != 1 {
		t.Fatalf("expected 1 retry call, got %d", gw.retries)
	}
}

func TestPushMessageRequiresID(t *testing.T) {
	r, _ := newTestRouter(&stubGateway{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/push",
		strings.NewReader(`{"role":"user","content":"no id"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPushMessageMerges(t *testing.T) {
	r, sessions := newTestRouter(&stubGateway{})

	for range 2 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/push",
			strings.NewReader(`{"id":"m1","role":"user","content":"from another client"}`)))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	}

	if got := len(sessions.Controller("s1").Snapshot().Messages); got != 1 {
		t.Fatalf("expected 1 merged message, got %d", got)
	}
}

func TestListSessions(t *testing.T) {
	r, sessions := newTestRouter(&stubGateway{})
	sessions.Controller("s2")
	sessions.Controller("s1")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(out) != 2 || out[0].ID != "s1" || out[1].ID != "s2" {
		t.Fatalf("unexpected sessions: %v", out)
	}
}
