package http

import (
	"net/http"
	"time"

	"github.com/helmsman-ai/helmsman/internal/adapter/ws"
	"github.com/helmsman-ai/helmsman/internal/domain/chat"
	"github.com/helmsman-ai/helmsman/internal/port/agentstream"
	"github.com/helmsman-ai/helmsman/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Sessions *service.SessionService
	Hub      *ws.Hub
	Version  string

	started time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(sessions *service.SessionService, hub *ws.Hub, version string) *Handlers {
	return &Handlers{
		Sessions: sessions,
		Hub:      hub,
		Version:  version,
		started:  time.Now(),
	}
}

// Healthz reports process liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// ListSessions returns the known session IDs with their live flags.
func (h *Handlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	type sessionInfo struct {
		ID         string               `json:"id"`
		Streaming  bool                 `json:"streaming"`
		QueueLen   int                  `json:"queue_len"`
		Connection chat.ConnectionState `json:"connection"`
	}
	ids := h.Sessions.Sessions()
	out := make([]sessionInfo, 0, len(ids))
	for _, id := range ids {
		c := h.Sessions.Controller(id)
		out = append(out, sessionInfo{
			ID:         id,
			Streaming:  c.Active(),
			QueueLen:   c.QueueLen(),
			Connection: h.Sessions.ConnectionState(id),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

// SendMessage submits user input for a session. When a turn is already
// streaming the input is queued rather than opening a second request.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[sendMessageRequest](w, r)
	if !ok {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	mode := agentstream.Mode(req.Mode)
	switch mode {
	case "", agentstream.ModeBuild, agentstream.ModePlan:
	default:
		writeError(w, http.StatusBadRequest, "mode must be build or plan")
		return
	}

	c := h.Sessions.Controller(id)
	queued := c.Active()
	if err := c.Send(r.Context(), req.Content, mode); err != nil {
		writeDomainError(w, err, "send message")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":    queued,
		"queue_len": c.QueueLen(),
	})
}

// GetMessages returns the session's conversation state.
func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	c := h.Sessions.Controller(urlParam(r, "id"))
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// GetTurn returns the live turn indicators: streaming flag, running cost,
// queue depth and the human-readable status line.
func (h *Handlers) GetTurn(w http.ResponseWriter, r *http.Request) {
	c := h.Sessions.Controller(urlParam(r, "id"))
	s := c.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.Turn.Active,
		"usage":     s.Turn.Usage,
		"steps":     s.Turn.Steps,
		"queue_len": c.QueueLen(),
		"status":    s.Status,
	})
}

// StopTurn cancels the in-flight turn. Local state goes idle immediately;
// the backend cancellation is fire-and-forget.
func (h *Handlers) StopTurn(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	h.Sessions.Controller(id).Stop(r.Context())
	h.Sessions.BroadcastStatus(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// RetryTurn asks the backend to re-run the last failed action.
func (h *Handlers) RetryTurn(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Controller(urlParam(r, "id")).Retry(r.Context()); err != nil {
		writeDomainError(w, err, "retry turn")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PushMessage accepts an out-of-band message (backend notification, another
// client) and merges it into the session state, deduped by message ID.
func (h *Handlers) PushMessage(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	msg, ok := readJSON[chat.Message](w, r)
	if !ok {
		return
	}
	if msg.ID == "" {
		writeError(w, http.StatusBadRequest, "message id is required")
		return
	}
	h.Sessions.PushMessage(r.Context(), id, msg)
	w.WriteHeader(http.StatusNoContent)
}
