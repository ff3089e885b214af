package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/helmsman-ai/helmsman/internal/adapter/otel"
	"github.com/helmsman-ai/helmsman/internal/adapter/ws"
	"github.com/helmsman-ai/helmsman/internal/domain"
	"github.com/helmsman-ai/helmsman/internal/domain/chat"
	"github.com/helmsman-ai/helmsman/internal/domain/event"
	"github.com/helmsman-ai/helmsman/internal/port/agentstream"
	"github.com/helmsman-ai/helmsman/internal/port/broadcast"
	"github.com/helmsman-ai/helmsman/internal/sse"
)

// queuedInput is one user submission held back while a turn is in flight.
type queuedInput struct {
	Content string
	Mode    agentstream.Mode
}

// StreamController drives the turn lifecycle for one session: it opens the
// SSE request, folds decoded events into the conversation state, publishes
// every fold to connected clients, and serializes user input so at most one
// turn is ever in flight. All state transitions happen under a single mutex;
// network reads happen outside it.
type StreamController struct {
	sessionID string
	gw        agentstream.Gateway
	hub       broadcast.Broadcaster
	metrics   *otel.Metrics // nil disables instrumentation
	dwell     time.Duration
	heartbeat time.Duration // 0 disables the stalled-stream watchdog
	now       func() time.Time

	mu        sync.Mutex
	state     chat.State
	queue     []queuedInput
	active    bool
	gen       int // turn generation; bumped by Send and Stop to fence stale goroutines
	cancel    context.CancelFunc
	turnSpan  trace.Span
	toolSpans map[string]trace.Span
	turnStart time.Time
}

// NewStreamController creates the controller for one session. dwell is the
// pause between a turn's terminal event and draining the next queued input;
// heartbeat is the stalled-stream watchdog timeout, reset on every received
// chunk, with 0 disabling it.
func NewStreamController(sessionID string, gw agentstream.Gateway, hub broadcast.Broadcaster, m *otel.Metrics, dwell, heartbeat time.Duration) *StreamController {
	return &StreamController{
		sessionID: sessionID,
		gw:        gw,
		hub:       hub,
		metrics:   m,
		dwell:     dwell,
		heartbeat: heartbeat,
		now:       time.Now,
	}
}

// Send submits user input. When a turn is already streaming the input is
// queued FIFO and no request is opened; otherwise a new turn starts
// immediately. The turn outlives the caller's request context.
func (c *StreamController) Send(ctx context.Context, content string, mode agentstream.Mode) error {
	if content == "" {
		return domain.ErrValidation
	}
	if mode == "" {
		mode = agentstream.ModeBuild
	}

	c.mu.Lock()
	if c.active {
		c.queue = append(c.queue, queuedInput{Content: content, Mode: mode})
		n := len(c.queue)
		c.mu.Unlock()
		slog.Debug("turn queued", "session_id", c.sessionID, "queue_len", n)
		return nil
	}
	c.startTurnLocked(ctx, queuedInput{Content: content, Mode: mode})
	c.mu.Unlock()
	return nil
}

// startTurnLocked seeds the user message and assistant placeholder, publishes
// the new state, and launches the turn goroutine. Caller holds c.mu.
func (c *StreamController) startTurnLocked(ctx context.Context, in queuedInput) {
	now := c.now()
	placeholderID := uuid.NewString()
	c.state = c.state.
		WithUserMessage(uuid.NewString(), in.Content, now).
		WithAssistantPlaceholder(placeholderID, now)
	c.active = true
	c.gen++
	gen := c.gen

	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	turnCtx, c.turnSpan = otel.StartTurnSpan(turnCtx, c.sessionID, string(in.Mode))
	c.cancel = cancel
	c.turnStart = now
	if c.metrics != nil {
		c.metrics.TurnsStarted.Add(turnCtx, 1)
	}
	c.publishLocked(turnCtx)

	go c.run(turnCtx, gen, placeholderID, agentstream.TurnRequest{Content: in.Content, Mode: in.Mode})
}

// run drives one turn to completion: open the stream, decode and fold every
// frame, and hand off to finishTurn on the terminal event.
func (c *StreamController) run(ctx context.Context, gen int, placeholderID string, req agentstream.TurnRequest) {
	body, err := c.gw.OpenTurn(ctx, c.sessionID, req)
	if err != nil {
		c.failTurn(ctx, gen, placeholderID, err)
		return
	}
	defer body.Close()

	dec := sse.NewDecoder()
	buf := make([]byte, 4096)
	terminal := false

	if c.heartbeat > 0 {
		watchdog := time.AfterFunc(c.heartbeat, func() { c.timeoutTurn(ctx, gen) })
		defer watchdog.Stop()
		origRead := body
		body = readResetter{ReadCloser: origRead, reset: func() { watchdog.Reset(c.heartbeat) }}
	}

	defer func() {
		if c.metrics != nil && dec.Dropped() > 0 {
			c.metrics.FramesDropped.Add(ctx, int64(dec.Dropped()))
		}
	}()

	for !terminal {
		n, readErr := body.Read(buf)
		if n > 0 {
			frames := dec.Feed(buf[:n])
			if c.metrics != nil && len(frames) > 0 {
				c.metrics.FramesDecoded.Add(ctx, int64(len(frames)))
			}
			for _, fr := range frames {
				ev := event.Decode(fr)
				c.fold(ctx, gen, ev)
				if ev.Terminal() {
					terminal = true
					break
				}
			}
		}
		if readErr != nil {
			if terminal {
				break
			}
			switch {
			case errors.Is(readErr, io.EOF):
				// Transport closed without an explicit terminal event.
				c.fold(ctx, gen, event.Event{Type: event.TypeDone})
			case ctx.Err() != nil:
				// Stopped locally; state was already forced idle.
			default:
				c.failTurn(ctx, gen, placeholderID, readErr)
				return
			}
			terminal = true
		}
	}

	c.finishTurn(ctx, gen)
}

// fold applies one event to the state under the lock and publishes the
// result. Stale generations are dropped: a stopped turn must not resurrect
// state the user already dismissed.
func (c *StreamController) fold(ctx context.Context, gen int, ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if ev.Terminal() {
		c.recordTurnEndLocked(ctx, true)
	}
	c.traceToolLocked(ctx, ev)
	c.state = chat.Apply(c.state, ev, c.now())
	c.publishLocked(ctx)

	if ev.PRURL != "" {
		c.hub.BroadcastEvent(ctx, ws.EventPRCreated, ws.PRCreatedEvent{
			SessionID: c.sessionID,
			URL:       ev.PRURL,
		})
	}
}

// failTurn handles a turn that died before or outside the event stream: a
// non-2xx open, or a mid-stream transport error. The empty placeholder is
// dropped and replaced by a classified system error message, and the session
// returns to idle.
func (c *StreamController) failTurn(ctx context.Context, gen int, placeholderID string, err error) {
	if ctx.Err() != nil {
		// The user stopped the turn; the open/read failure is just the abort.
		return
	}

	msg := err.Error()
	var httpErr *agentstream.HTTPError
	if errors.As(err, &httpErr) {
		msg = httpErr.Message
	}
	slog.Warn("turn failed", "session_id", c.sessionID, "error", err)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.recordTurnEndLocked(ctx, false)
	c.state = c.state.WithoutMessage(placeholderID)
	// session.error is always terminal, and classification runs over the
	// message text inside the reducer.
	c.state = chat.Apply(c.state, event.Event{
		Type: event.TypeSessionError,
		Err:  &event.Failure{Message: msg},
	}, c.now())
	c.publishLocked(ctx)
	c.mu.Unlock()

	c.finishTurn(ctx, gen)
}

// finishTurn returns the controller to idle and drains exactly one queued
// input, after the dwell pause. Draining one at a time preserves the
// one-turn-in-flight invariant.
func (c *StreamController) finishTurn(ctx context.Context, gen int) {
	if c.dwell > 0 {
		select {
		case <-time.After(c.dwell):
		case <-ctx.Done():
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.active = false
	c.cancel = nil

	if len(c.queue) == 0 {
		return
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	c.startTurnLocked(context.WithoutCancel(ctx), next)
}

// timeoutTurn fires when the watchdog sees no bytes for the configured
// heartbeat window: the turn is aborted and surfaced as a transient error.
func (c *StreamController) timeoutTurn(ctx context.Context, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	slog.Warn("turn stalled, aborting", "session_id", c.sessionID, "heartbeat", c.heartbeat)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++ // fence the stalled turn's goroutine
	c.active = false
	c.recordTurnEndLocked(ctx, false)
	c.state = chat.Apply(c.state, event.Event{
		Type: event.TypeSessionError,
		Err:  &event.Failure{Message: "stream timed out waiting for agent events"},
	}, c.now())
	c.publishLocked(ctx)
}

// Stop cancels the in-flight turn. The backend call is fire-and-forget;
// local state is forced back to idle immediately so the UI never waits on
// the backend to acknowledge.
func (c *StreamController) Stop(ctx context.Context) {
	go func(ctx context.Context) {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.gw.Stop(stopCtx, c.sessionID); err != nil {
			slog.Debug("backend stop failed", "session_id", c.sessionID, "error", err)
		}
	}(context.WithoutCancel(ctx))

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++ // fence the aborted turn's goroutine
	c.active = false
	c.recordTurnEndLocked(ctx, true)
	c.state = chat.Apply(c.state, event.Event{Type: event.TypeDone}, c.now())
	c.publishLocked(ctx)
}

// Retry asks the backend to re-run the last failed action. Best-effort; the
// next state arrives through the usual event stream or push channel.
func (c *StreamController) Retry(ctx context.Context) error {
	return c.gw.Retry(ctx, c.sessionID)
}

// Merge folds a message that arrived over the out-of-band push channel.
// Cross-stream ordering is not guaranteed, so this dedupes by ID and never
// reorders what is already there.
func (c *StreamController) Merge(ctx context.Context, m chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.state.MergeRemote(m)
	c.publishLocked(ctx)
}

// Snapshot returns the current conversation state. The returned value shares
// backing arrays with the live state, which is safe because the reducer never
// mutates them in place.
func (c *StreamController) Snapshot() chat.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a turn is in flight.
func (c *StreamController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// QueueLen reports how many inputs are waiting behind the current turn.
func (c *StreamController) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// traceToolLocked opens a span when a tool call is first seen and ends it
// when the call reports completed or failed. Caller holds c.mu.
func (c *StreamController) traceToolLocked(ctx context.Context, ev event.Event) {
	if ev.Type != event.TypeMessagePartUpdated || ev.Part == nil ||
		ev.Part.Type != event.PartTool || ev.Part.CallID == "" {
		return
	}
	p := ev.Part
	if _, open := c.toolSpans[p.CallID]; !open {
		if c.toolSpans == nil {
			c.toolSpans = make(map[string]trace.Span)
		}
		_, span := otel.StartToolSpan(ctx, p.CallID, p.Tool)
		c.toolSpans[p.CallID] = span
	}
	if st := p.State; st != nil {
		switch st.Status {
		case "completed", "success", "failed", "error":
			c.toolSpans[p.CallID].End()
			delete(c.toolSpans, p.CallID)
		}
	}
}

// recordTurnEndLocked ends the turn span and records the turn metrics once.
// Called with the terminal event's outcome before the state is finalized, so
// the accumulated turn cost is still readable. Caller holds c.mu.
func (c *StreamController) recordTurnEndLocked(ctx context.Context, completed bool) {
	if c.turnStart.IsZero() {
		return
	}
	for id, span := range c.toolSpans {
		span.End()
		delete(c.toolSpans, id)
	}
	if c.turnSpan != nil {
		c.turnSpan.End()
		c.turnSpan = nil
	}
	if c.metrics != nil {
		if completed {
			c.metrics.TurnsCompleted.Add(ctx, 1)
		} else {
			c.metrics.TurnsFailed.Add(ctx, 1)
		}
		c.metrics.TurnDuration.Record(ctx, c.now().Sub(c.turnStart).Seconds())
		if cost := c.state.Turn.Usage.CostUSD; cost > 0 {
			c.metrics.TurnCost.Record(ctx, cost)
		}
	}
	c.turnStart = time.Time{}
}

// publishLocked pushes the full state to connected clients. Caller holds c.mu.
func (c *StreamController) publishLocked(ctx context.Context) {
	c.hub.BroadcastEvent(ctx, ws.EventChatState, ws.ChatStateEvent{
		SessionID: c.sessionID,
		State:     c.state,
	})
}

// readResetter kicks the watchdog on every read that returns bytes.
type readResetter struct {
	io.ReadCloser
	reset func()
}

func (r readResetter) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		r.reset()
	}
	return n, err
}
