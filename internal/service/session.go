package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/helmsman-ai/helmsman/internal/adapter/otel"
	"github.com/helmsman-ai/helmsman/internal/adapter/ws"
	"github.com/helmsman-ai/helmsman/internal/domain/chat"
	"github.com/helmsman-ai/helmsman/internal/port/agentstream"
	"github.com/helmsman-ai/helmsman/internal/port/broadcast"
	"github.com/helmsman-ai/helmsman/internal/port/cache"
)

// connectionCounter is the slice of the websocket hub the session service
// needs: how many clients are attached to a session.
type connectionCounter interface {
	SessionConnections(sessionID string) int
}

// SessionService owns the per-session stream controllers. Controllers are
// created lazily on first use and live for the process lifetime; session
// history truncation is a backend concern.
type SessionService struct {
	gw        agentstream.Gateway
	hub       broadcast.Broadcaster
	conns     connectionCounter
	cache     cache.Cache
	metrics   *otel.Metrics
	dwell     time.Duration
	heartbeat time.Duration
	dedupeTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*StreamController
}

// NewSessionService wires the registry. dedupeTTL bounds how long a pushed
// message ID is remembered for duplicate suppression.
func NewSessionService(gw agentstream.Gateway, hub broadcast.Broadcaster, conns connectionCounter, c cache.Cache, m *otel.Metrics, dwell, heartbeat, dedupeTTL time.Duration) *SessionService {
	if dedupeTTL <= 0 {
		dedupeTTL = 5 * time.Minute
	}
	return &SessionService{
		gw:        gw,
		hub:       hub,
		conns:     conns,
		cache:     c,
		metrics:   m,
		dwell:     dwell,
		heartbeat: heartbeat,
		dedupeTTL: dedupeTTL,
		sessions:  make(map[string]*StreamController),
	}
}

// Controller returns the stream controller for a session, creating it on
// first use.
func (s *SessionService) Controller(sessionID string) *StreamController {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.sessions[sessionID]; ok {
		return c
	}
	c := NewStreamController(sessionID, s.gw, s.hub, s.metrics, s.dwell, s.heartbeat)
	s.sessions[sessionID] = c
	slog.Debug("session controller created", "session_id", sessionID)
	return c
}

// Sessions lists the known session IDs in stable order.
func (s *SessionService) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionState reports the push-channel status for a session. It gates
// only cross-client delivery; the SSE turn pipeline works without it.
func (s *SessionService) ConnectionState(sessionID string) chat.ConnectionState {
	if s.conns != nil && s.conns.SessionConnections(sessionID) > 0 {
		return chat.Connected
	}
	return chat.Disconnected
}

// PushMessage folds a message that arrived out-of-band (another client, a
// backend notification) into the session state. Duplicate deliveries of the
// same message ID within the dedupe window are dropped.
func (s *SessionService) PushMessage(ctx context.Context, sessionID string, m chat.Message) {
	if m.ID == "" {
		return
	}
	key := "push:" + sessionID + ":" + m.ID
	if s.cache != nil {
		if _, seen, err := s.cache.Get(ctx, key); err == nil && seen {
			return
		}
		if err := s.cache.Set(ctx, key, []byte{1}, s.dedupeTTL); err != nil {
			slog.Debug("dedupe cache set failed", "session_id", sessionID, "error", err)
		}
	}
	s.Controller(sessionID).Merge(ctx, m)
}

// BroadcastStatus pushes the session's connection and streaming flags to
// connected clients.
func (s *SessionService) BroadcastStatus(ctx context.Context, sessionID string) {
	c := s.Controller(sessionID)
	s.hub.BroadcastEvent(ctx, ws.EventSessionStatus, ws.SessionStatusEvent{
		SessionID:  sessionID,
		Connection: s.ConnectionState(sessionID),
		Streaming:  c.Active(),
	})
}

// Shutdown stops every in-flight turn. Best-effort; used on process exit.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	controllers := make([]*StreamController, 0, len(s.sessions))
	for _, c := range s.sessions {
		controllers = append(controllers, c)
	}
	s.mu.Unlock()

	for _, c := range controllers {
		if c.Active() {
			c.Stop(ctx)
		}
	}
}
