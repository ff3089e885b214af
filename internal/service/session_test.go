package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/helmsman-ai/helmsman/internal/domain/chat"
)

// mapDedupe is an in-memory cache for dedupe tests.
type mapDedupe struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMapDedupe() *mapDedupe { return &mapDedupe{m: make(map[string][]byte)} }

func (c *mapDedupe) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapDedupe) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *mapDedupe) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

// fixedConns reports a constant connection count per session.
type fixedConns map[string]int

func (f fixedConns) SessionConnections(sessionID string) int { return f[sessionID] }

func TestControllerCreatedOncePerSession(t *testing.T) {
	svc := NewSessionService(&fakeGateway{}, &recordingHub{}, nil, nil, nil, 0, 0, 0)

	a := svc.Controller("s1")
	b := svc.Controller("s1")
	if a != b {
		t.Fatal("expected the same controller instance")
	}
	if c := svc.Controller("s2"); c == a {
		t.Fatal("sessions must not share controllers")
	}

	ids := svc.Sessions()
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Fatalf("unexpected session list: %v", ids)
	}
}

func TestPushMessageDedupes(t *testing.T) {
	svc := NewSessionService(&fakeGateway{}, &recordingHub{}, nil, newMapDedupe(), nil, 0, 0, time.Minute)
	m := chat.Message{ID: "m1", Role: chat.RoleUser, Content: "hello from another client"}

	svc.PushMessage(context.Background(), "s1", m)
	svc.PushMessage(context.Background(), "s1", m)

	got := svc.Controller("s1").Snapshot().Messages
	if len(got) != 1 {
		t.Fatalf("expected 1 message after duplicate push, got %d", len(got))
	}
}

func TestPushMessageIgnoresMissingID(t *testing.T) {
	svc := NewSessionService(&fakeGateway{}, &recordingHub{}, nil, newMapDedupe(), nil, 0, 0, time.Minute)

	svc.PushMessage(context.Background(), "s1", chat.Message{Content: "no id"})

	if got := svc.Controller("s1").Snapshot().Messages; len(got) != 0 {
		t.Fatalf("expected push without ID to be dropped, got %d messages", len(got))
	}
}

func TestConnectionState(t *testing.T) {
	svc := NewSessionService(&fakeGateway{}, &recordingHub{}, fixedConns{"s1": 2}, nil, nil, 0, 0, 0)

	if got := svc.ConnectionState("s1"); got != chat.Connected {
		t.Fatalf("expected connected, got %s", got)
	}
	if got := svc.ConnectionState("s2"); got != chat.Disconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
}
