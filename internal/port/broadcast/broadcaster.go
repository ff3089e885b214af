// Package broadcast defines the port for pushing real-time state updates to
// connected browser clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to every connected client. Delivery is
// best-effort; the conversation state itself is the source of truth and can
// always be refetched.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
