// Package agentstream defines the port for the backend agent service that
// runs turns and streams activity events back over SSE.
package agentstream

import (
	"context"
	"fmt"
	"io"
)

// Mode selects how the agent approaches a turn.
type Mode string

const (
	ModeBuild Mode = "build"
	ModePlan  Mode = "plan"
)

// TurnRequest is the body of one user turn.
type TurnRequest struct {
	Content string `json:"content"`
	Mode    Mode   `json:"mode"`
}

// Gateway is the outbound contract to the agent backend.
type Gateway interface {
	// OpenTurn posts the turn and returns the raw SSE response body.
	// The caller owns the ReadCloser. A non-2xx response is returned as
	// *HTTPError with the backend's error message parsed when possible.
	OpenTurn(ctx context.Context, sessionID string, req TurnRequest) (io.ReadCloser, error)

	// Stop asks the backend to cancel the in-flight turn. Best-effort:
	// callers must not gate local state on its outcome.
	Stop(ctx context.Context, sessionID string) error

	// Retry asks the backend to re-run the last failed action. Best-effort.
	Retry(ctx context.Context, sessionID string) error
}

// HTTPError is a non-2xx response received before any streaming began.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("agent backend: status %d: %s", e.Status, e.Message)
}
