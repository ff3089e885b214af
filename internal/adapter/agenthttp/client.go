// Package agenthttp implements the agentstream.Gateway port against the
// agent backend's HTTP API.
package agenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/helmsman-ai/helmsman/internal/port/agentstream"
	"github.com/helmsman-ai/helmsman/internal/resilience"
)

// maxErrorBody bounds how much of a non-2xx response is read for the
// error message.
const maxErrorBody = 64 << 10

// Client talks to the agent backend. Turn bodies are long-lived SSE streams,
// so the underlying http.Client carries no global timeout; callers bound
// requests through the context.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.Breaker
}

// New creates a Client for the backend at baseURL. The breaker is optional;
// when present it guards turn opening, and an open circuit surfaces to the
// controller as a transient failure. Outbound requests are traced via
// otelhttp.
func New(baseURL string, breaker *resilience.Breaker) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
	}
}

// OpenTurn posts the turn content and returns the SSE response body.
func (c *Client) OpenTurn(ctx context.Context, sessionID string, req agentstream.TurnRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("agenthttp: marshal turn: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/chat/%s", c.baseURL, url.PathEscape(sessionID)),
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("agenthttp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	var resp *http.Response
	do := func() error {
		r, err := c.http.Do(httpReq)
		if err != nil {
			return fmt.Errorf("agenthttp: open turn: %w", err)
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			defer r.Body.Close()
			return &agentstream.HTTPError{Status: r.StatusCode, Message: errorMessage(r.Body, r.StatusCode)}
		}
		resp = r
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(do)
	} else {
		err = do()
	}
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Stop posts the out-of-band cancellation call.
func (c *Client) Stop(ctx context.Context, sessionID string) error {
	return c.post(ctx, fmt.Sprintf("/sessions/%s/stop", url.PathEscape(sessionID)))
}

// Retry asks the backend to re-run the last failed action.
func (c *Client) Retry(ctx context.Context, sessionID string) error {
	return c.post(ctx, fmt.Sprintf("/sessions/%s/retry", url.PathEscape(sessionID)))
}

func (c *Client) post(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("agenthttp: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agenthttp: %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &agentstream.HTTPError{Status: resp.StatusCode, Message: fmt.Sprintf("POST %s failed", path)}
	}
	return nil
}

// errorMessage extracts the backend's {"error": ...} body when possible and
// falls back to a generic message.
func errorMessage(body io.Reader, status int) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))

	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 512 {
		return text
	}
	return fmt.Sprintf("agent backend returned status %d", status)
}
