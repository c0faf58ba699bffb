// Package memoryhints fetches planning hints from the agent's memory
// service over HTTP. The call is bounded (5 s timeout, 2 retries with
// exponential backoff from a 200 ms base) so a slow or absent memory
// service never stalls a planning cycle.
package memoryhints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/darianrosebrook/sterling-executor/agent/config"
	"github.com/darianrosebrook/sterling-executor/runtime/agent/telemetry"
)

// Hint is one memory-derived suggestion for the planner.
type Hint struct {
	Kind    string  `json:"kind"`
	Content string  `json:"content"`
	Weight  float64 `json:"weight,omitempty"`
}

// Request is the query posted to the memory endpoint.
type Request struct {
	Goal    string   `json:"goal"`
	TaskID  string   `json:"task_id,omitempty"`
	Leaves  []string `json:"leaves,omitempty"`
	Urgency string   `json:"urgency,omitempty"`
}

// Response is the memory endpoint's reply shape.
type Response struct {
	Hints []Hint `json:"hints"`
}

// Client calls the memory-hints endpoint. Construct with NewClient.
type Client struct {
	endpoint string
	http     *http.Client
	retries  int
	backoff  time.Duration
	logger   telemetry.Logger
}

// NewClient builds a Client from the resolved configuration. The endpoint
// already reflects any MEMORY_ENDPOINT environment override applied by
// config.Resolve.
func NewClient(endpoint string, cfg config.MemoryHintsConfig, logger telemetry.Logger) *Client {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		retries:  cfg.Retries,
		backoff:  cfg.BaseBackoff,
		logger:   logger,
	}
}

// Fetch posts req and returns the hints, retrying transient failures with
// exponential backoff. A non-2xx status counts as a failed attempt. After
// the final retry the last error is returned; callers treat hints as
// best-effort and plan without them on error.
func (c *Client) Fetch(ctx context.Context, req Request) ([]Hint, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("memoryhints: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << uint(attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		hints, err := c.fetchOnce(ctx, body)
		if err == nil {
			return hints, nil
		}
		lastErr = err
		c.logger.Warn(ctx, "memoryhints: attempt failed", "attempt", attempt+1, "err", err.Error())
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, body []byte) ([]Hint, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("memoryhints: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("memoryhints: post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("memoryhints: %s returned %d", c.endpoint, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("memoryhints: decode response: %w", err)
	}
	return out.Hints, nil
}
