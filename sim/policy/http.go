package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// DecisionRequest is the body POSTed to a decision service.
type DecisionRequest struct {
	Source  string          `json:"source"`
	State   sim.SystemState `json:"state"`
	PumpIDs []string        `json:"pump_ids,omitempty"`
}

// DecisionResponse is the body a decision service must return.
type DecisionResponse struct {
	PumpCommands []sim.PumpCommand `json:"pump_commands"`
}

// HTTPDecider asks an external decision service for the pump commands. The
// service is a black box; only the request and response documents are fixed.
type HTTPDecider struct {
	name       string
	url        string
	pumpIDs    []string
	httpClient *http.Client
}

// NewHTTPDecider returns a decider posting to url. The client timeout is a
// backstop; the orchestrator's decision timeout normally fires first.
func NewHTTPDecider(name, url string, pumpIDs []string) *HTTPDecider {
	if name == "" {
		name = "http"
	}
	return &HTTPDecider{
		name:       name,
		url:        strings.TrimRight(url, "/"),
		pumpIDs:    append([]string(nil), pumpIDs...),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithHTTPClient replaces the HTTP client and returns the decider.
func (d *HTTPDecider) WithHTTPClient(c *http.Client) *HTTPDecider {
	d.httpClient = c
	return d
}

func (d *HTTPDecider) Name() string { return d.name }

// Decide posts state and decodes the returned commands. Transport failures,
// non-2xx statuses and malformed bodies are returned as *sim.DecisionError;
// HTTP 429 sets RateLimited.
func (d *HTTPDecider) Decide(ctx context.Context, state sim.SystemState) ([]sim.PumpCommand, error) {
	fail := func(err error) *sim.DecisionError {
		return &sim.DecisionError{Source: d.name, RecordIndex: state.RecordIndex, Err: err}
	}

	bodyBytes, err := json.Marshal(DecisionRequest{Source: d.name, State: state, PumpIDs: d.pumpIDs})
	if err != nil {
		return nil, fail(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fail(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		de := fail(err)
		de.Timeout = ctx.Err() != nil
		return nil, de
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyData, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		de := fail(fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyData))))
		de.RateLimited = resp.StatusCode == http.StatusTooManyRequests
		return nil, de
	}

	var out DecisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fail(fmt.Errorf("decode response: %w", err))
	}
	if out.PumpCommands == nil {
		return nil, fail(fmt.Errorf("response has no pump_commands"))
	}
	return out.PumpCommands, nil
}
