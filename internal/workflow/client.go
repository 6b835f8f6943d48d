// Package workflow is the client for the remote workflow-execution API.
//
// The runner treats a workflow run as an opaque blocking call: it either
// succeeds with an opaque output payload or fails with an error. Nothing in
// this repo interprets the workflow's output beyond pass/fail.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wfrunner/pkg/logx"
)

const runPath = "/v1/workflow/run"

// Config identifies the workflow to invoke and how to reach the API.
type Config struct {
	BaseURL    string
	Token      string
	WorkflowID string

	// Parameters is an optional opaque JSON object forwarded to the run.
	Parameters json.RawMessage

	// HTTPTimeout is a hard backstop on the http.Client. The per-attempt
	// retry timeout is the primary bound; this only catches leaks when the
	// retry policy has no timeout configured.
	HTTPTimeout time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return errors.New("workflow: api token is required")
	}
	if strings.TrimSpace(c.WorkflowID) == "" {
		return errors.New("workflow: workflow id is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("workflow: base url is required")
	}
	return nil
}

// APIError is a failure reported by the API itself (non-zero business code).
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workflow api error %d: %s", e.Code, e.Msg)
}

// Result is the opaque outcome of one successful run.
type Result struct {
	Data     string `json:"data"`
	DebugURL string `json:"debug_url,omitempty"`
}

type runRequest struct {
	WorkflowID string          `json:"workflow_id"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type runResponse struct {
	Code     int    `json:"code"`
	Msg      string `json:"msg"`
	Data     string `json:"data"`
	DebugURL string `json:"debug_url"`
}

// Client invokes workflow runs over HTTP.
type Client struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Client{
		cfg:  cfg,
		log:  log.With(logx.String("comp", "workflow")),
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Run executes the configured workflow once. It blocks until the API
// responds or ctx is done.
func (c *Client) Run(ctx context.Context) (*Result, error) {
	body, err := json.Marshal(runRequest{WorkflowID: c.cfg.WorkflowID, Parameters: c.cfg.Parameters})
	if err != nil {
		return nil, fmt.Errorf("workflow: encode request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + runPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("workflow: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workflow: request failed: %w", err)
	}
	defer resp.Body.Close()

	// Cap the body read; run output is a compact JSON envelope.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("workflow: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workflow: unexpected status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var rr runResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("workflow: decode response: %w", err)
	}
	if rr.Code != 0 {
		return nil, &APIError{Code: rr.Code, Msg: rr.Msg}
	}

	c.log.Debug("workflow run ok",
		logx.String("workflow_id", c.cfg.WorkflowID),
		logx.Duration("took", time.Since(start)))
	return &Result{Data: rr.Data, DebugURL: rr.DebugURL}, nil
}

func truncate(s string, maxN int) string {
	if len(s) <= maxN {
		return s
	}
	return s[:maxN] + "..."
}
