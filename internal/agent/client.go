package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"relay/internal/logging"
	"relay/internal/task"
)

const maxErrorBodySize = 8 * 1024

// Config locates the downstream agent service and the callback surface the
// agent is asked to notify on its own completion.
type Config struct {
	BaseURL string
	// CallbackBaseURL is this service's externally reachable status endpoint
	// prefix; the agent POSTs its terminal status to {CallbackBaseURL}/{taskId}.
	CallbackBaseURL string
	// CallbackSecret is placed in the callback headers so the receiving end
	// can authenticate the agent's notification.
	CallbackSecret string
}

// SessionRequest describes one agent session to initiate.
type SessionRequest struct {
	TaskID     string
	AuthToken  string
	Input      task.Input
	Owner      task.Owner
	SkipChecks bool
}

// initiateInput is the url-encoded JSON document sent on initiateSessionAsync.
type initiateInput struct {
	TaskID          string            `json:"taskId"`
	Repository      string            `json:"repository"`
	Prompt          string            `json:"prompt,omitempty"`
	Model           string            `json:"model,omitempty"`
	Options         map[string]any    `json:"options,omitempty"`
	Owner           task.Owner        `json:"owner"`
	SkipChecks      bool              `json:"skipChecks,omitempty"`
	CallbackURL     string            `json:"callbackUrl"`
	CallbackHeaders map[string]string `json:"callbackHeaders"`
}

// Client talks to the agent service. The initiate call uses a raw net/http
// client with no timeout because its response body is a long-lived SSE
// stream whose deadline belongs to the orchestrator; the interrupt call goes
// through resty with a short timeout.
type Client struct {
	config Config
	http   *http.Client
	resty  *resty.Client
	logger logging.Logger
}

func NewClient(cfg Config, logger logging.Logger) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{},
		resty: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(30 * time.Second),
		logger: logging.OrNop(logger),
	}
}

// InitiateSession issues the outbound request and returns the live SSE
// stream. The caller owns closing the returned body. A non-2xx response or
// transport failure is fatal to the run that requested it.
func (c *Client) InitiateSession(ctx context.Context, req SessionRequest) (io.ReadCloser, error) {
	input := initiateInput{
		TaskID:      req.TaskID,
		Repository:  req.Input.Repository,
		Prompt:      req.Input.Prompt,
		Model:       req.Input.Model,
		Options:     req.Input.Options,
		Owner:       req.Owner,
		SkipChecks:  req.SkipChecks,
		CallbackURL: fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.CallbackBaseURL, "/"), req.TaskID),
		CallbackHeaders: map[string]string{
			"X-Internal-Secret": c.config.CallbackSecret,
		},
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode session input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/initiateSessionAsync?input=%s",
		strings.TrimSuffix(c.config.BaseURL, "/"), url.QueryEscape(string(encoded)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AuthToken)
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("Initiating agent session for task %s (repo=%s)", req.TaskID, req.Input.Repository)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("agent returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp.Body, nil
}

// InterruptSession asks the agent service to stop a remote session. Callers
// treat failures as best-effort.
func (c *Client) InterruptSession(ctx context.Context, sessionID string) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(map[string]string{"sessionId": sessionID}).
		Post("/interruptSession")
	if err != nil {
		return fmt.Errorf("interrupt session %s: %w", sessionID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("interrupt session %s: status %d: %s",
			sessionID, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	c.logger.Debug("Interrupted agent session %s", sessionID)
	return nil
}
