package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"relay/internal/logging"
	"relay/internal/task"
)

// StatusUpdate is the wire body pushed to the external status database.
// Optional fields are omitted rather than sent empty so the receiving end
// can distinguish "not observed yet" from "cleared".
type StatusUpdate struct {
	Status       task.Status `json:"status"`
	SessionID    string      `json:"sessionId,omitempty"`
	CLISessionID string      `json:"cliSessionId,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// Notifier pushes lifecycle transitions to the external system of record.
// It performs exactly one synchronous call per PushStatus; the caller owns
// the fatal/non-fatal policy and any retries.
type Notifier struct {
	client *resty.Client
	logger logging.Logger
}

// New builds a Notifier against apiBaseURL, authenticating every call with
// the shared internal secret header.
func New(apiBaseURL, internalSecret string, logger logging.Logger) *Notifier {
	return &Notifier{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(apiBaseURL, "/")).
			SetHeader("X-Internal-Secret", internalSecret).
			SetTimeout(30 * time.Second),
		logger: logging.OrNop(logger),
	}
}

// PushStatus POSTs the update to /status/{taskID}. Any non-2xx response is
// surfaced as an error carrying the response status and body text.
func (n *Notifier) PushStatus(ctx context.Context, taskID string, update StatusUpdate) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(update).
		Post(fmt.Sprintf("/status/%s", taskID))
	if err != nil {
		return fmt.Errorf("push status for task %s: %w", taskID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("push status for task %s: status %d: %s",
			taskID, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	n.logger.Debug("Pushed status %s for task %s", update.Status, taskID)
	return nil
}
