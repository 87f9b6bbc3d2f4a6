package sse

import "encoding/json"

// Stream event discriminators observed on the agent service's wire. The
// decoder passes unknown values through untouched; callers decide what any
// provider-specific variant means.
const (
	TypeStatus     = "status"
	TypeContent    = "kilocode"
	TypeOutput     = "output"
	TypeComplete   = "complete"
	TypeError      = "error"
	TypeCLISession = "cliSessionCreated"
)

// Payload carries the content body of content-bearing frames.
type Payload struct {
	Content string `json:"content,omitempty"`
}

// Event is one decoded SSE frame. The decoder is not task-aware; it only
// maps the JSON payload into this shape and keeps the raw bytes around for
// callers that need provider-specific fields.
type Event struct {
	StreamEventType string          `json:"streamEventType"`
	SessionID       string          `json:"sessionId,omitempty"`
	CLISessionID    string          `json:"cliSessionId,omitempty"`
	Message         string          `json:"message,omitempty"`
	Payload         *Payload        `json:"payload,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// IsComplete reports whether the frame signals successful stream end.
func (e *Event) IsComplete() bool {
	return e.StreamEventType == TypeComplete
}

// IsError reports whether the frame is an informational error from the
// remote agent. Error frames do not terminate the stream by themselves.
func (e *Event) IsError() bool {
	return e.StreamEventType == TypeError
}

// Content returns the frame's content body, if any.
func (e *Event) Content() string {
	if e.Payload != nil {
		return e.Payload.Content
	}
	return ""
}
