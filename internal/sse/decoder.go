package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"relay/internal/logging"
)

const (
	initialBufSize = 64 * 1024
	maxLineSize    = 2 * 1024 * 1024
)

// Decoder incrementally decodes a byte stream of line-delimited Server-Sent
// Events. Only "data: <payload>" lines carry frames; blank lines, comment
// keep-alives and unknown field lines are skipped. Malformed JSON payloads
// are counted and skipped rather than failing the stream.
type Decoder struct {
	scanner     *bufio.Scanner
	logger      logging.Logger
	parseErrors int
}

// NewDecoder wraps r. The line buffer starts at 64KiB and grows to 2MiB to
// accommodate large content frames.
func NewDecoder(r io.Reader, logger logging.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufSize), maxLineSize)
	return &Decoder{
		scanner: scanner,
		logger:  logging.OrNop(logger),
	}
}

// Next returns the next decoded frame. It returns io.EOF on natural stream
// end or on the "[DONE]" sentinel, and ctx.Err() when the context was
// cancelled before the next read. The check happens between frames only;
// an in-flight read is not interrupted.
func (d *Decoder) Next(ctx context.Context) (*Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := strings.TrimSpace(d.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return nil, io.EOF
		}

		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			d.parseErrors++
			d.logger.Debug("Skipping malformed frame (%d so far): %v", d.parseErrors, err)
			continue
		}
		event.Raw = json.RawMessage(payload)
		return &event, nil
	}
}

// ParseErrors returns the number of malformed frames skipped so far.
func (d *Decoder) ParseErrors() int {
	return d.parseErrors
}
