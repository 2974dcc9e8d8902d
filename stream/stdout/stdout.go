// Package stdout provides a line-delimited JSON stream.Sink for local
// and CLI use: each event is marshaled to one JSON object per line.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/meshwave/agentwave/stream"
	"github.com/meshwave/agentwave/types"
)

var _ stream.Sink = (*Sink)(nil)

// envelope is the on-wire shape of one emitted line.
type envelope struct {
	RunID     string      `json:"run_id"`
	Timestamp time.Time   `json:"timestamp"`
	Event     types.Event `json:"event"`
}

// Sink writes newline-delimited JSON envelopes to an io.Writer.
// Thread-safe for concurrent Send calls.
type Sink struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// New constructs a Sink writing to w.
func New(w io.Writer) *Sink {
	return &Sink{w: w, now: time.Now}
}

// Send implements stream.Sink.
func (s *Sink) Send(_ context.Context, runID string, event types.Event) error {
	line, err := json.Marshal(envelope{RunID: runID, Timestamp: s.now().UTC(), Event: event})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the underlying writer's lifecycle.
func (s *Sink) Close(context.Context) error { return nil }
