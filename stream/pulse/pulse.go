// Package pulse publishes a run's types.Event stream onto a
// goa.design/pulse/streaming stream keyed by run ID, grounded on the
// teacher's features/stream/pulse sink.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/meshwave/agentwave/stream"
	"github.com/meshwave/agentwave/types"
)

// streamOpener is the subset of goa.design/pulse/streaming used by this
// sink, so tests can supply a fake in place of a real Redis-backed
// stream.
type streamOpener interface {
	Add(ctx context.Context, event string, payload []byte) (string, error)
}

// Sink publishes events onto a Pulse stream named "agentwave/run/<runID>".
// One Pulse stream handle is opened per run on first Send and cached for
// the remainder of the run's lifetime.
type Sink struct {
	redis   *redis.Client
	maxLen  int
	streams map[string]streamOpener
	open    func(name string, redis *redis.Client, maxLen int) (streamOpener, error)
}

var _ stream.Sink = (*Sink)(nil)

// envelope mirrors the teacher's Pulse envelope shape: a typed, timestamped
// wrapper around the event payload.
type envelope struct {
	Kind      types.EventKind `json:"kind"`
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Event     types.Event     `json:"event"`
}

// New constructs a Sink backed by redis. maxLen, when positive, bounds
// the number of entries retained per stream.
func New(redisClient *redis.Client, maxLen int) (*Sink, error) {
	if redisClient == nil {
		return nil, errors.New("redis client is required")
	}
	return &Sink{
		redis:   redisClient,
		maxLen:  maxLen,
		streams: make(map[string]streamOpener),
		open:    openPulseStream,
	}, nil
}

// Send implements stream.Sink.
func (s *Sink) Send(ctx context.Context, runID string, event types.Event) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	name := streamName(runID)
	h, ok := s.streams[name]
	if !ok {
		opened, err := s.open(name, s.redis, s.maxLen)
		if err != nil {
			return fmt.Errorf("open pulse stream %q: %w", name, err)
		}
		s.streams[name] = opened
		h = opened
	}
	payload, err := json.Marshal(envelope{Kind: event.Kind, RunID: runID, Timestamp: time.Now().UTC(), Event: event})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := h.Add(ctx, string(event.Kind), payload); err != nil {
		return fmt.Errorf("pulse add: %w", err)
	}
	return nil
}

// Close releases resources owned by the sink. The caller typically owns
// the Redis connection's lifecycle, so this is a no-op.
func (s *Sink) Close(context.Context) error { return nil }

func streamName(runID string) string {
	return fmt.Sprintf("agentwave/run/%s", runID)
}

func openPulseStream(name string, redisClient *redis.Client, maxLen int) (streamOpener, error) {
	var opts []streamopts.Stream
	if maxLen > 0 {
		opts = append(opts, streamopts.WithStreamMaxLen(maxLen))
	}
	return streaming.NewStream(name, redisClient, opts...)
}
