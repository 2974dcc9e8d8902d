// Package stream defines the event-sink contract implemented by
// stdout and pulse, the two concrete transports for a workflow's
// types.Event stream.
package stream

import (
	"context"

	"github.com/meshwave/agentwave/types"
)

// Sink publishes a single types.Event to a transport. Drain calls Send
// from one goroutine, in stream order. stdout.Sink is also safe for
// concurrent Send calls; pulse.Sink is not.
type Sink interface {
	Send(ctx context.Context, runID string, event types.Event) error
	Close(ctx context.Context) error
}

// Drain reads every event from events until the channel closes,
// forwarding each to sink. It returns the first Send error encountered,
// after first draining the remaining events so the producer never blocks.
func Drain(ctx context.Context, runID string, events <-chan types.Event, sink Sink) error {
	var firstErr error
	for event := range events {
		if err := sink.Send(ctx, runID, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
