// Package events implements the EventEmitter: a single-subscriber,
// back-pressured, totally-ordered progress stream. Many producers call
// Emit concurrently; the emitter serializes them into one queue so the
// consumer sees events in exact call order (the "one-writer queue
// discipline").
package events

import (
	"sync"

	"github.com/meshwave/agentwave/types"
)

// DefaultBufferSize bounds the emitter's internal queue. Producers block
// on Emit once the buffer fills, which is the documented backpressure
// mechanism.
const DefaultBufferSize = 256

// Emitter is the concurrent-safe EventEmitter. Construct with New and
// read its output via Stream. Close exactly once, after the terminal
// workflow_complete or workflow_error event has been emitted.
type Emitter struct {
	mu     sync.Mutex
	ch     chan types.Event
	closed bool
}

// New builds an Emitter with DefaultBufferSize capacity.
func New() *Emitter {
	return &Emitter{ch: make(chan types.Event, DefaultBufferSize)}
}

// Emit enqueues event, blocking if the buffer is full until the consumer
// drains it. Emit serializes internally: concurrent callers are ordered
// by the order in which they acquire the emitter's lock, so the total
// order matches call order as guaranteed by the one-writer discipline.
// Emit returns types.ErrEmitterClosed if the emitter was already closed.
func (e *Emitter) Emit(event types.Event) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return types.ErrEmitterClosed
	}
	// Hold the lock across the send itself so concurrent Emit calls cannot
	// interleave in the channel in an order different from lock-acquisition
	// order; this is what makes the total order match call order rather
	// than merely "some order consistent with channel semantics".
	e.ch <- event
	e.mu.Unlock()
	return nil
}

// Stream returns the receive side of the emitter's queue. There is only
// ever one consumer; calling Stream more than once returns the same
// channel, which is not safe for use by multiple goroutines.
func (e *Emitter) Stream() <-chan types.Event {
	return e.ch
}

// Close ends the stream. Callers must ensure no further Emit calls are in
// flight; Close is not itself synchronized against Emit beyond the
// closed flag, mirroring the contract that emission of the terminal
// event is the last thing a run does.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}
