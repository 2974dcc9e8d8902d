// Package bus implements the peer-to-peer MessageBus: typed routing
// between concurrently running tasks, with per-subscriber bounded queues
// and a full publish-order history.
package bus

import (
	"sync"
	"time"

	"github.com/meshwave/agentwave/types"
)

// DefaultQueueCapacity bounds each subscriber's pending-message queue.
const DefaultQueueCapacity = 64

// Bus is the concurrent-safe MessageBus. Construct with New.
type Bus struct {
	enabled  bool
	capacity int

	mu      sync.Mutex
	subs    map[string]*subscription
	history []types.AgentMessage
	running bool
}

type subscription struct {
	who string
	ch  chan types.AgentMessage
}

// New builds a Bus. When enabled is false, every operation becomes a
// no-op and Subscribe returns an already-closed channel, per
// enable_communication=false.
func New(enabled bool) *Bus {
	return &Bus{
		enabled:  enabled,
		capacity: DefaultQueueCapacity,
		subs:     make(map[string]*subscription),
		running:  true,
	}
}

// Start marks the bus as accepting publishes. Buses start in the running
// state; Start exists for symmetry with Stop and idempotent restarts in
// tests.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		// Stop closed every subscriber channel; start over with none.
		b.subs = make(map[string]*subscription)
	}
	b.running = true
}

// Stop marks the bus as no longer running. Publish becomes a no-op and
// every subscriber channel is closed, ending its stream.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	for _, sub := range b.subs {
		close(sub.ch)
	}
}

// Subscribe registers who as a recipient and returns a channel of
// messages addressed to who or broadcast. The channel closes when the bus
// stops. If the bus was built with enabled=false, the returned channel is
// already closed. Subscribe is idempotent: calling it again for a who
// that is already registered returns the same channel rather than
// replacing it, so a task can pre-register before it starts running and
// reclaim the identical channel (with anything queued in the meantime)
// once it does.
func (b *Bus) Subscribe(who string) <-chan types.AgentMessage {
	if !b.enabled {
		ch := make(chan types.AgentMessage)
		close(ch)
		return ch
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[who]; ok {
		return sub.ch
	}
	sub := &subscription{who: who, ch: make(chan types.AgentMessage, b.capacity)}
	b.subs[who] = sub
	return sub.ch
}

// Publish routes msg to its addressee (or fans it out to every subscriber
// when msg.To is empty) and appends it to history. Publish never blocks:
// a full subscriber queue drops its oldest undelivered message and
// records a message_dropped diagnostic in history instead.
func (b *Bus) Publish(msg types.AgentMessage) {
	if !b.enabled {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.history = append(b.history, msg)

	if msg.To == "" {
		for who, sub := range b.subs {
			b.deliverLocked(who, sub, msg)
		}
		return
	}
	if sub, ok := b.subs[msg.To]; ok {
		b.deliverLocked(msg.To, sub, msg)
	}
}

// Broadcast is shorthand for Publish with Kind=MessageBroadcast and an
// empty To.
func (b *Bus) Broadcast(from string, content any) {
	b.Publish(types.AgentMessage{
		From:    from,
		Kind:    types.MessageBroadcast,
		Content: content,
	})
}

// deliverLocked must be called with b.mu held. On a full queue it drops
// the oldest pending message to make room, then records the drop.
func (b *Bus) deliverLocked(who string, sub *subscription, msg types.AgentMessage) {
	select {
	case sub.ch <- msg:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- msg:
	default:
	}
	b.history = append(b.history, types.AgentMessage{
		From:      "bus",
		To:        who,
		Kind:      types.MessageData,
		Content:   "message_dropped",
		Timestamp: time.Now(),
	})
}

// History returns every message seen by Publish, including synthetic
// message_dropped diagnostics, in publish order.
func (b *Bus) History() []types.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.AgentMessage, len(b.history))
	copy(out, b.history)
	return out
}
