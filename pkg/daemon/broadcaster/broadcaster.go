// Package broadcaster manages subscribers and distributes scan events.
package broadcaster

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jamesainslie/fopt/pkg/fopt/logging"
	"github.com/jamesainslie/fopt/pkg/fopt/progress"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

const (
	// DefaultBuffer is the per-subscriber event buffer size.
	DefaultBuffer = 256

	// terminalBuffer is how many terminal events a subscriber holds before
	// the oldest is replaced.
	terminalBuffer = 8
)

// Subscriber receives events from a Broadcaster. Progress and scan results
// go to mailboxes that keep only the latest value, terminal events go to
// Terminal and log events go to the bounded Events buffer. Only log events
// are ever dropped, and the most recent terminal event is always kept.
type Subscriber struct {
	ID       string
	Events   chan types.Event
	Progress *progress.Mailbox[types.Event]
	Results  *progress.Mailbox[types.Event]
	Terminal chan types.Event

	dropped atomic.Int64
}

// Dropped returns how many events did not fit into the buffer.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Broadcaster manages subscribers and distributes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	buffer      int
	closed      bool
	log         *logging.Logger
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithBuffer sets the per-subscriber buffer size.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// New creates a new Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subscribers: make(map[string]*Subscriber),
		buffer:      DefaultBuffer,
		log:         logging.Get("broadcaster"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe creates a new subscription. It returns nil once the
// broadcaster is closed.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:       uuid.New().String(),
		Events:   make(chan types.Event, b.buffer),
		Progress: progress.NewMailbox[types.Event](),
		Results:  progress.NewMailbox[types.Event](),
		Terminal: make(chan types.Event, terminalBuffer),
	}
	b.subscribers[sub.ID] = sub
	b.log.Debug("subscriber added", "id", sub.ID, "subscribers", len(b.subscribers))
	return sub
}

// Unsubscribe removes a subscription and closes its Events channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
		b.log.Debug("subscriber removed", "id", id, "dropped", sub.dropped.Load())
	}
}

// Publish sends an event to all subscribers without blocking. A subscriber
// whose log buffer is full loses the log event and a warning is logged.
func (b *Broadcaster) Publish(ev types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		switch ev.Type {
		case types.EventProgress:
			sub.Progress.Put(ev)
		case types.EventResult:
			sub.Results.Put(ev)
		case types.EventTerminal:
			b.sendTerminal(sub, ev)
		default:
			select {
			case sub.Events <- ev:
			default:
				sub.dropped.Add(1)
				b.log.Warn("subscriber buffer full, event dropped",
					"subscriber", sub.ID, "type", ev.Type, "job", ev.JobID)
			}
		}
	}
}

// sendTerminal queues ev, replacing the oldest terminal event when the
// subscriber has not read any for terminalBuffer jobs. Callers hold b.mu.
func (b *Broadcaster) sendTerminal(sub *Subscriber, ev types.Event) {
	for {
		select {
		case sub.Terminal <- ev:
			return
		default:
		}
		select {
		case old := <-sub.Terminal:
			sub.dropped.Add(1)
			b.log.Warn("subscriber not reading, terminal event replaced",
				"subscriber", sub.ID, "job", old.JobID)
		default:
		}
	}
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
