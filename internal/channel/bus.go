package channel

import (
	"log/slog"
	"sync"
)

// EventBus fans events out to subscribers synchronously, in subscription
// order, on the publisher's goroutine. A panicking handler is logged and
// skipped; the remaining handlers still run.
type EventBus struct {
	logger *slog.Logger

	mu   sync.Mutex
	next int64
	subs []subscriber
}

type subscriber struct {
	token int64
	fn    Handler
}

// NewEventBus creates an empty bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{logger: logger}
}

// Subscribe registers fn and returns its unsubscribe token. The same
// function may be subscribed more than once; each registration gets its
// own token and its own delivery.
func (b *EventBus) Subscribe(fn Handler) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs = append(b.subs, subscriber{token: b.next, fn: fn})
	return b.next
}

// Unsubscribe removes the subscription identified by token. Unknown tokens
// are ignored.
func (b *EventBus) Unsubscribe(token int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.token == token {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber registered at the time of the
// call. Subscriptions made from inside a handler take effect from the next
// Publish.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	snapshot := make([]subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		b.dispatch(s, ev)
	}
}

func (b *EventBus) dispatch(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", ev.Type.String(),
				"token", s.token,
				"panic", r,
			)
		}
	}()
	s.fn(ev)
}

// Len returns the number of active subscriptions.
func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
