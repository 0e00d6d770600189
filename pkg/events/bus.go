package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistoryLimit = 100

// Bus is a synchronous publish/subscribe channel. Delivery happens in
// subscription order on the emitter's goroutine; a panicking subscriber
// is isolated so the remaining subscribers still run. Every emission is
// recorded into a bounded history ring for diagnostics, whether or not
// anyone is subscribed.
type Bus struct {
	mu           sync.Mutex
	subscribers  map[string][]*subscription
	history      []Event
	historyLimit int
	logger       *slog.Logger
}

type subscription struct {
	handler Handler
	once    bool
}

// Option customizes Bus construction.
type Option func(*Bus)

// WithHistoryLimit overrides the diagnostic history capacity.
func WithHistoryLimit(limit int) Option {
	return func(b *Bus) {
		if limit > 0 {
			b.historyLimit = limit
		}
	}
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subscribers:  make(map[string][]*subscription),
		historyLimit: defaultHistoryLimit,
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// On registers a handler for the named event and returns an unsubscribe
// closure. Unsubscribing twice is harmless.
func (b *Bus) On(name string, handler Handler) func() {
	return b.subscribe(name, handler, false)
}

// Once registers a handler that is removed after its first delivery.
func (b *Bus) Once(name string, handler Handler) func() {
	return b.subscribe(name, handler, true)
}

func (b *Bus) subscribe(name string, handler Handler, once bool) func() {
	sub := &subscription{handler: handler, once: once}

	b.mu.Lock()
	b.subscribers[name] = append(b.subscribers[name], sub)
	b.mu.Unlock()

	return func() { b.remove(name, sub) }
}

// Off removes every subscriber for the named event.
func (b *Bus) Off(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, name)
}

func (b *Bus) remove(name string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[name]
	for i, s := range subs {
		if s == sub {
			b.subscribers[name] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit dispatches the event to a snapshot of the current subscribers,
// so handlers may subscribe or unsubscribe during delivery without
// affecting this emission.
func (b *Bus) Emit(name string, payload map[string]any) {
	event := Event{
		ID:        uuid.New(),
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
	subs := make([]*subscription, len(b.subscribers[name]))
	copy(subs, b.subscribers[name])
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.once {
			b.remove(name, sub)
		}
		b.deliver(event, sub)
	}
}

// deliver runs one handler, containing any panic so the remaining
// subscribers still receive the event.
func (b *Bus) deliver(event Event, sub *subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event subscriber panicked",
				"event", event.Name,
				"panic", r)
		}
	}()
	sub.handler(event)
}

// History returns the retained emissions, oldest first. With a name it
// filters to that event; with an empty name it returns everything.
func (b *Bus) History(name string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, 0, len(b.history))
	for _, e := range b.history {
		if name == "" || e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// ClearHistory drops the retained emissions.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// SubscriberCount reports how many handlers are registered for the
// named event. Diagnostic helper.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[name])
}
