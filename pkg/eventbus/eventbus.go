package eventbus

import (
	"strings"
	"sync"
)

// Event is anything that names the topic it is published on.
type Event interface {
	Topic() string
}

// Handler handles an event.
type Handler func(event Event)

// EventBus provides in-process pub/sub keyed by topic. A subscription on
// "batch.*" receives every topic starting with "batch.".
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	sync     bool
	wg       sync.WaitGroup
}

// Option configures an EventBus.
type Option func(*EventBus)

// WithSyncDelivery makes Publish behave like PublishSync.
func WithSyncDelivery() Option {
	return func(e *EventBus) { e.sync = true }
}

// New creates a new EventBus
func New(opts ...Option) *EventBus {
	e := &EventBus{handlers: make(map[string][]Handler)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers a handler for a topic or a "prefix.*" pattern.
func (e *EventBus) Subscribe(topic string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[topic] = append(e.handlers[topic], handler)
}

// Publish delivers the event to every matching handler on its own goroutine.
func (e *EventBus) Publish(event Event) {
	if e.sync {
		e.PublishSync(event)
		return
	}
	for _, h := range e.match(event.Topic()) {
		e.wg.Add(1)
		go func(h Handler) {
			defer e.wg.Done()
			h(event)
		}(h)
	}
}

// PublishSync delivers the event to every matching handler before returning.
func (e *EventBus) PublishSync(event Event) {
	for _, h := range e.match(event.Topic()) {
		h(event)
	}
}

// Wait blocks until asynchronously delivered events have been handled.
func (e *EventBus) Wait() {
	e.wg.Wait()
}

// SubscriberCount returns the number of handlers an event on topic would reach.
func (e *EventBus) SubscriberCount(topic string) int {
	return len(e.match(topic))
}

func (e *EventBus) match(topic string) []Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Handler
	for pattern, hs := range e.handlers {
		if pattern == topic || (strings.HasSuffix(pattern, ".*") && strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))) {
			out = append(out, hs...)
		}
	}
	return out
}
