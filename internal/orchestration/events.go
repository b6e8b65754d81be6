package orchestration

import (
	"log"
	"sync"

	"github.com/samborba/taskflow/internal/graph"
)

// EventKind names a Scheduler lifecycle event.
type EventKind string

const (
	EventTaskStart          EventKind = "task-start"
	EventTaskComplete       EventKind = "task-complete"
	EventTaskError          EventKind = "task-error"
	EventQueueComplete      EventKind = "queue-complete"
	EventQueueStalled       EventKind = "queue-stalled"
	EventPaused             EventKind = "paused"
	EventResumed            EventKind = "resumed"
	EventStopped            EventKind = "stopped"
	EventReset              EventKind = "reset"
	EventConcurrencyChanged EventKind = "concurrency-changed"
)

// Event is the single tagged payload delivered to subscribers. Only the
// fields relevant to Kind are populated; the rest are zero values.
type Event struct {
	Kind   EventKind
	TaskID graph.TaskID
	Task   *graph.Task
	Result any
	Err    error
	Stats  Stats
	N      int // concurrency value, for EventConcurrencyChanged
}

// Handler receives events published on an EventBus. Handlers run
// synchronously on the publishing goroutine (the scheduler's coordination
// loop) and must not block it.
type Handler func(Event)

// EventBus is a minimal publish/subscribe registry: event kind to ordered
// handler list, plus a set of catch-all handlers. Delivery is synchronous
// and a handler panic is recovered so one misbehaving subscriber cannot
// take down the scheduler. Subscribe/SubscribeAll/publish may be called
// concurrently — subscribers come and go (e.g. Monitor WebSocket clients
// connecting and disconnecting) while the scheduler keeps publishing.
type EventBus struct {
	mu       sync.Mutex
	handlers map[EventKind][]Handler
	all      map[int]Handler
	nextID   int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventKind][]Handler),
		all:      make(map[int]Handler),
	}
}

// Subscribe registers h to run whenever an event of kind is published.
func (b *EventBus) Subscribe(kind EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers h to run for every event kind, in publication
// order relative to kind-specific handlers (kind-specific handlers run
// first). It returns a function that removes h; callers whose own
// lifetime is shorter than the bus's (like a Monitor WebSocket
// connection) must call it on disconnect to avoid leaking handlers.
func (b *EventBus) SubscribeAll(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.all[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.all, id)
		b.mu.Unlock()
	}
}

// publish delivers e to every matching subscriber, recovering panics so a
// broken handler cannot propagate into the producer.
func (b *EventBus) publish(e Event) {
	b.mu.Lock()
	kindHandlers := append([]Handler(nil), b.handlers[e.Kind]...)
	allHandlers := make([]Handler, 0, len(b.all))
	for _, h := range b.all {
		allHandlers = append(allHandlers, h)
	}
	b.mu.Unlock()

	for _, h := range kindHandlers {
		invoke(h, e)
	}
	for _, h := range allHandlers {
		invoke(h, e)
	}
}

func invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("orchestration: event handler for %s panicked: %v", e.Kind, r)
		}
	}()
	h(e)
}
