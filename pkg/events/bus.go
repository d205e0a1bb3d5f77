package events

import (
	"sync"

	"github.com/openfleet/conduit-go/pkg/logging"
)

// Handler receives events from a Bus.
type Handler func(Event)

// Bus is a synchronous fan-out publisher. Emit invokes every current
// subscriber in registration order on the calling goroutine; a panicking
// subscriber is isolated and logged, never interrupting the others or the
// emitter.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]Handler
	order  []int
	nextID int
	logger logging.Logger
}

// NewBus creates a bus. A nil logger falls back to a no-op logger.
func NewBus(logger logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		subs:   make(map[int]Handler),
		logger: logger,
	}
}

// On registers a subscriber and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (b *Bus) On(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Emit dispatches the event to every subscriber registered at call time.
// Handlers run without the bus lock held, so a handler may subscribe,
// unsubscribe, or drive the client re-entrantly.
func (b *Bus) Emit(event Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, id := range b.order {
		if h, ok := b.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.safeInvoke(h, event)
	}
}

func (b *Bus) safeInvoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panic",
				logging.String("event_type", string(event.Type)),
				logging.Any("panic", r))
		}
	}()
	h(event)
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
