package event

// Handler consumes one event. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus is the in-process publish/subscribe dispatcher. Delivery is
// synchronous, single-threaded, and strictly in registration order per
// kind, which is what the ledger's correctness depends on: there is no
// locking anywhere downstream.
type Bus struct {
	handlers map[Kind][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// AddListener registers a handler for a kind. Handlers registered first
// are invoked first.
func (b *Bus) AddListener(kind Kind, h Handler) {
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish delivers the event to every registered handler, in order,
// before returning. Kinds with no listeners are dropped silently.
func (b *Bus) Publish(e Event) {
	for _, h := range b.handlers[e.Kind] {
		h(e)
	}
}

// ListenerCount returns the number of handlers registered for a kind.
func (b *Bus) ListenerCount(kind Kind) int {
	return len(b.handlers[kind])
}
