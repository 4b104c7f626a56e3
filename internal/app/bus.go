package app

import "sync"

// Handler receives events synchronously on the emitting goroutine.
type Handler func(Event)

// Subscription identifies a registered handler so it can be removed.
type Subscription struct {
	kind EventKind
	id   uint64
}

// Bus is a typed publish/subscribe table. Emit is meant for the owning
// service; consumers only see On and Off.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventKind]map[uint64]Handler
}

// On registers h for events of the given kind.
func (b *Bus) On(kind EventKind, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[EventKind]map[uint64]Handler)
	}
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uint64]Handler)
	}
	b.nextID++
	b.handlers[kind][b.nextID] = h
	return Subscription{kind: kind, id: b.nextID}
}

// Off removes a handler. Removing twice is a no-op.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers[sub.kind], sub.id)
}

// Emit invokes every handler registered for the event's kind. Invocation
// order is unspecified.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[ev.Kind()]))
	for _, h := range b.handlers[ev.Kind()] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	// Handlers run outside the lock so they may subscribe or unsubscribe.
	for _, h := range hs {
		h(ev)
	}
}
