// ABOUTME: Ordered handler table for socket event subscriptions.
// ABOUTME: Owned by the Manager so registrations survive reconnects; handles support removal.

package realtime

import "sync"

// Subscription is a handle for a registered event handler. Cancel removes
// the handler; it is safe to call more than once.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the handler from its table.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// handlerTable keeps handlers in registration order. Multiple
// registrations are additive; invoke calls every handler in order.
type handlerTable[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []tableEntry[T]
}

type tableEntry[T any] struct {
	id uint64
	fn func(T)
}

// add registers a handler and returns its removal handle.
func (t *handlerTable[T]) add(fn func(T)) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	t.entries = append(t.entries, tableEntry[T]{id: id, fn: fn})

	return &Subscription{cancel: func() { t.remove(id) }}
}

// remove deletes the handler with the given id, preserving order of the rest.
func (t *handlerTable[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.id == id {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// invoke calls every registered handler in registration order. The table
// lock is not held during calls so handlers may register or cancel
// subscriptions and call back into the Manager.
func (t *handlerTable[T]) invoke(v T) {
	t.mu.Lock()
	fns := make([]func(T), len(t.entries))
	for i, e := range t.entries {
		fns[i] = e.fn
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
