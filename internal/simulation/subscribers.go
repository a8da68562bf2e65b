package simulation

import "sync"

// registry holds handlers in subscription order.
type registry[T any] struct {
	mu       sync.Mutex
	next     uint64
	handlers []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// add registers fn and returns its unsubscribe function. Unsubscribing more
// than once is a no-op.
func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.handlers = append(r.handlers, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.id == id {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return
		}
	}
}

// publish calls every handler registered at the time of the call. Handlers
// may subscribe or unsubscribe while being called. A handler that panics is
// reported to onPanic and the remaining handlers still run.
func (r *registry[T]) publish(v T, onPanic func(any)) {
	r.mu.Lock()
	handlers := r.handlers
	r.mu.Unlock()
	for _, h := range handlers {
		call(h.fn, v, onPanic)
	}
}

func call[T any](fn func(T), v T, onPanic func(any)) {
	defer func() {
		if p := recover(); p != nil {
			onPanic(p)
		}
	}()
	fn(v)
}

func (r *registry[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
