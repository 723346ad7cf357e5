// Package events carries the load and run notification streams.
//
// Each stream is an append-only log. Subscribers are called synchronously
// in publish order, so "started" is always observed before any per-test
// event and "finished" is always observed last.
package events

import "sync"

// Emitter is an ordered, append-only event log with synchronous subscribers.
type Emitter[T any] struct {
	mu      sync.Mutex
	history []T
	subs    map[int]func(T)
	nextID  int
}

// NewEmitter returns an empty emitter. The zero value is also ready to use.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn for every event published after the call.
// The returned function removes the subscription.
func (e *Emitter[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs == nil {
		e.subs = make(map[int]func(T))
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Publish appends ev to the log and delivers it to subscribers.
// Delivery happens under the emitter lock; subscribers must not publish
// to the same emitter.
func (e *Emitter[T]) Publish(ev T) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, ev)
	for id := 0; id < e.nextID; id++ {
		if fn, ok := e.subs[id]; ok {
			fn(ev)
		}
	}
}

// History returns a copy of every published event in order.
func (e *Emitter[T]) History() []T {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]T, len(e.history))
	copy(out, e.history)
	return out
}

// Reset drops the recorded history. Subscriptions are kept.
func (e *Emitter[T]) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}
