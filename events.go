package replicant

import "sync"

// ChangeHandler receives the value after a flush, the value before it, and
// the operations that produced the change, in the order they were applied.
type ChangeHandler func(newValue, oldValue any, ops []Operation)

type changeHandler struct {
	id   uint64
	fn   ChangeHandler
	once bool
}

// emitter is a minimal, self-contained pub/sub list backing
// Replicant.On/Once. It intentionally does not depend on capitan: capitan
// signals are for cross-cutting observability (logging, metrics), while
// change listeners are a first-class part of the Replicant API and carry
// application data (the value itself), not structured log fields.
type emitter struct {
	mu       sync.Mutex
	handlers []*changeHandler
	nextID   uint64
}

func newEmitter() *emitter {
	return &emitter{}
}

func (e *emitter) on(fn ChangeHandler, once bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	h := &changeHandler{id: e.nextID, fn: fn, once: once}
	e.handlers = append(e.handlers, h)
	id := h.id
	return func() { e.remove(id) }
}

func (e *emitter) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			return
		}
	}
}

func (e *emitter) emit(newValue, oldValue any, ops []Operation) {
	e.mu.Lock()
	snapshot := make([]*changeHandler, len(e.handlers))
	copy(snapshot, e.handlers)
	remaining := e.handlers[:0:0]
	for _, h := range e.handlers {
		if !h.once {
			remaining = append(remaining, h)
		}
	}
	e.handlers = remaining
	e.mu.Unlock()

	for _, h := range snapshot {
		h.fn(newValue, oldValue, ops)
	}
}
