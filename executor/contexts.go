package executor

import "sync"

// Contexts is the per-dispatch state shared by the handlers of one Execute
// call: the interruption flag and a small value store.
type Contexts struct {
	mu          sync.Mutex
	interrupted bool
	values      map[any]any
}

// NewContexts returns empty dispatch state.
func NewContexts() *Contexts {
	return &Contexts{}
}

// Interrupt flags the dispatch. Remaining handlers are skipped and callers
// that check IsInterrupted short-circuit.
func (c *Contexts) Interrupt() {
	c.mu.Lock()
	c.interrupted = true
	c.mu.Unlock()
}

// IsInterrupted reports whether a handler interrupted the dispatch.
// A nil Contexts is never interrupted.
func (c *Contexts) IsInterrupted() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupted
}

// Set stores a value for later handlers of the same dispatch.
func (c *Contexts) Set(key, val any) {
	c.mu.Lock()
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = val
	c.mu.Unlock()
}

// Get returns a value stored by an earlier handler.
func (c *Contexts) Get(key any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.values[key]
	return val, ok
}

// Value is a typed Get.
func Value[V any](c *Contexts, key any) (V, bool) {
	val, ok := c.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	typed, ok := val.(V)
	return typed, ok
}
