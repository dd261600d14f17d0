// Package executor implements an ordered, awaited handler chain used as the
// event bus of cached resources. Any handler may interrupt a dispatch; the
// interruption is a cooperative flag on the returned Contexts, not an error.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handler is called for every executed payload.
type Handler[T any] func(ctx context.Context, data T, contexts *Contexts) error

// EqualFunc reports whether a payload matches the scope of a scoped handler.
type EqualFunc[T any] func(a, b T) bool

// Handle identifies a registered handler so it can be removed.
type Handle uint64

type registration[T any] struct {
	id      Handle
	handler Handler[T]
	scoped  bool
	scope   T
}

type link[T any] struct {
	next *Executor[T]
}

// Executor dispatches payloads to its handlers in registration order.
type Executor[T any] struct {
	isEqual EqualFunc[T]

	mu       sync.RWMutex
	handlers []registration[T]
	post     []registration[T]
	chain    []link[T]
}

var ids atomic.Uint64

// New returns an Executor. isEqual decides which scoped handlers see a
// payload; it may be nil when no scoped handlers are registered.
func New[T any](isEqual EqualFunc[T]) *Executor[T] {
	return &Executor[T]{isEqual: isEqual}
}

// AddHandler registers h to run for every payload.
func (e *Executor[T]) AddHandler(h Handler[T]) Handle {
	return e.add(&e.handlers, registration[T]{handler: h})
}

// AddScopedHandler registers h to run only for payloads equal to scope.
func (e *Executor[T]) AddScopedHandler(scope T, h Handler[T]) Handle {
	if e.isEqual == nil {
		panic("executor: scoped handler requires an equality predicate")
	}
	return e.add(&e.handlers, registration[T]{handler: h, scoped: true, scope: scope})
}

// AddPostHandler registers h to run after all handlers, even when the
// dispatch was interrupted.
func (e *Executor[T]) AddPostHandler(h Handler[T]) Handle {
	return e.add(&e.post, registration[T]{handler: h})
}

func (e *Executor[T]) add(list *[]registration[T], reg registration[T]) Handle {
	if reg.handler == nil {
		panic("executor: handler is nil")
	}
	reg.id = Handle(ids.Add(1))
	e.mu.Lock()
	*list = append(*list, reg)
	e.mu.Unlock()
	return reg.id
}

// RemoveHandler detaches a handler or post handler. It returns false when
// the handle is unknown.
func (e *Executor[T]) RemoveHandler(id Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, list := range []*[]registration[T]{&e.handlers, &e.post} {
		for i, reg := range *list {
			if reg.id == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Next chains other so that it executes with the same payload after this
// executor's handlers, unless the dispatch was interrupted.
func (e *Executor[T]) Next(other *Executor[T]) *Executor[T] {
	e.mu.Lock()
	e.chain = append(e.chain, link[T]{next: other})
	e.mu.Unlock()
	return e
}

// Len returns the number of registered handlers and post handlers.
func (e *Executor[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers) + len(e.post)
}

// Execute dispatches data. Handlers run one after another; the traversal stops
// on the first handler error, which is returned, or when a handler interrupts.
// Post handlers run in both cases.
func (e *Executor[T]) Execute(ctx context.Context, data T) (*Contexts, error) {
	contexts := NewContexts()
	return contexts, e.ExecuteWith(ctx, data, contexts)
}

// ExecuteWith is Execute with caller-provided contexts, used to share one
// interruption flag across chained executors.
func (e *Executor[T]) ExecuteWith(ctx context.Context, data T, contexts *Contexts) error {
	e.mu.RLock()
	handlers := append([]registration[T](nil), e.handlers...)
	post := append([]registration[T](nil), e.post...)
	chain := append([]link[T](nil), e.chain...)
	e.mu.RUnlock()

	err := e.run(ctx, handlers, data, contexts, true)
	if err == nil && !contexts.IsInterrupted() {
		for _, l := range chain {
			if err = l.next.ExecuteWith(ctx, data, contexts); err != nil || contexts.IsInterrupted() {
				break
			}
		}
	}
	if perr := e.run(ctx, post, data, contexts, false); err == nil {
		err = perr
	}
	return err
}

func (e *Executor[T]) run(ctx context.Context, list []registration[T], data T, contexts *Contexts, stopOnInterrupt bool) error {
	for _, reg := range list {
		if stopOnInterrupt && contexts.IsInterrupted() {
			return nil
		}
		if reg.scoped && !e.isEqual(data, reg.scope) {
			continue
		}
		if err := reg.handler(ctx, data, contexts); err != nil {
			return err
		}
	}
	return nil
}
