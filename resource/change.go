package resource

import (
	"sync"

	"github.com/google/uuid"
)

// ChangeKind tells watchers what happened to a key.
type ChangeKind int

const (
	ChangeSet ChangeKind = iota
	ChangeDelete
	ChangeOutdated
	ChangeUpdated
	ChangeLoading
	ChangeLoaded
	ChangeError
	ChangeClear
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeOutdated:
		return "outdated"
	case ChangeUpdated:
		return "updated"
	case ChangeLoading:
		return "loading"
	case ChangeLoaded:
		return "loaded"
	case ChangeError:
		return "error"
	case ChangeClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Change is published synchronously after every state mutation.
type Change[P any] struct {
	Kind ChangeKind
	Key  P
}

type watchers[P any] struct {
	mu   sync.RWMutex
	subs map[string]func(Change[P])
	// insertion order, so watchers are called in subscription order
	order []string
}

func (w *watchers[P]) watch(fn func(Change[P])) func() {
	id := uuid.NewString()
	w.mu.Lock()
	if w.subs == nil {
		w.subs = make(map[string]func(Change[P]))
	}
	w.subs[id] = fn
	w.order = append(w.order, id)
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.subs[id]; !ok {
			return
		}
		delete(w.subs, id)
		for i, o := range w.order {
			if o == id {
				w.order = append(w.order[:i:i], w.order[i+1:]...)
				break
			}
		}
	}
}

func (w *watchers[P]) publish(kind ChangeKind, key P) {
	w.mu.RLock()
	fns := make([]func(Change[P]), 0, len(w.order))
	for _, id := range w.order {
		fns = append(fns, w.subs[id])
	}
	w.mu.RUnlock()
	change := Change[P]{Kind: kind, Key: key}
	for _, fn := range fns {
		fn(change)
	}
}
