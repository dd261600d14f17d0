package loaders

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/agentuity/go-resource/resource"
	"github.com/agentuity/go-resource/store"
	"github.com/cockroachdb/errors"
)

// SharedLoader serves entries from a shared store before asking the backend.
type SharedLoader[K comparable, V any] struct {
	store  store.Store
	prefix string
	ttl    time.Duration
	next   resource.MapLoader[K, V]

	mu sync.Mutex
	// include sets stored so far, so Forget can reach every variant
	variants map[string]bool
}

var _ resource.MapLoader[string, int] = (*SharedLoader[string, int])(nil)

// Shared serves single keys and key lists from s, loading only the misses
// from next in one batch and storing what it returns for ttl. Loads of the
// "all" list always go to next, since they must be authoritative, and their
// entries are stored too. Entries are stored per include set.
func Shared[K comparable, V any](s store.Store, prefix string, ttl time.Duration, next resource.MapLoader[K, V]) *SharedLoader[K, V] {
	return &SharedLoader[K, V]{
		store:    s,
		prefix:   prefix,
		ttl:      ttl,
		next:     next,
		variants: map[string]bool{"": true},
	}
}

func variant(includes []string) string {
	if len(includes) == 0 {
		return ""
	}
	sorted := slices.Clone(includes)
	slices.Sort(sorted)
	return strings.Join(slices.Compact(sorted), ",")
}

func (l *SharedLoader[K, V]) storeKey(key K, v string) string {
	var sb strings.Builder
	sb.WriteString(l.prefix)
	sb.WriteByte(':')
	if v != "" {
		sb.WriteString(v)
		sb.WriteByte(':')
	}
	fmt.Fprint(&sb, key)
	return sb.String()
}

// Forget expires the stored entries of keys for every include set this
// loader has stored. Call it when the entries are invalidated, so the next
// load reaches the backend.
func (l *SharedLoader[K, V]) Forget(ctx context.Context, keys ...K) error {
	l.mu.Lock()
	variants := make([]string, 0, len(l.variants))
	for v := range l.variants {
		variants = append(variants, v)
	}
	l.mu.Unlock()

	var err error
	for _, k := range keys {
		for _, v := range variants {
			if _, xerr := l.store.Expire(ctx, l.storeKey(k, v)); xerr != nil {
				err = errors.CombineErrors(err, xerr)
			}
		}
	}
	return err
}

func (l *SharedLoader[K, V]) Load(ctx context.Context, key resource.Key[K], includes []string) ([]resource.Entry[K, V], error) {
	v := variant(includes)
	l.mu.Lock()
	l.variants[v] = true
	l.mu.Unlock()

	if key.Mark() == resource.AllMark {
		entries, err := l.next.Load(ctx, key, includes)
		if err != nil {
			return nil, err
		}
		l.save(ctx, entries, v)
		return entries, nil
	}

	if !key.IsList() {
		k, ok := key.First()
		if !ok {
			return nil, nil
		}
		found, val, err := store.Exec(ctx, store.ExecConfig{Key: l.storeKey(k, v), Expires: l.ttl}, l.store,
			func(ctx context.Context) (V, bool, error) {
				var zero V
				entries, err := l.next.Load(ctx, key, includes)
				if err != nil || len(entries) == 0 {
					return zero, false, err
				}
				return entries[0].Value, true, nil
			})
		if err != nil || !found {
			return nil, err
		}
		return []resource.Entry[K, V]{{Key: k, Value: val}}, nil
	}

	hits := make(map[K]V, key.Len())
	var misses []K
	for _, k := range key.Keys() {
		found, val, err := store.Get[V](ctx, l.store, l.storeKey(k, v))
		if err != nil {
			return nil, err
		}
		if found {
			hits[k] = val
			continue
		}
		misses = append(misses, k)
	}
	if len(misses) > 0 {
		entries, err := l.next.Load(ctx, resource.List(misses...), includes)
		if err != nil {
			return nil, err
		}
		l.save(ctx, entries, v)
		for _, e := range entries {
			hits[e.Key] = e.Value
		}
	}

	entries := make([]resource.Entry[K, V], 0, len(hits))
	for _, k := range key.Keys() {
		if val, ok := hits[k]; ok {
			entries = append(entries, resource.Entry[K, V]{Key: k, Value: val})
		}
	}
	return entries, nil
}

func (l *SharedLoader[K, V]) save(ctx context.Context, entries []resource.Entry[K, V], v string) {
	for _, e := range entries {
		// a failed write only costs a later backend call
		_ = l.store.Set(ctx, l.storeKey(e.Key, v), e.Value, l.ttl)
	}
}
