package resource

import (
	"context"
	"slices"
	"sync"

	"github.com/agentuity/go-resource/executor"
	"github.com/agentuity/go-resource/metadata"
	"github.com/cockroachdb/errors"
)

// ErrKeyValueMismatch is returned by Set when the number of values does not
// match the number of keys.
var ErrKeyValueMismatch = errors.New("resource: keys and values differ in length")

// MapMetadata is the per key state of a map resource.
type MapMetadata struct {
	Metadata
	// Includes lists the optional field groups already fetched for the key.
	Includes []string
}

// Entry is one loaded key and value.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// MapLoader is the backend side of a map resource. When key carries AllMark
// the returned entries are the complete contents of the resource.
type MapLoader[K comparable, V any] interface {
	Load(ctx context.Context, key Key[K], includes []string) ([]Entry[K, V], error)
}

// MapLoaderFunc adapts a function to MapLoader.
type MapLoaderFunc[K comparable, V any] func(ctx context.Context, key Key[K], includes []string) ([]Entry[K, V], error)

func (f MapLoaderFunc[K, V]) Load(ctx context.Context, key Key[K], includes []string) ([]Entry[K, V], error) {
	return f(ctx, key, includes)
}

// MapResource caches values by key.
type MapResource[K comparable, V any] struct {
	*core[Key[K]]
	loader MapLoader[K, V]

	onItemAdd    *executor.Executor[Key[K]]
	onItemDelete *executor.Executor[Key[K]]

	mu       sync.RWMutex
	data     map[K]V
	order    []K
	metadata *metadata.Map[K, *MapMetadata]
}

var _ Syncable[Key[string]] = (*MapResource[string, int])(nil)

// NewMapResource returns an empty MapResource.
func NewMapResource[K comparable, V any](loader MapLoader[K, V], opts ...Option) *MapResource[K, V] {
	if loader == nil {
		panic("resource: loader is nil")
	}
	cfg := applyOptions(opts)
	r := &MapResource[K, V]{
		loader: loader,
		data:   make(map[K]V),
	}
	r.metadata = metadata.New(func(K) *MapMetadata {
		return &MapMetadata{
			Metadata: Metadata{Outdated: true},
			Includes: slices.Clone(cfg.defaultIncludes),
		}
	})
	r.core = newCore(cfg, func(a, b Key[K]) bool { return a.Includes(b) })
	r.core.state = r
	r.onItemAdd = executor.New(r.equivalent)
	r.onItemDelete = executor.New(r.equivalent)
	if cfg.activity {
		spy(r.core, r.onItemAdd, "onItemAdd")
		spy(r.core, r.onItemDelete, "onItemDelete")
	}

	r.AddAlias(AllKey[K](), func(Key[K]) Key[K] {
		return MarkedList(AllMark, r.Keys()...)
	})
	return r
}

// OnItemAdd runs after values were stored.
func (r *MapResource[K, V]) OnItemAdd() *executor.Executor[Key[K]] { return r.onItemAdd }

// OnItemDelete runs before values are removed; the values are still present
// while its handlers run.
func (r *MapResource[K, V]) OnItemDelete() *executor.Executor[Key[K]] { return r.onItemDelete }

// DefaultIncludes returns the includes every new entry starts with.
func (r *MapResource[K, V]) DefaultIncludes() []string {
	return slices.Clone(r.cfg.defaultIncludes)
}

// Keys returns the stored keys in insertion order.
func (r *MapResource[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Values returns the stored values in key insertion order.
func (r *MapResource[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make([]V, 0, len(r.order))
	for _, k := range r.order {
		values = append(values, r.data[k])
	}
	return values
}

// Len returns the number of stored entries.
func (r *MapResource[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Get returns the value stored for key. Aliases resolving to a list yield
// the value of the first entry.
func (r *MapResource[K, V]) Get(key K) (V, bool) {
	resolved := r.Transform(One(key))
	first, ok := resolved.First()
	if !ok {
		var zero V
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	val, ok := r.data[first]
	return val, ok
}

// GetList returns the values for the resolved key, in key order. Missing
// entries yield the zero value.
func (r *MapResource[K, V]) GetList(key Key[K]) []V {
	key = r.Transform(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make([]V, 0, key.Len())
	key.ForEach(func(k K, _ int) {
		values = append(values, r.data[k])
	})
	return values
}

// Has reports whether every entry of key is stored. An alias not loaded yet
// is never present.
func (r *MapResource[K, V]) Has(key Key[K]) bool {
	if r.aliasUnloaded(key) {
		return false
	}
	key = r.Transform(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return key.Every(func(k K) bool {
		_, ok := r.data[k]
		return ok
	})
}

// Set stores values for key and marks the entries fresh. A key list needs
// exactly one value per key, a single key exactly one value.
func (r *MapResource[K, V]) Set(ctx context.Context, key Key[K], values ...V) error {
	key = r.Transform(key)
	if len(values) != key.Len() {
		return errors.Wrapf(ErrKeyValueMismatch, "%d keys, %d values", key.Len(), len(values))
	}
	r.mu.Lock()
	key.ForEach(func(k K, i int) {
		if i < 0 {
			i = 0
		}
		if _, ok := r.data[k]; !ok {
			r.order = append(r.order, k)
		}
		r.data[k] = values[i]
	})
	r.mu.Unlock()
	r.publish(ChangeSet, key)
	r.markUpdated(key)
	if _, err := r.onItemAdd.Execute(ctx, key); err != nil {
		r.logger.Error("item add handler failed for %v: %s", key, err)
	}
	return nil
}

// Delete removes key. OnItemDelete handlers run first and see the values;
// the entries and their metadata are removed even when a handler fails, and
// the handler error is returned.
func (r *MapResource[K, V]) Delete(ctx context.Context, key Key[K]) error {
	key = r.Transform(key)
	_, err := r.onItemDelete.Execute(ctx, key)
	r.mu.Lock()
	key.ForEach(func(k K, _ int) {
		r.metadata.Delete(k)
		if _, ok := r.data[k]; !ok {
			return
		}
		delete(r.data, k)
		if i := slices.Index(r.order, k); i >= 0 {
			r.order = slices.Delete(r.order, i, i+1)
		}
	})
	r.mu.Unlock()
	r.publish(ChangeDelete, key)
	return err
}

// Clear drops all entries, all metadata and the loaded aliases.
func (r *MapResource[K, V]) Clear() {
	r.mu.Lock()
	r.data = make(map[K]V)
	r.order = nil
	r.metadata.Clear()
	r.mu.Unlock()
	r.takeLoadedAliases()
	r.publish(ChangeClear, Key[K]{})
}

// Load loads key unless every entry is stored, fresh and has includes.
// It returns the values for the resolved key.
func (r *MapResource[K, V]) Load(ctx context.Context, key Key[K], includes ...string) ([]V, error) {
	err := r.loadData(ctx, key, false, includes)
	return r.GetList(key), err
}

// Refresh loads key even when it is fresh.
func (r *MapResource[K, V]) Refresh(ctx context.Context, key Key[K], includes ...string) ([]V, error) {
	err := r.loadData(ctx, key, true, includes)
	return r.GetList(key), err
}

// LoadOne is Load for a single key.
func (r *MapResource[K, V]) LoadOne(ctx context.Context, key K, includes ...string) (V, error) {
	if err := r.loadData(ctx, One(key), false, includes); err != nil {
		var zero V
		return zero, err
	}
	val, _ := r.Get(key)
	return val, nil
}

// IsLoaded reports whether every entry of key is stored with all includes.
func (r *MapResource[K, V]) IsLoaded(key Key[K], includes ...string) bool {
	return r.isLoaded(key, includes)
}

// IsOutdated reports whether any entry of key is outdated, or key is an
// alias that was not loaded yet.
func (r *MapResource[K, V]) IsOutdated(key Key[K]) bool {
	return r.isOutdated(key)
}

// IsDataLoading reports whether any entry of key is being loaded.
func (r *MapResource[K, V]) IsDataLoading(key Key[K]) bool {
	key = r.Transform(key)
	return r.someRecord(key, func(md *MapMetadata) bool { return md.Loading })
}

// Exception returns the first recorded load error among the entries of key.
func (r *MapResource[K, V]) Exception(key Key[K]) error {
	for _, err := range r.Exceptions(key) {
		if err != nil {
			return err
		}
	}
	return nil
}

// Exceptions returns the recorded load error of every entry of key.
func (r *MapResource[K, V]) Exceptions(key Key[K]) []error {
	key = r.Transform(key)
	records := r.records(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	errs := make([]error, len(records))
	for i, md := range records {
		errs[i] = md.Exception
	}
	return errs
}

// MarkOutdated flags the entries of key as outdated and notifies
// OnDataOutdated. An alias key also loses its loaded status.
func (r *MapResource[K, V]) MarkOutdated(ctx context.Context, key Key[K]) error {
	return r.markOutdated(ctx, key)
}

// MarkAllOutdated flags every stored entry and every loaded alias as
// outdated, and forgets all loaded aliases.
func (r *MapResource[K, V]) MarkAllOutdated(ctx context.Context) error {
	keys := []Key[K]{List(r.Keys()...)}
	for _, loaded := range r.takeLoadedAliases() {
		keys = append(keys, r.Transform(loaded))
	}
	key := Join(keys...)
	r.setOutdated(key, true)
	r.publish(ChangeOutdated, key)
	_, err := r.onDataOutdated.Execute(ctx, key)
	return err
}

// MarkUpdated flags the entries of key as fresh and clears their errors.
func (r *MapResource[K, V]) MarkUpdated(key Key[K]) {
	r.markUpdated(key)
}

// MarkAllUpdated flags every stored entry as fresh.
func (r *MapResource[K, V]) MarkAllUpdated() {
	r.markUpdated(List(r.Keys()...))
}

// IsIncludes reports whether every entry of key has every include recorded.
func (r *MapResource[K, V]) IsIncludes(key Key[K], includes ...string) bool {
	key = r.Transform(key)
	records := r.records(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, md := range records {
		for _, include := range includes {
			if !slices.Contains(md.Includes, include) {
				return false
			}
		}
	}
	return true
}

// GetIncludes returns the includes recorded for the first entry of key, or
// the default includes when key addresses nothing.
func (r *MapResource[K, V]) GetIncludes(key Key[K]) []string {
	key = r.Transform(key)
	first, ok := key.First()
	if !ok {
		return r.DefaultIncludes()
	}
	md := r.metadata.Get(first)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(md.Includes)
}

// IncludesMap builds the include flags for a backend request: IncludeBase,
// the requested includes, the default includes and the includes already
// recorded for the entries of key, so partial loads accumulate.
func (r *MapResource[K, V]) IncludesMap(key Key[K], includes ...string) map[string]bool {
	flags := map[string]bool{IncludeBase: true}
	for _, include := range r.requestIncludes(r.Transform(key), includes) {
		flags[include] = true
	}
	return flags
}

// requestIncludes is what the loader is asked for: includes first, then the
// defaults and every include recorded for the entries of key.
func (r *MapResource[K, V]) requestIncludes(key Key[K], includes []string) []string {
	request := slices.Clone(includes)
	add := func(include string) {
		if !slices.Contains(request, include) {
			request = append(request, include)
		}
	}
	for _, include := range r.cfg.defaultIncludes {
		add(include)
	}
	records := r.records(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, md := range records {
		for _, include := range md.Includes {
			add(include)
		}
	}
	return request
}

// ResetIncludes restores the default includes of every stored entry.
func (r *MapResource[K, V]) ResetIncludes() {
	for _, k := range r.Keys() {
		md := r.metadata.Get(k)
		r.mu.Lock()
		md.Includes = slices.Clone(r.cfg.defaultIncludes)
		r.mu.Unlock()
	}
}

func (r *MapResource[K, V]) commitIncludes(key Key[K], includes []string) {
	records := r.records(r.Transform(key))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, md := range records {
		for _, include := range includes {
			if !slices.Contains(md.Includes, include) {
				md.Includes = append(md.Includes, include)
			}
		}
	}
}

func (r *MapResource[K, V]) records(key Key[K]) []*MapMetadata {
	records := make([]*MapMetadata, 0, key.Len())
	key.ForEach(func(k K, _ int) {
		records = append(records, r.metadata.Get(k))
	})
	return records
}

func (r *MapResource[K, V]) someRecord(key Key[K], fn func(md *MapMetadata) bool) bool {
	records := r.records(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.ContainsFunc(records, fn)
}

func (r *MapResource[K, V]) update(key Key[K], fn func(md *MapMetadata)) {
	records := r.records(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, md := range records {
		fn(md)
	}
}

func (r *MapResource[K, V]) setOutdated(key Key[K], outdated bool) {
	r.update(key, func(md *MapMetadata) {
		md.Outdated = outdated
		if !outdated {
			md.Exception = nil
		}
	})
}

func (r *MapResource[K, V]) isLoaded(key Key[K], includes []string) bool {
	if r.aliasUnloaded(key) {
		return false
	}
	key = r.Transform(key)
	records := r.records(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, k := range key.keys {
		if _, ok := r.data[k]; !ok {
			return false
		}
		for _, include := range includes {
			if !slices.Contains(records[i].Includes, include) {
				return false
			}
		}
	}
	return true
}

func (r *MapResource[K, V]) isOutdated(key Key[K]) bool {
	if r.aliasUnloaded(key) {
		return true
	}
	key = r.Transform(key)
	return r.someRecord(key, func(md *MapMetadata) bool { return md.Outdated })
}

func (r *MapResource[K, V]) markLoading(key Key[K]) {
	key = r.Transform(key)
	r.update(key, func(md *MapMetadata) { md.Loading = true })
	r.publish(ChangeLoading, key)
}

func (r *MapResource[K, V]) markLoaded(key Key[K]) {
	key = r.Transform(key)
	r.update(key, func(md *MapMetadata) { md.Loading = false })
	r.publish(ChangeLoaded, key)
}

func (r *MapResource[K, V]) markError(ctx context.Context, key Key[K], err error) error {
	key = r.Transform(key)
	r.update(key, func(md *MapMetadata) { md.Exception = err })
	r.publish(ChangeError, key)
	_, herr := r.onDataError.Execute(ctx, DataError[Key[K]]{Param: key, Err: err})
	return herr
}

func (r *MapResource[K, V]) markOutdated(ctx context.Context, key Key[K]) error {
	r.forgetAlias(key)
	key = r.Transform(key)
	r.setOutdated(key, true)
	r.publish(ChangeOutdated, key)
	_, err := r.onDataOutdated.Execute(ctx, key)
	return err
}

func (r *MapResource[K, V]) markUpdated(key Key[K]) {
	r.rememberAlias(key)
	key = r.Transform(key)
	r.setOutdated(key, false)
	r.publish(ChangeUpdated, key)
}

func (r *MapResource[K, V]) fetch(ctx context.Context, key Key[K], includes []string) error {
	resolved := r.Transform(key)
	entries, err := r.loader.Load(ctx, resolved, r.requestIncludes(resolved, includes))
	if err != nil {
		return err
	}

	// item events are not part of the load itself
	ctx = context.WithValue(ctx, loadingKey{}, false)

	if resolved.Mark() == AllMark {
		var stale []K
		for _, k := range r.Keys() {
			if !slices.ContainsFunc(entries, func(e Entry[K, V]) bool { return e.Key == k }) {
				stale = append(stale, k)
			}
		}
		if len(stale) > 0 {
			if err := r.Delete(ctx, List(stale...)); err != nil {
				r.logger.Error("item delete handler failed for %v: %s", stale, err)
			}
		}
	}

	if len(entries) > 0 {
		keys := make([]K, len(entries))
		values := make([]V, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
			values[i] = e.Value
		}
		if err := r.Set(ctx, List(keys...), values...); err != nil {
			return err
		}
	}
	if len(includes) > 0 {
		r.commitIncludes(key, includes)
	}
	return nil
}
