package resource

import (
	"context"
	"sync"

	"github.com/agentuity/go-resource/metadata"
)

// Metadata is the per key state of a resource.
type Metadata struct {
	Outdated  bool
	Loading   bool
	Exception error
}

// Loader is the backend side of a single value resource.
type Loader[D any, P comparable, K comparable] interface {
	// Load fetches the value for param.
	Load(ctx context.Context, param P) (D, error)
	// MetadataKey maps a resolved param to the key its state is tracked under.
	MetadataKey(param P) K
	// IsLoaded reports whether data already holds what param asks for.
	IsLoaded(param P, data D) bool
}

// Resource caches a single value D loaded by param P, with state tracked per
// metadata key K.
type Resource[D any, P comparable, K comparable] struct {
	*core[P]
	loader       Loader[D, P, K]
	defaultValue D

	mu       sync.RWMutex
	data     D
	metadata *metadata.Map[K, *Metadata]
}

var _ Syncable[string] = (*Resource[int, string, string])(nil)

// NewResource returns a Resource holding defaultValue until the first load.
func NewResource[D any, P comparable, K comparable](loader Loader[D, P, K], defaultValue D, opts ...Option) *Resource[D, P, K] {
	if loader == nil {
		panic("resource: loader is nil")
	}
	r := &Resource[D, P, K]{
		loader:       loader,
		defaultValue: defaultValue,
		data:         defaultValue,
		metadata:     metadata.New(func(K) *Metadata { return &Metadata{Outdated: true} }),
	}
	r.core = newCore(applyOptions(opts), func(a, b P) bool { return a == b })
	r.core.state = r
	return r
}

// Data returns the current value.
func (r *Resource[D, P, K]) Data() D {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// Load loads param unless it is loaded and fresh, and returns the value.
// A failed load returns the loader error unchanged.
func (r *Resource[D, P, K]) Load(ctx context.Context, param P) (D, error) {
	err := r.loadData(ctx, param, false, nil)
	return r.Data(), err
}

// Refresh loads param even when it is fresh.
func (r *Resource[D, P, K]) Refresh(ctx context.Context, param P) (D, error) {
	err := r.loadData(ctx, param, true, nil)
	return r.Data(), err
}

// IsLoaded reports whether the value for param is present.
func (r *Resource[D, P, K]) IsLoaded(param P) bool {
	return r.isLoaded(param, nil)
}

// IsOutdated reports whether param must be loaded again before use. Keys
// never loaded are outdated, as are aliases not loaded yet.
func (r *Resource[D, P, K]) IsOutdated(param P) bool {
	return r.isOutdated(param)
}

// IsDataLoading reports whether a load for param is in progress.
func (r *Resource[D, P, K]) IsDataLoading(param P) bool {
	md := r.record(r.Transform(param))
	r.mu.RLock()
	defer r.mu.RUnlock()
	return md.Loading
}

// Exception returns the error of the last failed load of param, cleared by
// the next successful one.
func (r *Resource[D, P, K]) Exception(param P) error {
	md := r.record(r.Transform(param))
	r.mu.RLock()
	defer r.mu.RUnlock()
	return md.Exception
}

// MarkOutdated flags param as outdated and notifies OnDataOutdated.
func (r *Resource[D, P, K]) MarkOutdated(ctx context.Context, param P) error {
	return r.markOutdated(ctx, param)
}

// MarkUpdated flags param as fresh and clears its exception.
func (r *Resource[D, P, K]) MarkUpdated(param P) {
	r.markUpdated(param)
}

// Clear restores the default value and drops all metadata.
func (r *Resource[D, P, K]) Clear() {
	r.mu.Lock()
	r.data = r.defaultValue
	r.metadata.Clear()
	r.mu.Unlock()
	r.takeLoadedAliases()
	var zero P
	r.publish(ChangeClear, zero)
}

func (r *Resource[D, P, K]) record(param P) *Metadata {
	return r.metadata.Get(r.loader.MetadataKey(param))
}

func (r *Resource[D, P, K]) isLoaded(param P, _ []string) bool {
	if r.aliasUnloaded(param) {
		return false
	}
	param = r.Transform(param)
	return r.loader.IsLoaded(param, r.Data())
}

func (r *Resource[D, P, K]) isOutdated(param P) bool {
	if r.aliasUnloaded(param) {
		return true
	}
	md := r.record(r.Transform(param))
	r.mu.RLock()
	defer r.mu.RUnlock()
	return md.Outdated
}

func (r *Resource[D, P, K]) markLoading(param P) {
	param = r.Transform(param)
	md := r.record(param)
	r.mu.Lock()
	md.Loading = true
	r.mu.Unlock()
	r.publish(ChangeLoading, param)
}

func (r *Resource[D, P, K]) markLoaded(param P) {
	param = r.Transform(param)
	md := r.record(param)
	r.mu.Lock()
	md.Loading = false
	r.mu.Unlock()
	r.publish(ChangeLoaded, param)
}

func (r *Resource[D, P, K]) markError(ctx context.Context, param P, err error) error {
	param = r.Transform(param)
	md := r.record(param)
	r.mu.Lock()
	md.Exception = err
	r.mu.Unlock()
	r.publish(ChangeError, param)
	_, herr := r.onDataError.Execute(ctx, DataError[P]{Param: param, Err: err})
	return herr
}

func (r *Resource[D, P, K]) markOutdated(ctx context.Context, param P) error {
	r.forgetAlias(param)
	param = r.Transform(param)
	md := r.record(param)
	r.mu.Lock()
	md.Outdated = true
	r.mu.Unlock()
	r.publish(ChangeOutdated, param)
	_, err := r.onDataOutdated.Execute(ctx, param)
	return err
}

func (r *Resource[D, P, K]) markUpdated(param P) {
	r.rememberAlias(param)
	param = r.Transform(param)
	md := r.record(param)
	r.mu.Lock()
	md.Outdated = false
	md.Exception = nil
	r.mu.Unlock()
	r.publish(ChangeUpdated, param)
}

func (r *Resource[D, P, K]) fetch(ctx context.Context, param P, _ []string) error {
	data, err := r.loader.Load(ctx, r.Transform(param))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.data = data
	r.mu.Unlock()
	r.publish(ChangeSet, param)
	return nil
}
