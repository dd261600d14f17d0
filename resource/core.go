package resource

import (
	"context"
	"strings"
	"sync"

	"github.com/agentuity/go-resource/executor"
	"github.com/agentuity/go-resource/logger"
	"github.com/agentuity/go-resource/scheduler"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DataError is the payload of OnDataError.
type DataError[P any] struct {
	Param P
	Err   error
}

// Syncable is what a resource needs from a resource it depends on.
type Syncable[P any] interface {
	OnDataOutdated() *executor.Executor[P]
	EnsureLoaded(ctx context.Context, param P) error
}

// state is the storage specific half of a resource. core drives the load
// algorithm and the alias bookkeeping, state owns data and metadata.
type state[P any] interface {
	isLoaded(param P, includes []string) bool
	isOutdated(param P) bool
	markLoading(param P)
	markLoaded(param P)
	markError(ctx context.Context, param P, err error) error
	markOutdated(ctx context.Context, param P) error
	markUpdated(param P)
	fetch(ctx context.Context, param P, includes []string) error
}

type alias[P any] struct {
	pattern P
	resolve func(P) P
}

// core is shared by Resource and MapResource.
type core[P any] struct {
	cfg    config
	logger logger.Logger
	state  state[P]
	// relation is the raw key relation, without alias resolution
	relation func(a, b P) bool

	scheduler      *scheduler.Scheduler[P]
	beforeLoad     *executor.Executor[P]
	onDataOutdated *executor.Executor[P]
	onDataUpdate   *executor.Executor[P]
	onDataError    *executor.Executor[DataError[P]]
	watchers       watchers[P]

	mu         sync.RWMutex
	aliases    []alias[P]
	loadedKeys []P
}

func newCore[P any](cfg config, relation func(a, b P) bool) *core[P] {
	c := &core[P]{
		cfg:      cfg,
		logger:   cfg.logger,
		relation: relation,
	}
	c.scheduler = scheduler.New(c.equivalent)
	c.beforeLoad = executor.New(c.equivalent)
	c.onDataOutdated = executor.New(c.equivalent)
	c.onDataUpdate = executor.New(c.equivalent)
	c.onDataError = executor.New(func(a, b DataError[P]) bool {
		return c.equivalent(a.Param, b.Param)
	})
	if cfg.activity {
		spy(c, c.beforeLoad, "beforeLoad")
		spy(c, c.onDataOutdated, "onDataOutdated")
		spy(c, c.onDataUpdate, "onDataUpdate")
		spy(c, c.onDataError, "onDataError")
	}
	return c
}

func spy[P, T any](c *core[P], e *executor.Executor[T], action string) {
	e.AddHandler(func(ctx context.Context, data T, contexts *executor.Contexts) error {
		c.logger.Trace("%s %v", action, data)
		return nil
	})
	e.AddPostHandler(func(ctx context.Context, data T, contexts *executor.Contexts) error {
		if contexts.IsInterrupted() {
			c.logger.Trace("%s %v interrupted", action, data)
		}
		return nil
	})
}

// equivalent is the predicate shared by the scheduler and the executors:
// keys are equivalent when they are related as given or after resolution.
func (c *core[P]) equivalent(a, b P) bool {
	if c.relation(a, b) {
		return true
	}
	return c.relation(c.Transform(a), c.Transform(b))
}

// BeforeLoad runs before every load. Interrupting it cancels a load that is
// not a refresh.
func (c *core[P]) BeforeLoad() *executor.Executor[P] { return c.beforeLoad }

// OnDataOutdated runs after a key was marked outdated.
func (c *core[P]) OnDataOutdated() *executor.Executor[P] { return c.onDataOutdated }

// OnDataUpdate runs after a successful load.
func (c *core[P]) OnDataUpdate() *executor.Executor[P] { return c.onDataUpdate }

// OnDataError runs after a failed load.
func (c *core[P]) OnDataError() *executor.Executor[DataError[P]] { return c.onDataError }

// Name returns the configured resource name.
func (c *core[P]) Name() string { return c.cfg.name }

// Watch subscribes fn to change notifications. The returned function
// cancels the subscription.
func (c *core[P]) Watch(fn func(Change[P])) func() {
	return c.watchers.watch(fn)
}

func (c *core[P]) publish(kind ChangeKind, key P) {
	c.watchers.publish(kind, key)
}

// AddAlias registers resolve for keys related to pattern.
func (c *core[P]) AddAlias(pattern P, resolve func(P) P) {
	c.mu.Lock()
	c.aliases = append(c.aliases, alias[P]{pattern: pattern, resolve: resolve})
	c.mu.Unlock()
}

func (c *core[P]) matchAlias(param P) (alias[P], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.aliases {
		if c.relation(a.pattern, param) {
			return a, true
		}
	}
	return alias[P]{}, false
}

// IsAlias reports whether param matches a registered alias pattern.
func (c *core[P]) IsAlias(param P) bool {
	_, ok := c.matchAlias(param)
	return ok
}

// IsAliasLoaded reports whether the alias param was loaded successfully and
// not marked outdated since.
func (c *core[P]) IsAliasLoaded(param P) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, loaded := range c.loadedKeys {
		if c.relation(param, loaded) {
			return true
		}
	}
	return false
}

func (c *core[P]) aliasUnloaded(param P) bool {
	return c.IsAlias(param) && !c.IsAliasLoaded(param)
}

func (c *core[P]) rememberAlias(param P) {
	if !c.IsAlias(param) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, loaded := range c.loadedKeys {
		if c.relation(param, loaded) {
			return
		}
	}
	c.loadedKeys = append(c.loadedKeys, param)
}

func (c *core[P]) forgetAlias(param P) {
	if !c.IsAlias(param) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, loaded := range c.loadedKeys {
		if c.relation(param, loaded) {
			c.loadedKeys = append(c.loadedKeys[:i:i], c.loadedKeys[i+1:]...)
			return
		}
	}
}

// takeLoadedAliases empties the loaded alias list and returns it.
func (c *core[P]) takeLoadedAliases() []P {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded := c.loadedKeys
	c.loadedKeys = nil
	return loaded
}

// Transform resolves aliases with an explicit loop bounded by MaxAliasDepth.
func (c *core[P]) Transform(param P) P {
	for depth := 0; ; depth++ {
		a, ok := c.matchAlias(param)
		if !ok {
			return param
		}
		if depth == MaxAliasDepth {
			c.logger.Warn("alias resolution stopped after %d steps at %v", MaxAliasDepth, param)
			return param
		}
		param = a.resolve(param)
	}
}

// IsLoading reports whether any load task of the resource is running.
func (c *core[P]) IsLoading() bool {
	return c.scheduler.Executing()
}

// WaitLoad blocks until no load task is running or queued.
func (c *core[P]) WaitLoad(ctx context.Context) error {
	return c.scheduler.Wait(ctx)
}

// EnsureLoaded loads param unless it is loaded and fresh.
func (c *core[P]) EnsureLoaded(ctx context.Context, param P) error {
	return c.loadData(ctx, param, false, nil)
}

// Sync makes this resource depend on upstream: loading a key first loads it
// in upstream, and marking a key outdated in upstream marks it outdated here.
// The returned function removes the wiring.
func (c *core[P]) Sync(upstream Syncable[P]) func() {
	outdated := upstream.OnDataOutdated().AddHandler(func(ctx context.Context, param P, _ *executor.Contexts) error {
		return c.state.markOutdated(ctx, param)
	})
	before := c.beforeLoad.AddHandler(func(ctx context.Context, param P, _ *executor.Contexts) error {
		return upstream.EnsureLoaded(ctx, param)
	})
	return func() {
		upstream.OnDataOutdated().RemoveHandler(outdated)
		c.beforeLoad.RemoveHandler(before)
	}
}

func (c *core[P]) fresh(param P, includes []string) bool {
	return c.state.isLoaded(param, includes) && !c.state.isOutdated(param)
}

func (c *core[P]) loadData(ctx context.Context, param P, refresh bool, includes []string) error {
	contexts, err := c.beforeLoad.Execute(ctx, param)
	if err != nil {
		return err
	}
	if contexts.IsInterrupted() && !refresh {
		return nil
	}
	if !refresh && c.fresh(param, includes) {
		return nil
	}

	return c.schedule(ctx, param, func(ctx context.Context) error {
		// an earlier task for the same key may have loaded it meanwhile
		if !refresh && c.fresh(param, includes) {
			return nil
		}
		ctx = context.WithValue(ctx, loadingKey{}, true)
		return c.task(ctx, param, "resource.load", includes, func(ctx context.Context) error {
			return c.state.fetch(ctx, param, includes)
		})
	})
}

// PerformUpdate runs update for param the way a load runs: BeforeLoad may
// interrupt it, it is serialized with equivalent loads and updates, and it
// gets the same loading, outdated and error bookkeeping. When exitCheck is
// not nil and returns true, before scheduling or once the update's turn
// comes, the update is skipped. update must not load param itself.
func (c *core[P]) PerformUpdate(ctx context.Context, param P, update func(ctx context.Context) error, exitCheck func() bool) error {
	if exitCheck != nil && exitCheck() {
		return nil
	}
	contexts, err := c.beforeLoad.Execute(ctx, param)
	if err != nil {
		return err
	}
	if contexts.IsInterrupted() {
		return nil
	}

	return c.schedule(ctx, param, func(ctx context.Context) error {
		// an earlier task may have made the update unnecessary
		if exitCheck != nil && exitCheck() {
			return nil
		}
		return c.task(ctx, param, "resource.update", nil, update)
	})
}

func (c *core[P]) schedule(ctx context.Context, param P, task scheduler.Task) error {
	c.state.markLoading(param)
	return c.scheduler.Schedule(ctx, param, task,
		scheduler.Hooks{
			After: func() { c.state.markLoaded(param) },
			Success: func(ctx context.Context) error {
				_, err := c.onDataUpdate.Execute(ctx, param)
				return err
			},
			Error: func(ctx context.Context, err error) error {
				return c.state.markError(ctx, param, err)
			},
		})
}

type loadingKey struct{}

// InLoad reports whether ctx belongs to a load task. OnDataOutdated
// handlers use it to tell the outdated mark that starts every load apart
// from explicit invalidation and updates.
func InLoad(ctx context.Context) bool {
	loading, _ := ctx.Value(loadingKey{}).(bool)
	return loading
}

func (c *core[P]) task(ctx context.Context, param P, name string, includes []string, fn func(ctx context.Context) error) error {
	ctx, span := c.cfg.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("resource.name", c.cfg.name),
		attribute.StringSlice("resource.includes", includes),
	))
	defer span.End()

	if err := c.state.markOutdated(ctx, param); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("%s of %v failed: %s", strings.TrimPrefix(name, "resource."), param, err)
		return err
	}
	c.state.markUpdated(param)
	span.SetStatus(codes.Ok, "done")
	return nil
}
