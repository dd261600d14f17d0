package main

import (
	"context"
	"time"

	"github.com/agentuity/go-resource/eventing"
	"github.com/agentuity/go-resource/executor"
	"github.com/agentuity/go-resource/invalidation"
	"github.com/agentuity/go-resource/loaders"
	"github.com/agentuity/go-resource/logger"
	"github.com/agentuity/go-resource/resilience"
	"github.com/agentuity/go-resource/resource"
	"github.com/agentuity/go-resource/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const invalidationSubject = "resourcectl.connections.outdated"

type appConfig struct {
	fixture *Fixture
	logger  logger.Logger
	tracer  trace.Tracer
	// redis enables the shared store and cross-process invalidation
	redis    redis.UniversalClient
	ttl      time.Duration
	breaker  resilience.CircuitBreakerConfig
	parallel int
	activity bool
}

// app wires the connections and nodes resources over the fixture backend.
type app struct {
	logger      logger.Logger
	backend     *backend
	connections *resource.MapResource[string, Connection]
	nodes       *resource.MapResource[string, []Node]
	bridge      *invalidation.Bridge[string, Connection]

	closers []func() error
}

func newApp(ctx context.Context, cfg appConfig) (*app, error) {
	a := &app{logger: cfg.logger, backend: newBackend(cfg.fixture)}

	opts := func(name string) []resource.Option {
		opts := []resource.Option{
			resource.WithName(name),
			resource.WithLogger(cfg.logger),
		}
		if cfg.tracer != nil {
			opts = append(opts, resource.WithTracer(cfg.tracer))
		}
		if cfg.activity {
			opts = append(opts, resource.WithActivityLog())
		}
		return opts
	}

	var connections resource.MapLoader[string, Connection] = loaders.Breaker[string, Connection](
		resilience.NewCircuitBreaker(cfg.breaker),
		resource.MapLoaderFunc[string, Connection](a.backend.LoadConnections),
	)
	// node listing has no batch endpoint, lists are fanned out per connection
	var nodes resource.MapLoader[string, []Node] = loaders.Breaker[string, []Node](
		resilience.NewCircuitBreaker(cfg.breaker),
		loaders.Parallel[string, []Node](cfg.parallel, resource.MapLoaderFunc[string, []Node](a.backend.LoadNodes)),
	)

	var sharedConnections *loaders.SharedLoader[string, Connection]
	var sharedNodes *loaders.SharedLoader[string, []Node]
	if cfg.redis != nil {
		shared := store.NewComposite(
			store.NewMemory(ctx, store.WithExpires(cfg.ttl)),
			store.NewRedis(cfg.redis, store.WithExpires(cfg.ttl), store.WithPrefix("resourcectl")),
		)
		a.closers = append(a.closers, shared.Close)
		sharedConnections = loaders.Shared(shared, "connections", cfg.ttl, connections)
		sharedNodes = loaders.Shared(shared, "nodes", cfg.ttl, nodes)
		connections, nodes = sharedConnections, sharedNodes
	}

	a.connections = resource.NewMapResource(connections, opts("connections")...)
	a.nodes = resource.NewMapResource(nodes, opts("nodes")...)
	a.nodes.Sync(a.connections)

	if sharedConnections != nil {
		forget(a.connections, sharedConnections)
		forget(a.nodes, sharedNodes)
	}

	if cfg.redis != nil {
		client := eventing.NewRedisClient(ctx, cfg.logger, cfg.redis)
		bridge, err := invalidation.New(ctx, cfg.logger, client, invalidationSubject, a.connections)
		if err != nil {
			client.Close()
			a.Close()
			return nil, err
		}
		a.bridge = bridge
		// closers run in reverse, the bridge goes before its client
		a.closers = append(a.closers, client.Close, bridge.Close)
	}
	return a, nil
}

// forget drops invalidated entries from the shared store. Peers receive
// the invalidation through the bridge and drop their local tier too.
func forget[V any](r *resource.MapResource[string, V], shared *loaders.SharedLoader[string, V]) {
	r.OnDataOutdated().AddHandler(func(ctx context.Context, key resource.Key[string], _ *executor.Contexts) error {
		if resource.InLoad(ctx) {
			return nil
		}
		return shared.Forget(ctx, key.Keys()...)
	})
}

// invalidate marks key outdated, or everything when key is zero. With a
// bridge the change reaches every peer.
func (a *app) invalidate(ctx context.Context, key resource.Key[string]) error {
	if !key.IsZero() {
		return a.connections.MarkOutdated(ctx, key)
	}
	if a.bridge != nil {
		return a.bridge.InvalidateAll(ctx)
	}
	return a.connections.MarkAllOutdated(ctx)
}

// rename edits a connection on the backend through the connections
// resource. The edit waits for loads of the same connection and a
// rejected edit leaves the cached copy outdated with the error recorded.
func (a *app) rename(ctx context.Context, id, name string) (Connection, error) {
	key := resource.One(id)
	renamed := func() bool {
		c, ok := a.connections.Get(id)
		return ok && c.Name == name
	}
	err := a.connections.PerformUpdate(ctx, key, func(ctx context.Context) error {
		conn, err := a.backend.RenameConnection(ctx, id, name)
		if err != nil {
			return err
		}
		if cached, ok := a.connections.Get(id); ok {
			conn.Stats = cached.Stats
		}
		return a.connections.Set(ctx, key, conn)
	}, renamed)
	if err != nil {
		return Connection{}, err
	}
	conn, _ := a.connections.Get(id)
	return conn, nil
}

func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i](); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.closers = nil
	return err
}
