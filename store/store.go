package store

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is a key/value store with expiry, shared by resource loaders.
type Store interface {
	// Get retrieves a value. Serializing backends return an Encoded value.
	Get(ctx context.Context, key string) (bool, any, error)
	// Set stores a value with a TTL. If expires <= 0 the configured default
	// TTL is used.
	Set(ctx context.Context, key string, val any, expires time.Duration) error
	// Hits returns how many times key was read since it was last set.
	Hits(ctx context.Context, key string) (bool, int)
	// Expire removes a key.
	Expire(ctx context.Context, key string) (bool, error)
	// Close shuts the store down.
	Close() error
}

// Encoded is a msgpack payload returned by serializing backends.
type Encoded []byte

type value struct {
	object  any
	expires time.Time
	hits    int
}

// Get retrieves a typed value. In-memory values are type asserted, Encoded
// values are decoded with msgpack.
func Get[T any](ctx context.Context, s Store, key string) (bool, T, error) {
	var zero T
	found, val, err := s.Get(ctx, key)
	if !found || err != nil {
		return false, zero, err
	}
	if data, ok := val.(Encoded); ok {
		var result T
		if err := msgpack.Unmarshal(data, &result); err != nil {
			return false, zero, errors.Wrapf(err, "store: decoding %q", key)
		}
		return true, result, nil
	}
	if typed, ok := val.(T); ok {
		return true, typed, nil
	}
	return false, zero, errors.Newf("store: cannot convert value of type %T to %T", val, zero)
}

// DefaultExpires is the TTL used when none is given.
const DefaultExpires = 5 * time.Minute

// DefaultQueryTimeout bounds every operation of I/O backed stores.
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	defaultExpires time.Duration
	queryTimeout   time.Duration
	expiryCheck    time.Duration
	prefix         string
	clock          clock.Clock
}

// Option configures a Store implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		defaultExpires: DefaultExpires,
		queryTimeout:   DefaultQueryTimeout,
		expiryCheck:    time.Minute,
		clock:          clock.New(),
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithExpires sets the default TTL. Defaults to DefaultExpires.
func WithExpires(d time.Duration) Option {
	return func(c *config) { c.defaultExpires = d }
}

// WithQueryTimeout sets the per-operation timeout of the Redis backend.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck sets the interval of the in-memory expiry sweep.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithPrefix namespaces the keys of the Redis backend.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithClock replaces the wall clock of the in-memory backend.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

// ExecConfig configures Exec.
type ExecConfig struct {
	// Key is required.
	Key string
	// Expires defaults to the store's default TTL when zero.
	Expires time.Duration
}

// Invoker produces a value. found=false means there is nothing to cache.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a cache-aside helper: a hit is returned as is, a miss calls invoke
// and stores what it found. Store read errors are returned without calling
// invoke; store write errors are ignored.
func Exec[T any](ctx context.Context, cfg ExecConfig, s Store, invoke Invoker[T]) (bool, T, error) {
	var zero T
	found, val, err := Get[T](ctx, s, cfg.Key)
	if err != nil {
		return false, zero, err
	}
	if found {
		return true, val, nil
	}

	result, ok, err := invoke(ctx)
	if err != nil {
		return false, zero, err
	}
	if !ok {
		return false, zero, nil
	}
	_ = s.Set(ctx, cfg.Key, result, cfg.Expires)
	return true, result, nil
}
