package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

type redisStore struct {
	client redis.UniversalClient
	cfg    config
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a Store backed by Redis hashes: field "v" holds the
// msgpack value and field "h" the hit count, expiry is the native key TTL.
// The caller owns the client; Close leaves it open.
func NewRedis(client redis.UniversalClient, opts ...Option) Store {
	return &redisStore{client: client, cfg: applyOptions(opts)}
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.queryTimeout)
}

func (s *redisStore) prefixKey(key string) string {
	if s.cfg.prefix == "" {
		return key
	}
	return s.cfg.prefix + ":" + key
}

func (s *redisStore) Get(ctx context.Context, key string) (bool, any, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	k := s.prefixKey(key)
	data, err := s.client.HGet(qctx, k, "v").Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, errors.Wrapf(err, "store: get %q", key)
	}
	// hit counting is best effort
	s.client.HIncrBy(qctx, k, "h", 1)
	return true, Encoded(data), nil
}

func (s *redisStore) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = s.cfg.defaultExpires
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "store: encoding %q", key)
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	k := s.prefixKey(key)
	pipe := s.client.TxPipeline()
	pipe.HSet(qctx, k, "v", data, "h", 0)
	pipe.Expire(qctx, k, expires)
	if _, err := pipe.Exec(qctx); err != nil {
		return errors.Wrapf(err, "store: set %q", key)
	}
	return nil
}

func (s *redisStore) Hits(ctx context.Context, key string) (bool, int) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	hits, err := s.client.HGet(qctx, s.prefixKey(key), "h").Int()
	if err != nil {
		return false, 0
	}
	return true, hits
}

func (s *redisStore) Expire(ctx context.Context, key string) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Del(qctx, s.prefixKey(key)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "store: expire %q", key)
	}
	return n > 0, nil
}

func (s *redisStore) Close() error {
	return nil
}
