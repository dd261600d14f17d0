package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

type connection struct {
	ID   string `msgpack:"id"`
	Host string `msgpack:"host"`
	Port int    `msgpack:"port"`
}

func TestRedisSetGet(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedis(client, WithPrefix("test"))
	defer s.Close()

	found, _, err := s.Get(ctx, "conn")
	assert.NoError(t, err)
	assert.False(t, found)

	want := connection{ID: "c1", Host: "db.local", Port: 5432}
	require.NoError(t, s.Set(ctx, "conn", want, time.Minute))
	assert.True(t, mr.Exists("test:conn"))

	found, raw, err := s.Get(ctx, "conn")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.IsType(t, Encoded(nil), raw)

	found, got, err := Get[connection](ctx, s, "conn")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	found, hits := s.Hits(ctx, "conn")
	assert.True(t, found)
	assert.Equal(t, 2, hits)
}

func TestRedisBytesRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	s := NewRedis(client)

	require.NoError(t, s.Set(ctx, "blob", []byte("raw"), time.Minute))
	found, got, err := Get[[]byte](ctx, s, "blob")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("raw"), got)
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedis(client, WithExpires(time.Second))

	require.NoError(t, s.Set(ctx, "key", "value", 0))
	assert.Equal(t, time.Second, mr.TTL("key"))
	mr.FastForward(2 * time.Second)

	found, _, err := s.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestRedisExpire(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	s := NewRedis(client)

	require.NoError(t, s.Set(ctx, "key", "value", time.Minute))
	ok, err := s.Expire(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Expire(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedis(client, WithQueryTimeout(time.Second))
	mr.Close()

	_, _, err := s.Get(ctx, "key")
	assert.Error(t, err)
	assert.Error(t, s.Set(ctx, "key", "value", time.Minute))
}
