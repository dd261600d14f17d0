package store

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(ctx)
	defer s.Close()

	found, val, err := s.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	assert.NoError(t, s.Set(ctx, "key", "value", time.Minute))
	found, str, err := Get[string](ctx, s, "key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", str)

	found, hits := s.Hits(ctx, "key")
	assert.True(t, found)
	assert.Equal(t, 1, hits)

	_, _, err = Get[int](ctx, s, "key")
	assert.Error(t, err)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	s := NewMemory(ctx, WithClock(mock), WithExpires(time.Second))
	defer s.Close()

	assert.NoError(t, s.Set(ctx, "short", 1, 0))
	assert.NoError(t, s.Set(ctx, "long", 2, time.Hour))

	mock.Add(2 * time.Second)
	found, _, err := s.Get(ctx, "short")
	assert.NoError(t, err)
	assert.False(t, found)

	found, _, err = s.Get(ctx, "long")
	assert.NoError(t, err)
	assert.True(t, found)
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	s := NewMemory(ctx, WithClock(mock), WithExpiryCheck(time.Minute)).(*memoryStore)
	defer s.Close()

	assert.NoError(t, s.Set(ctx, "key", "value", time.Second))
	mock.Add(time.Minute)
	assert.Eventually(t, func() bool {
		found, _ := s.Hits(ctx, "key")
		return !found
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryExpire(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(ctx)
	defer s.Close()

	assert.NoError(t, s.Set(ctx, "key", "value", time.Minute))
	ok, err := s.Expire(ctx, "key")
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Expire(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCloseTwice(t *testing.T) {
	s := NewMemory(context.Background())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
