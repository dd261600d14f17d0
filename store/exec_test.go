package store

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestExecMiss(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(ctx)
	defer s.Close()

	invoked := 0
	invoke := func(ctx context.Context) (string, bool, error) {
		invoked++
		return "fresh", true, nil
	}
	found, val, err := Exec(ctx, ExecConfig{Key: "key", Expires: time.Minute}, s, invoke)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fresh", val)

	found, val, err = Exec(ctx, ExecConfig{Key: "key"}, s, invoke)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fresh", val)
	assert.Equal(t, 1, invoked)
}

func TestExecNotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(ctx)
	defer s.Close()

	found, val, err := Exec(ctx, ExecConfig{Key: "key"}, s, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, val)

	found, _, _ = s.Get(ctx, "key")
	assert.False(t, found)
}

func TestExecInvokeError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(ctx)
	defer s.Close()

	boom := errors.New("boom")
	_, _, err := Exec(ctx, ExecConfig{Key: "key"}, s, func(ctx context.Context) (int, bool, error) {
		return 0, false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestExecStoreReadError(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedis(client, WithQueryTimeout(time.Second))
	mr.Close()

	invoked := false
	_, _, err := Exec(ctx, ExecConfig{Key: "key"}, s, func(ctx context.Context) (int, bool, error) {
		invoked = true
		return 1, true, nil
	})
	assert.Error(t, err)
	assert.False(t, invoked)
}
