package invalidation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentuity/go-resource/eventing"
	"github.com/agentuity/go-resource/logger"
	"github.com/agentuity/go-resource/resource"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subject = "resource.connections.outdated"

type counter struct {
	mu    sync.Mutex
	calls int
}

func (c *counter) Load(_ context.Context, key resource.Key[string], _ []string) ([]resource.Entry[string, string], error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	var entries []resource.Entry[string, string]
	for _, k := range []string{"a", "b"} {
		if key.Mark() == resource.AllMark || key.Includes(resource.One(k)) {
			entries = append(entries, resource.Entry[string, string]{Key: k, Value: "v-" + k})
		}
	}
	return entries, nil
}

type peer struct {
	resource *resource.MapResource[string, string]
	bridge   *Bridge[string, string]
	client   eventing.Client
}

func newPeer(t *testing.T, mr *miniredis.Miniredis) *peer {
	t.Helper()
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logger.NewTestLogger()
	client := eventing.NewRedisClient(ctx, log, rdb)
	r := resource.NewMapResource[string, string](&counter{}, resource.WithLogger(log))
	b, err := New(ctx, log, client, subject, r)
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Close()
		client.Close()
		rdb.Close()
	})
	return &peer{resource: r, bridge: b, client: client}
}

func loadAll(t *testing.T, p *peer) {
	t.Helper()
	_, err := p.resource.Load(context.Background(), resource.AllKey[string]())
	require.NoError(t, err)
	require.False(t, p.resource.IsOutdated(resource.List("a", "b")))
}

func TestBridgePropagatesMarkOutdated(t *testing.T) {
	mr := miniredis.RunT(t)
	a, b := newPeer(t, mr), newPeer(t, mr)
	loadAll(t, a)
	loadAll(t, b)

	require.NoError(t, a.resource.MarkOutdated(context.Background(), resource.One("a")))

	assert.Eventually(t, func() bool {
		return b.resource.IsOutdated(resource.One("a"))
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, b.resource.IsOutdated(resource.One("b")))
}

func TestBridgeDoesNotPublishLoads(t *testing.T) {
	mr := miniredis.RunT(t)
	a, b := newPeer(t, mr), newPeer(t, mr)
	loadAll(t, b)

	loadAll(t, a)
	_, err := a.resource.Refresh(context.Background(), resource.One("a"))
	require.NoError(t, err)

	assert.Never(t, func() bool {
		return b.resource.IsOutdated(resource.One("a"))
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestBridgeDoesNotEcho(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a, b := newPeer(t, mr), newPeer(t, mr)
	loadAll(t, a)
	loadAll(t, b)

	var seen sync.Map
	count := 0
	var mu sync.Mutex
	sub, err := a.client.Subscribe(ctx, subject, func(ctx context.Context, msg eventing.Message) {
		mu.Lock()
		count++
		mu.Unlock()
		seen.Store(msg.Headers().Get(originHeader), true)
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, a.resource.MarkOutdated(ctx, resource.One("b")))
	assert.Eventually(t, func() bool {
		return b.resource.IsOutdated(resource.One("b"))
	}, 2*time.Second, 5*time.Millisecond)

	// b applied the event without publishing it again
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
	_, fromB := seen.Load(b.bridge.Origin())
	assert.False(t, fromB)
}

func TestBridgeInvalidateAll(t *testing.T) {
	mr := miniredis.RunT(t)
	a, b := newPeer(t, mr), newPeer(t, mr)
	loadAll(t, a)
	loadAll(t, b)

	require.NoError(t, a.bridge.InvalidateAll(context.Background()))
	assert.True(t, a.resource.IsOutdated(resource.AllKey[string]()))
	assert.Eventually(t, func() bool {
		return b.resource.IsOutdated(resource.One("a")) && b.resource.IsOutdated(resource.One("b"))
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, b.resource.IsAliasLoaded(resource.AllKey[string]()))
}

func TestBridgeClose(t *testing.T) {
	mr := miniredis.RunT(t)
	a, b := newPeer(t, mr), newPeer(t, mr)
	loadAll(t, a)
	loadAll(t, b)

	require.NoError(t, b.bridge.Close())
	require.NoError(t, a.resource.MarkOutdated(context.Background(), resource.One("a")))
	assert.Never(t, func() bool {
		return b.resource.IsOutdated(resource.One("a"))
	}, 100*time.Millisecond, 10*time.Millisecond)
}
