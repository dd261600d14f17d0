package loaders

import (
	"context"

	"github.com/agentuity/go-resource/resource"
	"golang.org/x/sync/errgroup"
)

type parallel[K comparable, V any] struct {
	limit int
	next  resource.MapLoader[K, V]
}

// Parallel splits unmarked key lists into one call of next per key, with at
// most limit calls in flight, for backends that have no batch endpoint. The
// first failure cancels the remaining calls and fails the load.
func Parallel[K comparable, V any](limit int, next resource.MapLoader[K, V]) resource.MapLoader[K, V] {
	return &parallel[K, V]{limit: limit, next: next}
}

func (l *parallel[K, V]) Load(ctx context.Context, key resource.Key[K], includes []string) ([]resource.Entry[K, V], error) {
	if !key.IsList() || key.Mark() != "" || key.Len() < 2 {
		return l.next.Load(ctx, key, includes)
	}

	keys := key.Keys()
	results := make([][]resource.Entry[K, V], len(keys))
	g, gctx := errgroup.WithContext(ctx)
	if l.limit > 0 {
		g.SetLimit(l.limit)
	}
	for i, k := range keys {
		g.Go(func() error {
			entries, err := l.next.Load(gctx, resource.One(k), includes)
			results[i] = entries
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries []resource.Entry[K, V]
	for _, r := range results {
		entries = append(entries, r...)
	}
	return entries, nil
}
