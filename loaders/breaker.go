package loaders

import (
	"context"

	"github.com/agentuity/go-resource/resource"
	"github.com/agentuity/go-resource/resilience"
)

type breaker[K comparable, V any] struct {
	cb   *resilience.CircuitBreaker
	next resource.MapLoader[K, V]
}

// Breaker calls next through cb. While the circuit is open loads fail with
// resilience.ErrCircuitBreakerOpen, which the resource records as the
// exception of the requested keys until the next explicit load.
func Breaker[K comparable, V any](cb *resilience.CircuitBreaker, next resource.MapLoader[K, V]) resource.MapLoader[K, V] {
	return &breaker[K, V]{cb: cb, next: next}
}

func (l *breaker[K, V]) Load(ctx context.Context, key resource.Key[K], includes []string) ([]resource.Entry[K, V], error) {
	var entries []resource.Entry[K, V]
	err := l.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		entries, err = l.next.Load(ctx, key, includes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
