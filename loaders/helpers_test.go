package loaders

import (
	"context"
	"sync"

	"github.com/agentuity/go-resource/resource"
	"github.com/cockroachdb/errors"
)

var errBackend = errors.New("backend unavailable")

type call struct {
	key      resource.Key[string]
	includes []string
}

// backend resolves keys against a fixed table and records every call.
type backend struct {
	mu     sync.Mutex
	values map[string]int
	calls  []call
	fail   error
	// inflight and peak track concurrent calls
	inflight int
	peak     int
	gate     chan struct{}
}

func newBackend(values map[string]int) *backend {
	return &backend{values: values}
}

func (b *backend) Load(ctx context.Context, key resource.Key[string], includes []string) ([]resource.Entry[string, int], error) {
	b.mu.Lock()
	b.calls = append(b.calls, call{key: key, includes: includes})
	b.inflight++
	if b.inflight > b.peak {
		b.peak = b.inflight
	}
	fail, gate := b.fail, b.gate
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inflight--
		b.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	keys := key.Keys()
	if key.Mark() == resource.AllMark {
		keys = []string{"a", "b", "c"}
	}
	var entries []resource.Entry[string, int]
	for _, k := range keys {
		if v, ok := b.values[k]; ok {
			entries = append(entries, resource.Entry[string, int]{Key: k, Value: v})
		}
	}
	return entries, nil
}

func (b *backend) Calls() []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]call(nil), b.calls...)
}

func (b *backend) Peak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

func (b *backend) setFail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}
