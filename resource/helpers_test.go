package resource

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

// fixture is an in-memory backend for map resources.
type fixture struct {
	mu       sync.Mutex
	data     map[string]string
	order    []string
	calls    []string
	includes [][]string
	err      error
	gate     chan struct{}
	started  chan string
	log      *[]string
	name     string
}

func newFixture(pairs ...string) *fixture {
	f := &fixture{data: make(map[string]string)}
	for i := 0; i+1 < len(pairs); i += 2 {
		f.put(pairs[i], pairs[i+1])
	}
	return f
}

func (f *fixture) put(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		f.order = append(f.order, key)
	}
	f.data[key] = value
}

func (f *fixture) remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	if i := slices.Index(f.order, key); i >= 0 {
		f.order = slices.Delete(f.order, i, i+1)
	}
}

func (f *fixture) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fixture) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fixture) Load(ctx context.Context, key Key[string], includes []string) ([]Entry[string, string], error) {
	f.mu.Lock()
	f.calls = append(f.calls, key.String())
	f.includes = append(f.includes, slices.Clone(includes))
	if f.log != nil {
		*f.log = append(*f.log, f.name)
	}
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- key.String()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var entries []Entry[string, string]
	if key.Mark() == AllMark {
		for _, k := range f.order {
			entries = append(entries, Entry[string, string]{Key: k, Value: f.data[k]})
		}
		return entries, nil
	}
	for _, k := range key.Keys() {
		if v, ok := f.data[k]; ok {
			entries = append(entries, Entry[string, string]{Key: k, Value: v})
		}
	}
	return entries, nil
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "timed out waiting for loader")
		return ""
	}
}
