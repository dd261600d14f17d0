package store

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type memoryStore struct {
	ctx    context.Context
	cancel context.CancelFunc
	values map[string]*value
	mu     sync.Mutex
	wg     sync.WaitGroup
	once   sync.Once
	cfg    config
}

var _ Store = (*memoryStore)(nil)

// NewMemory returns a process local Store. Values are kept as is, without
// copying. Expired values are dropped on read and by a background sweep
// which stops when parent is cancelled or Close is called.
func NewMemory(parent context.Context, opts ...Option) Store {
	ctx, cancel := context.WithCancel(parent)
	s := &memoryStore{
		ctx:    ctx,
		cancel: cancel,
		values: make(map[string]*value),
		cfg:    applyOptions(opts),
	}
	ticker := s.cfg.clock.Ticker(s.cfg.expiryCheck)
	s.wg.Add(1)
	go s.run(ticker)
	return s
}

func (s *memoryStore) Get(_ context.Context, key string) (bool, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.values[key]
	if !ok {
		return false, nil, nil
	}
	if !val.expires.After(s.cfg.clock.Now()) {
		delete(s.values, key)
		return false, nil, nil
	}
	val.hits++
	return true, val.object, nil
}

func (s *memoryStore) Set(_ context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = s.cfg.defaultExpires
	}
	s.mu.Lock()
	s.values[key] = &value{object: val, expires: s.cfg.clock.Now().Add(expires)}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Hits(_ context.Context, key string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return true, v.hits
	}
	return false, 0
}

func (s *memoryStore) Expire(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	delete(s.values, key)
	return ok, nil
}

func (s *memoryStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *memoryStore) sweep() {
	now := s.cfg.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, val := range s.values {
		if !val.expires.After(now) {
			delete(s.values, key)
		}
	}
}

func (s *memoryStore) run(ticker *clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}
