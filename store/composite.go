package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

type compositeStore struct {
	stores []Store
}

var _ Store = (*compositeStore)(nil)

// NewComposite chains stores, typically an in-memory L1 in front of Redis.
// Get returns the first hit, everything else applies to all stores.
// It panics without stores.
func NewComposite(stores ...Store) Store {
	if len(stores) == 0 {
		panic("store: NewComposite requires at least one store")
	}
	return &compositeStore{stores: stores}
}

func (c *compositeStore) Get(ctx context.Context, key string) (bool, any, error) {
	for _, s := range c.stores {
		found, val, err := s.Get(ctx, key)
		if err != nil {
			return false, nil, err
		}
		if found {
			return true, val, nil
		}
	}
	return false, nil, nil
}

func (c *compositeStore) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	var err error
	for _, s := range c.stores {
		err = errors.CombineErrors(err, s.Set(ctx, key, val, expires))
	}
	return err
}

func (c *compositeStore) Hits(ctx context.Context, key string) (bool, int) {
	for _, s := range c.stores {
		if found, hits := s.Hits(ctx, key); found {
			return true, hits
		}
	}
	return false, 0
}

func (c *compositeStore) Expire(ctx context.Context, key string) (bool, error) {
	anyFound := false
	for _, s := range c.stores {
		found, err := s.Expire(ctx, key)
		if err != nil {
			return anyFound, err
		}
		anyFound = anyFound || found
	}
	return anyFound, nil
}

func (c *compositeStore) Close() error {
	var err error
	for _, s := range c.stores {
		err = errors.CombineErrors(err, s.Close())
	}
	return err
}
