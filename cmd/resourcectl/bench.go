package main

import (
	"context"
	"time"

	"github.com/agentuity/go-resource/resource"
	"golang.org/x/sync/errgroup"
)

type benchResult struct {
	Rounds          int           `yaml:"rounds"`
	Concurrency     int           `yaml:"concurrency"`
	Loads           int           `yaml:"loads"`
	ConnectionCalls int64         `yaml:"connection_calls"`
	NodeCalls       int64         `yaml:"node_calls"`
	Elapsed         time.Duration `yaml:"elapsed"`
}

// bench issues concurrency loads of every connection and its nodes per
// round. Equivalent loads share one backend call, so the call counts grow
// with rounds, not with concurrency.
func bench(ctx context.Context, a *app, concurrency, rounds int) (*benchResult, error) {
	res := &benchResult{Rounds: rounds, Concurrency: concurrency}
	connections := a.backend.connectionCalls.Load()
	nodes := a.backend.nodeCalls.Load()
	started := time.Now()

	for round := 0; round < rounds; round++ {
		if round > 0 {
			if err := a.connections.MarkAllOutdated(ctx); err != nil {
				return nil, err
			}
		}
		g, gctx := errgroup.WithContext(ctx)
		for range concurrency {
			g.Go(func() error {
				if _, err := a.connections.Load(gctx, resource.AllKey[string]()); err != nil {
					return err
				}
				_, err := a.nodes.Load(gctx, resource.AllKey[string]())
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		res.Loads += 2 * concurrency
	}

	res.Elapsed = time.Since(started).Round(time.Millisecond)
	res.ConnectionCalls = a.backend.connectionCalls.Load() - connections
	res.NodeCalls = a.backend.nodeCalls.Load() - nodes
	a.logger.Info("bench finished: %d loads, %d connection calls, %d node calls in %s",
		res.Loads, res.ConnectionCalls, res.NodeCalls, res.Elapsed)
	return res, nil
}
