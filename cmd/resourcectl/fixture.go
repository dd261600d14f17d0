package main

import (
	"context"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-resource/resource"
	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

var (
	errUnreachable = errors.New("connection unreachable")
	errNotFound    = errors.New("connection not found")
)

// Connection is a data source connection served by the fixture.
type Connection struct {
	ID     string `yaml:"id" msgpack:"id"`
	Name   string `yaml:"name" msgpack:"name"`
	Driver string `yaml:"driver" msgpack:"driver"`
	Host   string `yaml:"host" msgpack:"host"`
	// Stats is filled only when the includeStats include is requested.
	Stats *Stats `yaml:"stats,omitempty" msgpack:"stats,omitempty"`
}

type Stats struct {
	Nodes int `yaml:"nodes" msgpack:"nodes"`
}

// Node is a navigator node below a connection.
type Node struct {
	ID   string `yaml:"id" msgpack:"id"`
	Name string `yaml:"name" msgpack:"name"`
	Kind string `yaml:"kind" msgpack:"kind"`
}

const includeStats = "includeStats"

type fixtureConnection struct {
	Connection `yaml:",inline"`
	Nodes      []Node `yaml:"nodes"`
}

// Fixture is the YAML document the backend serves from.
type Fixture struct {
	// Latency is added to every backend call, e.g. "150ms" or "1s".
	Latency     string              `yaml:"latency"`
	Unreachable []string            `yaml:"unreachable"`
	Connections []fixtureConnection `yaml:"connections"`

	latency time.Duration
}

func loadFixture(filename string) (*Fixture, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "error reading fixture")
	}
	return parseFixture(buf)
}

func parseFixture(buf []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, errors.Wrap(err, "error parsing fixture")
	}
	if f.Latency != "" {
		d, err := str2duration.ParseDuration(f.Latency)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid fixture latency %q", f.Latency)
		}
		f.latency = d
	}
	seen := make(map[string]bool)
	for _, c := range f.Connections {
		if c.ID == "" {
			return nil, errors.New("fixture connection without id")
		}
		if seen[c.ID] {
			return nil, errors.Newf("duplicate fixture connection %q", c.ID)
		}
		seen[c.ID] = true
	}
	return &f, nil
}

// backend plays the remote server: it answers from the fixture after the
// configured latency and counts every call.
type backend struct {
	mu              sync.RWMutex
	fixture         *Fixture
	connectionCalls atomic.Int64
	nodeCalls       atomic.Int64
}

func newBackend(f *Fixture) *backend {
	return &backend{fixture: f}
}

func (b *backend) wait(ctx context.Context) error {
	if b.fixture.latency <= 0 {
		return nil
	}
	t := time.NewTimer(b.fixture.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve returns the fixture connections addressed by key, in key order.
// Keys unknown to the fixture are skipped.
func (b *backend) resolve(key resource.Key[string]) ([]fixtureConnection, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if key.Mark() == resource.AllMark {
		return slices.Clone(b.fixture.Connections), nil
	}
	var found []fixtureConnection
	for _, id := range key.Keys() {
		if slices.Contains(b.fixture.Unreachable, id) {
			return nil, errors.Wrapf(errUnreachable, "%s", id)
		}
		for _, c := range b.fixture.Connections {
			if c.ID == id {
				found = append(found, c)
				break
			}
		}
	}
	return found, nil
}

func (b *backend) LoadConnections(ctx context.Context, key resource.Key[string], includes []string) ([]resource.Entry[string, Connection], error) {
	b.connectionCalls.Add(1)
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	found, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	withStats := slices.Contains(includes, includeStats)
	entries := make([]resource.Entry[string, Connection], 0, len(found))
	for _, c := range found {
		conn := c.Connection
		if withStats {
			conn.Stats = &Stats{Nodes: len(c.Nodes)}
		}
		entries = append(entries, resource.Entry[string, Connection]{Key: c.ID, Value: conn})
	}
	return entries, nil
}

func (b *backend) LoadNodes(ctx context.Context, key resource.Key[string], _ []string) ([]resource.Entry[string, []Node], error) {
	b.nodeCalls.Add(1)
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	found, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	entries := make([]resource.Entry[string, []Node], 0, len(found))
	for _, c := range found {
		entries = append(entries, resource.Entry[string, []Node]{Key: c.ID, Value: slices.Clone(c.Nodes)})
	}
	return entries, nil
}

// RenameConnection changes the name of a fixture connection and returns
// the edited connection without statistics.
func (b *backend) RenameConnection(ctx context.Context, id, name string) (Connection, error) {
	if err := b.wait(ctx); err != nil {
		return Connection{}, err
	}
	if slices.Contains(b.fixture.Unreachable, id) {
		return Connection{}, errors.Wrapf(errUnreachable, "%s", id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.fixture.Connections, func(c fixtureConnection) bool { return c.ID == id })
	if i < 0 {
		return Connection{}, errors.Wrapf(errNotFound, "%s", id)
	}
	b.fixture.Connections[i].Name = name
	return b.fixture.Connections[i].Connection, nil
}
