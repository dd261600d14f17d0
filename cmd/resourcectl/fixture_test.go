package main

import (
	"context"
	"testing"
	"time"

	"github.com/agentuity/go-resource/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFixture = `
latency: 1ms
unreachable: [conn-down]
connections:
  - id: conn-pg
    name: Postgres
    driver: postgres
    host: db.internal
    nodes:
      - {id: public, name: public, kind: schema}
      - {id: audit, name: audit, kind: schema}
  - id: conn-my
    name: MySQL
    driver: mysql
    host: mysql.internal
    nodes:
      - {id: shop, name: shop, kind: catalog}
`

func TestParseFixture(t *testing.T) {
	f, err := parseFixture([]byte(testFixture))
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, f.latency)
	require.Len(t, f.Connections, 2)
	assert.Equal(t, "conn-pg", f.Connections[0].ID)
	assert.Equal(t, "postgres", f.Connections[0].Driver)
	assert.Len(t, f.Connections[0].Nodes, 2)
	assert.Equal(t, []string{"conn-down"}, f.Unreachable)
}

func TestParseFixtureErrors(t *testing.T) {
	_, err := parseFixture([]byte("latency: soon"))
	assert.ErrorContains(t, err, "invalid fixture latency")

	_, err = parseFixture([]byte("connections: [{name: nameless}]"))
	assert.ErrorContains(t, err, "without id")

	_, err = parseFixture([]byte("connections: [{id: a}, {id: a}]"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = parseFixture([]byte("connections: {"))
	assert.ErrorContains(t, err, "error parsing fixture")
}

func TestParseFixtureLongDuration(t *testing.T) {
	f, err := parseFixture([]byte("latency: 1d2h"))
	require.NoError(t, err)
	assert.Equal(t, 26*time.Hour, f.latency)
}

func TestBackendConnections(t *testing.T) {
	f, err := parseFixture([]byte(testFixture))
	require.NoError(t, err)
	b := newBackend(f)
	ctx := context.Background()

	entries, err := b.LoadConnections(ctx, resource.List("conn-my", "missing"), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "MySQL", entries[0].Value.Name)
	assert.Nil(t, entries[0].Value.Stats)

	entries, err = b.LoadConnections(ctx, resource.AllKey[string](), []string{includeStats})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, &Stats{Nodes: 2}, entries[0].Value.Stats)

	_, err = b.LoadConnections(ctx, resource.List("conn-pg", "conn-down"), nil)
	assert.ErrorIs(t, err, errUnreachable)
	assert.Equal(t, int64(3), b.connectionCalls.Load())
}

func TestBackendHonoursContext(t *testing.T) {
	f, err := parseFixture([]byte("latency: 1h\nconnections: [{id: a}]"))
	require.NoError(t, err)
	b := newBackend(f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.LoadNodes(ctx, resource.One("a"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
