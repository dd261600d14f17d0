package resource

import (
	"context"
	"sync"
	"testing"

	"github.com/agentuity/go-resource/executor"
	"github.com/agentuity/go-resource/logger"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	ID   string
	Name string
}

// profileLoader serves one profile at a time, keyed by user id.
type profileLoader struct {
	mu    sync.Mutex
	names map[string]string
	calls int
	err   error
}

func (l *profileLoader) Load(ctx context.Context, id string) (*profile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return &profile{ID: id, Name: l.names[id]}, nil
}

func (l *profileLoader) MetadataKey(id string) string { return id }

func (l *profileLoader) IsLoaded(id string, data *profile) bool {
	return data != nil && data.ID == id
}

func (l *profileLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func newProfiles(l *profileLoader) *Resource[*profile, string, string] {
	return NewResource[*profile, string, string](l, nil, WithLogger(logger.NewTestLogger()), WithName("profile"))
}

func TestResourceNeverLoaded(t *testing.T) {
	r := newProfiles(&profileLoader{})
	assert.Nil(t, r.Data())
	assert.True(t, r.IsOutdated("u1"))
	assert.False(t, r.IsLoaded("u1"))
	assert.Equal(t, "profile", r.Name())
}

func TestResourceLoad(t *testing.T) {
	ctx := testContext(t)
	l := &profileLoader{names: map[string]string{"u1": "Ada", "u2": "Linus"}}
	r := newProfiles(l)

	updates := 0
	r.OnDataUpdate().AddHandler(func(context.Context, string, *executor.Contexts) error {
		updates++
		return nil
	})

	p, err := r.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
	assert.False(t, r.IsOutdated("u1"))
	assert.True(t, r.IsLoaded("u1"))
	assert.Nil(t, r.Exception("u1"))

	_, err = r.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, l.count())
	assert.Equal(t, 1, updates)

	p, err = r.Load(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Linus", p.Name)
	assert.False(t, r.IsLoaded("u1"), "the resource holds a single value")

	p, err = r.Refresh(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Linus", p.Name)
	assert.Equal(t, 3, l.count())
}

func TestResourceLoadFailure(t *testing.T) {
	ctx := testContext(t)
	loadErr := errors.New("no such user")
	l := &profileLoader{err: loadErr}
	r := newProfiles(l)

	p, err := r.Load(ctx, "u1")
	assert.Nil(t, p)
	assert.Same(t, loadErr, err)
	assert.Same(t, loadErr, r.Exception("u1"))
	assert.True(t, r.IsOutdated("u1"))
	assert.False(t, r.IsDataLoading("u1"))

	_, err = r.Refresh(ctx, "u1")
	assert.Same(t, loadErr, err)
	assert.True(t, r.IsOutdated("u1"), "a failed refresh leaves the key outdated")
}

func TestResourceErrorHandlerFailure(t *testing.T) {
	ctx := testContext(t)
	loadErr := errors.New("no such user")
	r := newProfiles(&profileLoader{err: loadErr})

	r.OnDataError().AddHandler(func(context.Context, DataError[string], *executor.Contexts) error {
		return errors.New("handler broke")
	})
	_, err := r.Load(ctx, "u1")
	assert.True(t, errors.Is(err, loadErr))
	assert.Same(t, loadErr, r.Exception("u1"))
}

func TestResourceMarkOutdated(t *testing.T) {
	ctx := testContext(t)
	l := &profileLoader{names: map[string]string{"u1": "Ada"}}
	r := newProfiles(l)

	_, err := r.Load(ctx, "u1")
	require.NoError(t, err)

	var outdated []string
	r.OnDataOutdated().AddHandler(func(_ context.Context, id string, _ *executor.Contexts) error {
		outdated = append(outdated, id)
		return nil
	})
	require.NoError(t, r.MarkOutdated(ctx, "u1"))
	assert.Equal(t, []string{"u1"}, outdated)
	assert.True(t, r.IsOutdated("u1"))
	assert.True(t, r.IsLoaded("u1"), "outdated data stays readable")

	l.names["u1"] = "Ada Lovelace"
	p, err := r.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.Name)

	require.NoError(t, r.MarkOutdated(ctx, "u1"))
	r.MarkUpdated("u1")
	assert.False(t, r.IsOutdated("u1"))
}

func TestResourceAlias(t *testing.T) {
	ctx := testContext(t)
	l := &profileLoader{names: map[string]string{"u1": "Ada"}}
	r := newProfiles(l)
	r.AddAlias("me", func(string) string { return "u1" })

	assert.True(t, r.IsOutdated("me"))
	p, err := r.Load(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.True(t, r.IsAliasLoaded("me"))
	assert.False(t, r.IsOutdated("u1"))

	_, err = r.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, l.count(), "the alias and its target share state")
}

func TestResourceClear(t *testing.T) {
	ctx := testContext(t)
	r := newProfiles(&profileLoader{names: map[string]string{"u1": "Ada"}})
	_, err := r.Load(ctx, "u1")
	require.NoError(t, err)

	var kinds []ChangeKind
	r.Watch(func(c Change[string]) { kinds = append(kinds, c.Kind) })
	r.Clear()

	assert.Nil(t, r.Data())
	assert.True(t, r.IsOutdated("u1"))
	assert.Equal(t, []ChangeKind{ChangeClear}, kinds)
}

func TestResourceConcurrentLoads(t *testing.T) {
	ctx := testContext(t)
	l := &profileLoader{names: map[string]string{"u1": "Ada"}}
	r := newProfiles(l)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.Load(ctx, "u1")
			assert.NoError(t, err)
			assert.Equal(t, "Ada", p.Name)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, l.count())
}
