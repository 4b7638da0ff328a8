package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry/npmstore/internal/adapters/index"
	"github.com/foundry/npmstore/internal/adapters/objectstore"
	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
)

// memProvider is an in-memory IndexProvider that can be told to fail saves.
type memProvider struct {
	mu      sync.Mutex
	stored  *models.LocalIndex
	saves   int
	failErr error
}

func (m *memProvider) Get(ctx context.Context) (*models.LocalIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		return nil, nil
	}
	return m.stored.Clone(), nil
}

func (m *memProvider) Save(ctx context.Context, idx *models.LocalIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.stored = idx.Clone()
	return nil
}

func (m *memProvider) setFail(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func TestLocalIndexCreatesDefaultOnFirstUse(t *testing.T) {
	ctx := context.Background()
	p := &memProvider{}
	li := services.NewLocalIndex(p, zerolog.Nop())

	list, err := li.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	assert.Equal(t, 1, p.saves, "the default index should be persisted immediately")
	assert.Equal(t, &models.LocalIndex{List: []string{}, Secret: ""}, p.stored)

	_, err = li.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.saves, "later reads come from the cache")
}

func TestLocalIndexAddTwice(t *testing.T) {
	ctx := context.Background()
	li := services.NewLocalIndex(&memProvider{}, zerolog.Nop())

	for _, name := range []string{"a", "b", "a", "@scope/c", "b"} {
		require.NoError(t, li.Add(ctx, name))
	}

	list, err := li.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "@scope/c"}, list)
}

func TestLocalIndexAddIdempotentDoesNotSave(t *testing.T) {
	ctx := context.Background()
	p := &memProvider{}
	li := services.NewLocalIndex(p, zerolog.Nop())

	require.NoError(t, li.Add(ctx, "a"))
	saves := p.saves
	require.NoError(t, li.Add(ctx, "a"))
	assert.Equal(t, saves, p.saves)
}

func TestLocalIndexRemove(t *testing.T) {
	ctx := context.Background()
	p := &memProvider{}
	li := services.NewLocalIndex(p, zerolog.Nop())

	require.NoError(t, li.Add(ctx, "a"))
	require.NoError(t, li.Add(ctx, "b"))
	require.NoError(t, li.Add(ctx, "c"))

	require.NoError(t, li.Remove(ctx, "unknown"), "removing an unlisted name succeeds")
	require.NoError(t, li.Remove(ctx, "b"))

	list, err := li.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, list)
	assert.Equal(t, []string{"a", "c"}, p.stored.List)
}

func TestLocalIndexListIsSnapshot(t *testing.T) {
	ctx := context.Background()
	li := services.NewLocalIndex(&memProvider{}, zerolog.Nop())
	require.NoError(t, li.Add(ctx, "a"))

	list, err := li.List(ctx)
	require.NoError(t, err)
	list[0] = "mutated"

	again, err := li.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again)
}

func TestLocalIndexSecretScenario(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	li := services.NewLocalIndex(index.NewBlobProvider(store, "", zerolog.Nop()), zerolog.Nop())

	secret, err := li.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", secret)

	require.NoError(t, li.SetSecret(ctx, "abc"))
	secret, err = li.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", secret)

	fresh := services.NewLocalIndex(index.NewBlobProvider(store, "", zerolog.Nop()), zerolog.Nop())
	secret, err = fresh.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", secret)
}

func TestLocalIndexFailedSaveKeepsCache(t *testing.T) {
	ctx := context.Background()
	p := &memProvider{}
	li := services.NewLocalIndex(p, zerolog.Nop())
	require.NoError(t, li.Add(ctx, "a"))

	boom := errors.New("store unavailable")
	p.setFail(boom)

	err := li.Add(ctx, "b")
	assert.ErrorIs(t, err, boom)
	err = li.SetSecret(ctx, "s")
	assert.ErrorIs(t, err, boom)

	list, err := li.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, list, "cache must match what was persisted")
	secret, err := li.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", secret)

	p.setFail(nil)
	require.NoError(t, li.Add(ctx, "b"))
	assert.Equal(t, []string{"a", "b"}, p.stored.List)
}

func TestLocalIndexInitFailurePropagates(t *testing.T) {
	boom := errors.New("permission denied")
	p := &memProvider{failErr: boom}
	li := services.NewLocalIndex(p, zerolog.Nop())

	_, err := li.List(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestLocalIndexConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	p := &memProvider{}
	li := services.NewLocalIndex(p, zerolog.Nop())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, li.Add(ctx, fmt.Sprintf("pkg-%d", i%25)))
		}(i)
	}
	wg.Wait()

	list, err := li.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 25)
	assert.ElementsMatch(t, list, p.stored.List, "every mutation should reach the provider")
}
