package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCacheRepo struct{ memoryCacheRepo }

func (*brokenCacheRepo) Get(context.Context, string, interface{}) error {
	return errors.New("connection reset")
}

func TestRememberLoadsOnceThenHits(t *testing.T) {
	cache, store := newMemoryCache()
	loads := 0
	load := func(context.Context) ([]string, error) {
		loads++
		return []string{"a", "b"}, nil
	}

	first, err := Remember(context.Background(), cache, "k", 0, load)
	require.NoError(t, err)
	second, err := Remember(context.Background(), cache, "k", 0, load)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)
	assert.Contains(t, store.store, "k")
}

func TestRememberWithoutCacheAlwaysLoads(t *testing.T) {
	loads := 0
	for i := 0; i < 2; i++ {
		v, err := Remember(context.Background(), nil, "k", 0, func(context.Context) (int, error) {
			loads++
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, 2, loads)
}

func TestRememberFallsThroughBackendErrors(t *testing.T) {
	cache := NewCacheService(&brokenCacheRepo{}, nil, 0, nil, true)
	v, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestRememberPropagatesLoadError(t *testing.T) {
	cache, store := newMemoryCache()
	_, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (int, error) {
		return 0, errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
	assert.NotContains(t, store.store, "k")
}

func TestDisabledCacheIsNoop(t *testing.T) {
	cache := NewCacheService(nil, nil, 0, nil, true)
	assert.False(t, cache.Enabled())
	hit, err := cache.Get(context.Background(), "k", new(string))
	assert.False(t, hit)
	assert.NoError(t, err)
	n, err := cache.Invalidate(context.Background(), "session:*")
	assert.Zero(t, n)
	assert.NoError(t, err)
}
