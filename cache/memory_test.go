package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/logger"
	"github.com/saiset-co/sai-query-service/types"
)

func newTestMemoryCache(t *testing.T, maxEntries int) *MemoryCache {
	t.Helper()

	config := &types.CacheConfig{}
	if maxEntries > 0 {
		config.Config = map[string]interface{}{"max_entries": maxEntries}
	}

	manager, err := NewMemoryCache(context.Background(), logger.NewZapWrapper(zap.NewNop()), config)
	require.NoError(t, err)

	memCache, ok := manager.(*MemoryCache)
	require.True(t, ok)
	return memCache
}

func TestMemoryCacheSetGet(t *testing.T) {
	memCache := newTestMemoryCache(t, 0)

	require.NoError(t, memCache.Set("alpha", "value-a", time.Minute))

	value, ok := memCache.Get("alpha")
	assert.True(t, ok)
	assert.Equal(t, "value-a", value)

	_, ok = memCache.Get("missing")
	assert.False(t, ok)
}

func TestMemoryCacheRejectsEmptyKey(t *testing.T) {
	memCache := newTestMemoryCache(t, 0)

	err := memCache.Set("", "value", time.Minute)
	assert.ErrorIs(t, err, types.ErrCacheKeyEmpty)
}

func TestMemoryCacheLazyExpiry(t *testing.T) {
	memCache := newTestMemoryCache(t, 0)

	require.NoError(t, memCache.Set("short", "gone-soon", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, ok := memCache.Get("short")
	assert.False(t, ok)
	// The stale entry is deleted as a side effect of the miss.
	assert.Equal(t, 0, memCache.Size())
}

func TestMemoryCacheZeroTTLUsesDefault(t *testing.T) {
	memCache := newTestMemoryCache(t, 0)

	require.NoError(t, memCache.Set("key", "value", 0))

	value, ok := memCache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", value)
}

func TestMemoryCacheEvictsOldestEntryWhenFull(t *testing.T) {
	memCache := newTestMemoryCache(t, 3)

	for _, key := range []string{"first", "second", "third"} {
		require.NoError(t, memCache.Set(key, key, time.Minute))
		time.Sleep(2 * time.Millisecond)
	}

	// Reads do not promote entries: first stays the eviction candidate.
	_, ok := memCache.Get("first")
	require.True(t, ok)

	require.NoError(t, memCache.Set("fourth", "fourth", time.Minute))

	_, ok = memCache.Get("first")
	assert.False(t, ok)
	for _, key := range []string{"second", "third", "fourth"} {
		_, ok := memCache.Get(key)
		assert.True(t, ok, key)
	}
	assert.Equal(t, 3, memCache.Size())
}

func TestMemoryCacheOverwriteRefreshesInsertionTime(t *testing.T) {
	memCache := newTestMemoryCache(t, 3)

	for _, key := range []string{"first", "second", "third"} {
		require.NoError(t, memCache.Set(key, key, time.Minute))
		time.Sleep(2 * time.Millisecond)
	}

	// Rewriting first makes second the oldest entry.
	require.NoError(t, memCache.Set("first", "updated", time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, memCache.Set("fourth", "fourth", time.Minute))

	_, ok := memCache.Get("second")
	assert.False(t, ok)
	value, ok := memCache.Get("first")
	assert.True(t, ok)
	assert.Equal(t, "updated", value)
}

func TestMemoryCacheSweep(t *testing.T) {
	memCache := newTestMemoryCache(t, 0)

	require.NoError(t, memCache.Set("short-1", 1, 10*time.Millisecond))
	require.NoError(t, memCache.Set("short-2", 2, 10*time.Millisecond))
	require.NoError(t, memCache.Set("long", 3, time.Minute))

	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 2, memCache.Sweep())
	assert.Equal(t, 1, memCache.Size())
	assert.Equal(t, 0, memCache.Sweep())
}

func TestMemoryCacheClearAndDelete(t *testing.T) {
	memCache := newTestMemoryCache(t, 0)

	require.NoError(t, memCache.Set("a", 1, time.Minute))
	require.NoError(t, memCache.Set("b", 2, time.Minute))

	require.NoError(t, memCache.Delete("a"))
	assert.Equal(t, 1, memCache.Size())

	require.NoError(t, memCache.Clear())
	assert.Equal(t, 0, memCache.Size())
}

func TestMemoryCacheStats(t *testing.T) {
	memCache := newTestMemoryCache(t, 2)

	require.NoError(t, memCache.Set("a", 1, time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, memCache.Set("b", 2, time.Minute))
	time.Sleep(2 * time.Millisecond)

	memCache.Get("a")
	memCache.Get("a")
	memCache.Get("missing")

	require.NoError(t, memCache.Set("c", 3, time.Minute))

	stats := memCache.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestMemoryCacheLifecycle(t *testing.T) {
	memCache := newTestMemoryCache(t, 0)

	assert.False(t, memCache.IsRunning())
	require.NoError(t, memCache.Start())
	assert.True(t, memCache.IsRunning())
	assert.ErrorIs(t, memCache.Start(), types.ErrComponentRunning)

	require.NoError(t, memCache.Set("key", "value", time.Minute))

	require.NoError(t, memCache.Stop())
	assert.False(t, memCache.IsRunning())
	// Entries are dropped on shutdown.
	assert.Equal(t, 0, memCache.Size())
}
