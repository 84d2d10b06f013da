package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ymmfilter/compat-service/internal/cache"
)

func TestMemoryStore_TTLAndPurge(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := cache.NewMemoryStore(cache.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, m.Set(ctx, "forever", []byte("3"), cache.TTLForever))

	now = now.Add(2 * time.Minute)

	_, ok, err := m.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries are hidden on read")

	v, ok, _ := m.Get(ctx, "long")
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	assert.Equal(t, 3, m.Len(), "hidden entries stay until purged")
	assert.Equal(t, 1, m.Purge())
	assert.Equal(t, 2, m.Len())

	now = now.Add(24 * 365 * time.Hour)
	assert.Equal(t, 1, m.Purge())
	_, ok, _ = m.Get(ctx, "forever")
	assert.True(t, ok, "a zero TTL never expires")
}

func TestMemoryStore_ValueIsCopied(t *testing.T) {
	m := cache.NewMemoryStore()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), v)
}

func TestMemoryStore_DeletePrefix(t *testing.T) {
	m := cache.NewMemoryStore()
	ctx := context.Background()
	for _, k := range []string{"ymm:s1:search:a", "ymm:s1:search:b", "ymm:s1:makes:", "ymm:s2:search:a"} {
		require.NoError(t, m.Set(ctx, k, []byte("v"), 0))
	}

	require.NoError(t, m.DeletePrefix(ctx, "ymm:s1:search:"))
	assert.Equal(t, 2, m.Len())

	require.NoError(t, m.Delete(ctx, "ymm:s1:makes:", "missing"))
	assert.Equal(t, 1, m.Len())
}
