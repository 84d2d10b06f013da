package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ymmfilter/compat-service/internal/catalog"
)

func TestIntervalGate_SpacesCalls(t *testing.T) {
	g := catalog.NewIntervalGate(40 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	// first call passes immediately, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestIntervalGate_HonoursCancellation(t *testing.T) {
	g := catalog.NewIntervalGate(time.Hour)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, g.Wait(ctx))
}

func TestIntervalGate_ZeroIntervalNeverBlocks(t *testing.T) {
	g := catalog.NewIntervalGate(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
