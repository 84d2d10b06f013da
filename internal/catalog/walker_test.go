package catalog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ymmfilter/compat-service/internal/catalog"
	"ymmfilter/compat-service/internal/model"
)

func newTestWalker(up catalog.Upstream, logs *bytes.Buffer, opts ...catalog.WalkerOption) *catalog.Walker {
	logger := slog.New(slog.NewTextHandler(logs, nil))
	base := []catalog.WalkerOption{
		catalog.WithLogger(logger),
		catalog.WithGate(catalog.NoGate),
	}
	return catalog.NewWalker(up, append(base, opts...)...)
}

// ── WalkAll ────────────────────────────────────────────────────────────────

func TestWalkAll_CompleteCatalog(t *testing.T) {
	up := &fakeUpstream{totalPages: 3, perPage: 2}
	rec := &recordedCalls{}
	w := newTestWalker(up, &bytes.Buffer{}, catalog.WithRecorder(rec))

	res, err := w.WalkAll(context.Background(), testCred)
	require.NoError(t, err)

	assert.Equal(t, catalog.StateDone, res.State)
	assert.True(t, res.Complete())
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 3, res.TotalPages)
	assert.Len(t, res.Records, 6)
	assert.Equal(t, 3, up.pageCalls)
	assert.Zero(t, up.fieldCalls, "inline custom fields need no enrichment call")
	assert.Equal(t, []string{"DONE"}, rec.walks)
}

func TestWalkAll_StopsAtPageCeiling(t *testing.T) {
	up := &fakeUpstream{totalPages: 1000, perPage: 1}
	var logs bytes.Buffer
	w := newTestWalker(up, &logs)

	res, err := w.WalkAll(context.Background(), testCred)
	require.NoError(t, err)

	assert.Equal(t, catalog.StateTruncated, res.State)
	assert.False(t, res.Complete())
	assert.Equal(t, 20, res.Pages)
	assert.Equal(t, 20, up.pageCalls)
	assert.Len(t, res.Records, 20)
	assert.Contains(t, logs.String(), "catalog walk truncated at page ceiling")
}

func TestWalkAll_CustomCeiling(t *testing.T) {
	up := &fakeUpstream{totalPages: 10, perPage: 1}
	w := newTestWalker(up, &bytes.Buffer{}, catalog.WithMaxPages(4))

	res, err := w.WalkAll(context.Background(), testCred)
	require.NoError(t, err)
	assert.Equal(t, catalog.StateTruncated, res.State)
	assert.Equal(t, 4, res.Pages)
}

func TestWalkAll_ExactlyAtCeilingIsComplete(t *testing.T) {
	up := &fakeUpstream{totalPages: 20, perPage: 1}
	w := newTestWalker(up, &bytes.Buffer{})

	res, err := w.WalkAll(context.Background(), testCred)
	require.NoError(t, err)
	assert.Equal(t, catalog.StateDone, res.State)
	assert.Equal(t, 20, res.Pages)
}

func TestWalkAll_PartialFailureKeepsEarlierPages(t *testing.T) {
	up := &fakeUpstream{totalPages: 5, perPage: 2, failPage: 3}
	var logs bytes.Buffer
	w := newTestWalker(up, &logs)

	res, err := w.WalkAll(context.Background(), testCred)
	require.NoError(t, err, "a walk with at least one page is a result, not an error")

	assert.Equal(t, catalog.StateFailed, res.State)
	assert.Equal(t, 2, res.Pages)
	assert.Len(t, res.Records, 4)
	var ue *catalog.UpstreamError
	require.ErrorAs(t, res.Err, &ue)
	assert.Equal(t, 500, ue.Status)
	assert.Contains(t, logs.String(), "returning partial results")
}

func TestWalkAll_FirstPageFailureIsNoPages(t *testing.T) {
	up := &fakeUpstream{totalPages: 5, perPage: 2, failPage: 1}
	w := newTestWalker(up, &bytes.Buffer{})

	res, err := w.WalkAll(context.Background(), testCred)
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrNoPages)

	var ue *catalog.UpstreamError
	assert.ErrorAs(t, err, &ue)
	require.NotNil(t, res)
	assert.Equal(t, catalog.StateFailed, res.State)
	assert.Empty(t, res.Records)
}

func TestWalkAll_EmptyCatalog(t *testing.T) {
	up := &fakeUpstream{totalPages: 0, perPage: 5}
	w := newTestWalker(up, &bytes.Buffer{})

	res, err := w.WalkAll(context.Background(), testCred)
	require.NoError(t, err)
	assert.Equal(t, catalog.StateDone, res.State)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, up.pageCalls)
}

func TestWalkAll_EnrichmentFailureSkipsItem(t *testing.T) {
	up := &fakeUpstream{totalPages: 1, perPage: 3, bareFields: true, fieldsFail: map[string]bool{"2": true}}
	gate := &countingGate{}
	var logs bytes.Buffer
	w := newTestWalker(up, &logs, catalog.WithGate(func() catalog.Gate { return gate }))

	res, err := w.WalkAll(context.Background(), testCred)
	require.NoError(t, err)

	assert.Equal(t, catalog.StateDone, res.State)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "1", res.Records[0].ItemID)
	assert.Equal(t, "3", res.Records[1].ItemID)
	assert.Equal(t, 3, up.fieldCalls)
	assert.Equal(t, 3, gate.waits, "every enrichment call waits on the gate")
	assert.Contains(t, logs.String(), "custom fields fetch failed")
}

func TestWalkAll_CancelledBeforeStart(t *testing.T) {
	up := &fakeUpstream{totalPages: 3, perPage: 1}
	w := newTestWalker(up, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.WalkAll(ctx, testCred)
	assert.ErrorIs(t, err, catalog.ErrNoPages)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, up.pageCalls)
}

func TestWalkAll_CancelledDuringEnrichment(t *testing.T) {
	up := &fakeUpstream{totalPages: 3, perPage: 2, bareFields: true}
	ctx, cancel := context.WithCancel(context.Background())
	gate := &cancellingGate{cancel: cancel, after: 3}
	w := newTestWalker(up, &bytes.Buffer{}, catalog.WithGate(func() catalog.Gate { return gate }))

	res, err := w.WalkAll(ctx, testCred)
	require.NoError(t, err)
	assert.Equal(t, catalog.StateFailed, res.State)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Len(t, res.Records, 2, "records of the first page survive")
}

func TestWalkAll_IncompleteCredential(t *testing.T) {
	w := newTestWalker(&fakeUpstream{}, &bytes.Buffer{})
	_, err := w.WalkAll(context.Background(), model.StoreCredential{StoreID: "abc123"})
	assert.ErrorIs(t, err, catalog.ErrIncompleteCredential)
}

// cancellingGate cancels the walk on its after-th wait.
type cancellingGate struct {
	cancel context.CancelFunc
	after  int
	waits  int
}

func (g *cancellingGate) Wait(ctx context.Context) error {
	g.waits++
	if g.waits == g.after {
		g.cancel()
	}
	return ctx.Err()
}

// ── WalkPage ───────────────────────────────────────────────────────────────

func TestWalkPage_ReturnsSinglePage(t *testing.T) {
	up := &fakeUpstream{totalPages: 4, perPage: 3}
	w := newTestWalker(up, &bytes.Buffer{})

	res, err := w.WalkPage(context.Background(), testCred, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, catalog.StateDone, res.State)
	assert.Equal(t, 2, res.Pagination.CurrentPage)
	assert.Equal(t, 4, res.Pagination.TotalPages)
	require.Len(t, res.Records, 3)
	assert.Equal(t, "4", res.Records[0].ItemID)
	assert.Equal(t, 1, up.pageCalls)
}

func TestWalkPage_FailureIsNoPages(t *testing.T) {
	up := &fakeUpstream{totalPages: 4, perPage: 3, failPage: 1}
	w := newTestWalker(up, &bytes.Buffer{})

	_, err := w.WalkPage(context.Background(), testCred, 0, 10)
	assert.ErrorIs(t, err, catalog.ErrNoPages)
}

// ── LookupProducts ─────────────────────────────────────────────────────────

func TestLookupProducts_ChunksIDFilter(t *testing.T) {
	up := &fakeUpstream{}
	w := newTestWalker(up, &bytes.Buffer{})

	ids := make([]int64, 120)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	products, err := w.LookupProducts(context.Background(), testCred, ids)
	require.NoError(t, err)

	assert.Len(t, products, 120)
	assert.Equal(t, 3, up.pageCalls)
	for _, f := range up.lastFilters {
		assert.Contains(t, f, "id:in")
	}
}

func TestLookupProducts_NoIDs(t *testing.T) {
	up := &fakeUpstream{}
	w := newTestWalker(up, &bytes.Buffer{})

	products, err := w.LookupProducts(context.Background(), testCred, nil)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Zero(t, up.pageCalls)
}
