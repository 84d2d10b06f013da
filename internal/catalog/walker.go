package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"ymmfilter/compat-service/internal/model"
)

const (
	defaultWalkPageSize = 50
	defaultMaxPages     = 20 // ≈1000 items per walk
	lookupChunk         = 50
)

// ErrIncompleteCredential is returned before any upstream call when the
// credential lacks a store id or token.
var ErrIncompleteCredential = errors.New("store credential is incomplete")

var productFields = []string{"id", "name", "sku", "price"}

// WalkResult is the outcome of WalkAll. Records may be partial: a walk that
// ends in TRUNCATED or FAILED after at least one page is still a result.
type WalkResult struct {
	Records    []model.YmmRecord `json:"records"`
	State      WalkState         `json:"state"`
	Pages      int               `json:"pages"`
	TotalPages int               `json:"totalPages"`
	Err        error             `json:"-"`
}

// Complete reports whether the walk covered the whole catalog.
func (r *WalkResult) Complete() bool { return r.State == StateDone }

func (r *WalkResult) move(to WalkState) {
	if !IsWalkTransitionAllowed(r.State, to) {
		panic(fmt.Sprintf("catalog: walk transition %s → %s is not allowed", r.State, to))
	}
	r.State = to
}

// PageResult is the outcome of WalkPage.
type PageResult struct {
	Records    []model.YmmRecord
	Pagination Pagination
	State      WalkState
}

// Walker drives Upstream across pages and turns products into YmmRecords.
// Per-item enrichment calls are serialized through a Gate created per walk.
type Walker struct {
	up       Upstream
	pageSize int
	maxPages int
	newGate  func() Gate
	logger   *slog.Logger
	rec      Recorder
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithPageSize sets the page size used by WalkAll (clamped to MaxPageLimit).
func WithPageSize(n int) WalkerOption {
	return func(w *Walker) { w.pageSize = ClampLimit(n) }
}

// WithMaxPages sets the page ceiling of WalkAll.
func WithMaxPages(n int) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.maxPages = n
		}
	}
}

// WithGate sets the factory producing one enrichment Gate per walk.
func WithGate(newGate func() Gate) WalkerOption {
	return func(w *Walker) { w.newGate = newGate }
}

// WithLogger sets the logger used for truncation and failure warnings.
func WithLogger(l *slog.Logger) WalkerOption {
	return func(w *Walker) { w.logger = l }
}

// WithRecorder reports walk outcomes to r.
func WithRecorder(r Recorder) WalkerOption {
	return func(w *Walker) {
		if r != nil {
			w.rec = r
		}
	}
}

// NewWalker returns a Walker with a 50-item page, a 20-page ceiling and a
// 100ms enrichment interval.
func NewWalker(up Upstream, opts ...WalkerOption) *Walker {
	w := &Walker{
		up:       up,
		pageSize: defaultWalkPageSize,
		maxPages: defaultMaxPages,
		newGate:  func() Gate { return NewIntervalGate(defaultEnrichInterval) },
		logger:   slog.Default(),
		rec:      nopRecorder{},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// WalkAll collects every YMM-tagged item of the store, up to the page
// ceiling. A page failure ends the walk with the records gathered so far and
// a nil error; only a walk that fetched no page at all returns ErrNoPages.
func (w *Walker) WalkAll(ctx context.Context, cred model.StoreCredential) (*WalkResult, error) {
	if !cred.Complete() {
		return nil, ErrIncompleteCredential
	}

	res := &WalkResult{State: StateFetching}
	gate := w.newGate()

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return w.fail(res, cred, err)
		}

		p, err := w.up.FetchPage(ctx, cred, ProductsPath, PageOptions{
			Page:   page,
			Limit:  w.pageSize,
			Fields: productFields,
		})
		if err != nil {
			w.logFetchFailure(cred, page, err)
			return w.fail(res, cred, err)
		}
		res.Pages++
		res.TotalPages = p.Pagination.TotalPages
		res.move(StateExtracting)

		recs, err := w.enrich(ctx, cred, gate, p.Items)
		res.Records = append(res.Records, recs...)
		if err != nil {
			return w.fail(res, cred, err)
		}

		if len(p.Items) == 0 || p.Pagination.CurrentPage >= p.Pagination.TotalPages {
			res.move(StateDone)
			break
		}
		if res.Pages >= w.maxPages {
			res.move(StateTruncated)
			w.logger.Warn("catalog walk truncated at page ceiling",
				"store", cred.StoreID,
				"pages", res.Pages,
				"totalPages", p.Pagination.TotalPages,
				"records", len(res.Records))
			break
		}
		res.move(StateFetching)
	}

	w.rec.WalkFinished(string(res.State))
	return res, nil
}

// WalkPage fetches and enriches a single page. Unlike WalkAll there is
// nothing to fall back to, so a page failure is returned as the error.
func (w *Walker) WalkPage(ctx context.Context, cred model.StoreCredential, page, limit int) (*PageResult, error) {
	if !cred.Complete() {
		return nil, ErrIncompleteCredential
	}
	if page < 1 {
		page = 1
	}

	p, err := w.up.FetchPage(ctx, cred, ProductsPath, PageOptions{
		Page:   page,
		Limit:  ClampLimit(limit),
		Fields: productFields,
	})
	if err != nil {
		w.logFetchFailure(cred, page, err)
		w.rec.WalkFinished(string(StateFailed))
		return nil, fmt.Errorf("%w: %w", ErrNoPages, err)
	}

	recs, err := w.enrich(ctx, cred, w.newGate(), p.Items)
	if err != nil {
		w.rec.WalkFinished(string(StateFailed))
		return &PageResult{Records: recs, Pagination: p.Pagination, State: StateFailed}, err
	}

	w.rec.WalkFinished(string(StateDone))
	return &PageResult{Records: recs, Pagination: p.Pagination, State: StateDone}, nil
}

// LookupProducts fetches the named products with an id:in filter. Products
// the upstream no longer knows are silently missing from the result.
func (w *Walker) LookupProducts(ctx context.Context, cred model.StoreCredential, ids []int64) ([]model.Product, error) {
	if !cred.Complete() {
		return nil, ErrIncompleteCredential
	}

	var out []model.Product
	for start := 0; start < len(ids); start += lookupChunk {
		end := min(start+lookupChunk, len(ids))
		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.FormatInt(id, 10))
		}

		p, err := w.up.FetchPage(ctx, cred, ProductsPath, PageOptions{
			Page:    1,
			Limit:   lookupChunk,
			Fields:  productFields,
			Filters: map[string]string{"id:in": strings.Join(parts, ",")},
		})
		if err != nil {
			w.logFetchFailure(cred, 1, err)
			return out, err
		}
		out = append(out, p.Items...)
	}
	return out, nil
}

// enrich resolves the custom fields of each item one at a time, waiting on
// gate before every upstream call. A failed call means "no custom fields"
// for that item. Only cancellation aborts.
func (w *Walker) enrich(ctx context.Context, cred model.StoreCredential, gate Gate, items []model.Product) ([]model.YmmRecord, error) {
	var out []model.YmmRecord
	for _, item := range items {
		fields := item.CustomFields
		if len(fields) == 0 {
			if err := gate.Wait(ctx); err != nil {
				return out, err
			}
			id := strconv.FormatInt(item.ID, 10)
			fetched, err := w.up.FetchCustomFields(ctx, cred, id)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				w.logger.Warn("custom fields fetch failed, skipping item",
					"store", cred.StoreID, "product", id, "err", err)
				continue
			}
			fields = fetched
		}

		if rec, ok := Extract(item, fields); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (w *Walker) fail(res *WalkResult, cred model.StoreCredential, err error) (*WalkResult, error) {
	res.move(StateFailed)
	res.Err = err
	w.rec.WalkFinished(string(res.State))

	if res.Pages == 0 {
		return res, fmt.Errorf("%w: %w", ErrNoPages, err)
	}
	w.logger.Warn("catalog walk ended early, returning partial results",
		"store", cred.StoreID, "pages", res.Pages, "records", len(res.Records), "err", err)
	return res, nil
}

func (w *Walker) logFetchFailure(cred model.StoreCredential, page int, err error) {
	var (
		ue *UpstreamError
		te *TransportError
	)
	switch {
	case errors.As(err, &ue):
		w.logger.Warn("catalog page fetch rejected",
			"store", cred.StoreID, "page", page, "status", ue.Status, "path", ue.Path)
	case errors.As(err, &te):
		w.logger.Warn("catalog page transport failure",
			"store", cred.StoreID, "page", page, "path", te.Path,
			"timeout", errors.Is(err, context.DeadlineExceeded), "err", te.Err)
	default:
		w.logger.Warn("catalog page fetch failed", "store", cred.StoreID, "page", page, "err", err)
	}
}
