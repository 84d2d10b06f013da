package ymm_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"ymmfilter/compat-service/internal/cache"
	"ymmfilter/compat-service/internal/catalog"
	"ymmfilter/compat-service/internal/model"
	"ymmfilter/compat-service/internal/ymm"
)

func str(s string) *string { return &s }
func year(y int) *int      { return &y }

func rec(id, mk, mdl string, start, end int) model.YmmRecord {
	return model.YmmRecord{ItemID: id, Name: "Part " + id, Make: str(mk), Model: str(mdl), YearStart: year(start), YearEnd: year(end)}
}

// fakeWalker serves a fixed catalog and counts full walks per store.
type fakeWalker struct {
	mu       sync.Mutex
	records  []model.YmmRecord
	state    catalog.WalkState
	err      error
	walks    map[string]int
	pages    int
	products map[int64]model.Product
	lookups  [][]int64

	// cancelAfterFirst, when set, is called mid-walk; the walk then ends
	// FAILED with only the first record, as the catalog walker does.
	cancelAfterFirst context.CancelFunc
}

func newFakeWalker(records ...model.YmmRecord) *fakeWalker {
	return &fakeWalker{records: records, state: catalog.StateDone, walks: map[string]int{}, products: map[int64]model.Product{}}
}

func (f *fakeWalker) WalkAll(_ context.Context, cred model.StoreCredential) (*catalog.WalkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walks[cred.StoreID]++
	if f.err != nil {
		return nil, f.err
	}
	if cancel := f.cancelAfterFirst; cancel != nil && len(f.records) > 0 {
		f.cancelAfterFirst = nil
		cancel()
		partial := []model.YmmRecord{f.records[0]}
		return &catalog.WalkResult{Records: partial, State: catalog.StateFailed, Pages: 1, TotalPages: 2, Err: context.Canceled}, nil
	}
	out := append([]model.YmmRecord(nil), f.records...)
	return &catalog.WalkResult{Records: out, State: f.state, Pages: 1, TotalPages: 1}, nil
}

func (f *fakeWalker) WalkPage(_ context.Context, _ model.StoreCredential, page, limit int) (*catalog.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages++
	if f.err != nil {
		return nil, f.err
	}
	start := min((page-1)*limit, len(f.records))
	end := min(start+limit, len(f.records))
	totalPages := (len(f.records) + limit - 1) / limit
	return &catalog.PageResult{
		Records:    append([]model.YmmRecord(nil), f.records[start:end]...),
		Pagination: catalog.Pagination{CurrentPage: page, TotalPages: totalPages, Total: len(f.records), PerPage: limit},
		State:      catalog.StateDone,
	}, nil
}

func (f *fakeWalker) LookupProducts(_ context.Context, _ model.StoreCredential, ids []int64) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, ids)
	var out []model.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeWalker) walkCount(store string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.walks[store]
}

// fakeLocal is a LocalSource over a fixed vehicle list.
type fakeLocal struct {
	mu          sync.Mutex
	vehicles    []model.LocalVehicle
	products    map[string][]int64 // vehicle id → product ids
	err         error
	activeCalls int
}

func (l *fakeLocal) Active(_ context.Context, storeID string) ([]model.LocalVehicle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeCalls++
	if l.err != nil {
		return nil, l.err
	}
	var out []model.LocalVehicle
	for _, v := range l.vehicles {
		if v.StoreID == storeID && v.IsActive {
			out = append(out, v)
		}
	}
	return out, nil
}

func (l *fakeLocal) MatchingProductIDs(ctx context.Context, storeID string, q model.CompatibilityQuery) ([]int64, error) {
	vs, err := l.Active(ctx, storeID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, v := range vs {
		if v.Make == q.Make && v.Model == q.Model && q.Year >= v.YearStart && q.Year <= v.YearEnd {
			ids = append(ids, l.products[v.ID]...)
		}
	}
	return ids, nil
}

var cred = model.StoreCredential{StoreID: "store1", AccessToken: "tok", APIBaseURL: "http://upstream.test"}

func newTestService(w ymm.Walker, local ymm.LocalSource) *ymm.Service {
	c := cache.New(cache.NewMemoryStore(), nil, nil)
	return ymm.NewService(w, local, c, ymm.Options{})
}

func itemIDs(items []model.YmmRecord) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ItemID)
	}
	return out
}

func product(id int64) model.Product {
	return model.Product{ID: id, Name: "Local part " + strconv.FormatInt(id, 10)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
