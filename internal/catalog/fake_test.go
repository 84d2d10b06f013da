package catalog_test

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"ymmfilter/compat-service/internal/catalog"
	"ymmfilter/compat-service/internal/model"
)

var testCred = model.StoreCredential{StoreID: "abc123", AccessToken: "tok", APIBaseURL: "http://upstream.test"}

// fakeUpstream serves totalPages pages of perPage products. Products carry
// inline ymm_* fields unless bareFields is set, in which case they come from
// FetchCustomFields.
type fakeUpstream struct {
	mu          sync.Mutex
	totalPages  int
	perPage     int
	failPage    int             // page whose fetch fails; 0 = none
	bareFields  bool            // omit inline custom fields
	fieldsFail  map[string]bool // product ids whose custom-field call fails
	pageCalls   int
	fieldCalls  int
	lastFilters []map[string]string
}

func (f *fakeUpstream) product(id int64) model.Product {
	p := model.Product{ID: id, Name: "Part " + strconv.FormatInt(id, 10)}
	if !f.bareFields {
		p.CustomFields = f.fields(id)
	}
	return p
}

func (f *fakeUpstream) fields(id int64) []model.FieldKV {
	return []model.FieldKV{
		{Name: catalog.FieldMake, Value: "Ford"},
		{Name: catalog.FieldModel, Value: "F-150"},
		{Name: catalog.FieldYearStart, Value: "2015"},
		{Name: catalog.FieldYearEnd, Value: "2020"},
		{Name: "color", Value: strconv.FormatInt(id, 10)},
	}
}

func (f *fakeUpstream) FetchPage(_ context.Context, _ model.StoreCredential, _ string, opts catalog.PageOptions) (*catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	f.lastFilters = append(f.lastFilters, opts.Filters)

	if opts.Page == f.failPage {
		return nil, &catalog.UpstreamError{Path: catalog.ProductsPath, Status: 500, Body: "boom"}
	}

	if ids, ok := opts.Filters["id:in"]; ok {
		var items []model.Product
		for _, s := range strings.Split(ids, ",") {
			id, _ := strconv.ParseInt(s, 10, 64)
			items = append(items, f.product(id))
		}
		return &catalog.Page{Items: items, Pagination: catalog.Pagination{CurrentPage: 1, TotalPages: 1}}, nil
	}

	page := &catalog.Page{Pagination: catalog.Pagination{
		CurrentPage: opts.Page,
		TotalPages:  f.totalPages,
		PerPage:     f.perPage,
		Total:       f.totalPages * f.perPage,
	}}
	if opts.Page > f.totalPages {
		return page, nil
	}
	for i := 0; i < f.perPage; i++ {
		page.Items = append(page.Items, f.product(int64((opts.Page-1)*f.perPage+i+1)))
	}
	return page, nil
}

func (f *fakeUpstream) FetchCustomFields(_ context.Context, _ model.StoreCredential, productID string) ([]model.FieldKV, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fieldCalls++
	if f.fieldsFail[productID] {
		return nil, &catalog.TransportError{Path: "/catalog/products/" + productID + "/custom-fields", Err: context.DeadlineExceeded}
	}
	id, _ := strconv.ParseInt(productID, 10, 64)
	return f.fields(id), nil
}

// countingGate records how many enrichment calls were paced.
type countingGate struct {
	mu    sync.Mutex
	waits int
}

func (g *countingGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.waits++
	g.mu.Unlock()
	return ctx.Err()
}

type recordedCalls struct {
	mu    sync.Mutex
	calls []string
	walks []string
}

func (r *recordedCalls) UpstreamCall(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, kind+"/"+outcome)
}

func (r *recordedCalls) WalkFinished(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.walks = append(r.walks, state)
}
