// Package ymm contains the query surface of the compatibility engine. It is
// transport-agnostic: used by the HTTP handler, the gRPC server and ymmctl.
package ymm

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"ymmfilter/compat-service/internal/cache"
	"ymmfilter/compat-service/internal/catalog"
	"ymmfilter/compat-service/internal/compat"
	"ymmfilter/compat-service/internal/model"
)

// Cache operation names. They appear in keys and in metrics labels.
const (
	OpCatalog  = "catalog"
	OpMakes    = "makes"
	OpModels   = "models"
	OpYears    = "years"
	OpSearch   = "search"
	OpProducts = "products"
)

const defaultLimit = 50

// Walker is the catalog traversal the service drives.
type Walker interface {
	WalkAll(ctx context.Context, cred model.StoreCredential) (*catalog.WalkResult, error)
	WalkPage(ctx context.Context, cred model.StoreCredential, page, limit int) (*catalog.PageResult, error)
	LookupProducts(ctx context.Context, cred model.StoreCredential, ids []int64) ([]model.Product, error)
}

// LocalSource exposes locally stored vehicles. vehicles.Service implements it.
type LocalSource interface {
	Active(ctx context.Context, storeID string) ([]model.LocalVehicle, error)
	MatchingProductIDs(ctx context.Context, storeID string, q model.CompatibilityQuery) ([]int64, error)
}

// Options tunes a Service. Zero values fall back to the cache TTL classes
// and a two-year look-ahead.
type Options struct {
	ListTTL      time.Duration
	AggregateTTL time.Duration
	YearsAhead   int
	Logger       *slog.Logger
}

// Service answers YMM lookups for one store at a time, memoizing every
// answer in the result cache.
type Service struct {
	walker     Walker
	local      LocalSource
	cache      *cache.Cache
	listTTL    time.Duration
	aggTTL     time.Duration
	yearsAhead int
	now        func() time.Time
	logger     *slog.Logger
}

// NewService returns a configured Service. local may be nil when the store
// keeps all compatibility data in upstream custom fields.
func NewService(w Walker, local LocalSource, c *cache.Cache, opts Options) *Service {
	s := &Service{
		walker:     w,
		local:      local,
		cache:      c,
		listTTL:    opts.ListTTL,
		aggTTL:     opts.AggregateTTL,
		yearsAhead: opts.YearsAhead,
		now:        time.Now,
		logger:     opts.Logger,
	}
	if s.listTTL <= 0 {
		s.listTTL = cache.TTLList
	}
	if s.aggTTL <= 0 {
		s.aggTTL = cache.TTLAggregate
	}
	if s.yearsAhead <= 0 {
		s.yearsAhead = 2
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// snapshot is the cached outcome of one full catalog walk.
type snapshot struct {
	Records   []model.YmmRecord `json:"records"`
	Truncated bool              `json:"truncated"`
}

// catalogSnapshot walks the store once per list TTL; every lookup below is
// derived from it.
func (s *Service) catalogSnapshot(ctx context.Context, cred model.StoreCredential) (snapshot, error) {
	key := cache.Key(cred.StoreID, OpCatalog, nil)
	return cache.GetOrCompute(ctx, s.cache, key, s.listTTL, func(ctx context.Context) (snapshot, error) {
		res, err := s.walker.WalkAll(ctx, cred)
		if err != nil {
			return snapshot{}, err
		}
		// A walk cut short by the caller is not a snapshot of the catalog.
		if err := ctx.Err(); err != nil {
			return snapshot{}, err
		}
		return snapshot{Records: res.Records, Truncated: !res.Complete()}, nil
	})
}

func (s *Service) activeVehicles(ctx context.Context, storeID string) []model.LocalVehicle {
	if s.local == nil {
		return nil
	}
	vs, err := s.local.Active(ctx, storeID)
	if err != nil {
		s.logger.Warn("local vehicles unavailable, using upstream data only", "store", storeID, "err", err)
		return nil
	}
	return vs
}

// GetMakes returns the distinct makes of the store, sorted case-insensitively.
func (s *Service) GetMakes(ctx context.Context, cred model.StoreCredential) ([]string, error) {
	key := cache.Key(cred.StoreID, OpMakes, nil)
	return cache.GetOrCompute(ctx, s.cache, key, s.aggTTL, func(ctx context.Context) ([]string, error) {
		snap, err := s.catalogSnapshot(ctx, cred)
		if err != nil {
			return nil, err
		}
		set := newFoldSet()
		for _, r := range snap.Records {
			if r.Make != nil {
				set.add(*r.Make)
			}
		}
		for _, v := range s.activeVehicles(ctx, cred.StoreID) {
			set.add(v.Make)
		}
		return set.sorted(), nil
	})
}

// GetModels returns the distinct models recorded for the make mk.
func (s *Service) GetModels(ctx context.Context, cred model.StoreCredential, mk string) ([]string, error) {
	mk = strings.TrimSpace(mk)
	if mk == "" {
		return nil, &compat.ValidationError{Msg: "make is required"}
	}

	key := cache.Key(cred.StoreID, OpModels, map[string]string{"make": mk})
	return cache.GetOrCompute(ctx, s.cache, key, s.aggTTL, func(ctx context.Context) ([]string, error) {
		snap, err := s.catalogSnapshot(ctx, cred)
		if err != nil {
			return nil, err
		}
		set := newFoldSet()
		for _, r := range snap.Records {
			if r.Make != nil && r.Model != nil && strings.EqualFold(*r.Make, mk) {
				set.add(*r.Model)
			}
		}
		for _, v := range s.activeVehicles(ctx, cred.StoreID) {
			if strings.EqualFold(v.Make, mk) {
				set.add(v.Model)
			}
		}
		return set.sorted(), nil
	})
}

// GetYearRanges returns the distinct year ranges recorded for mk/mdl and
// the years covered by the closed ones.
func (s *Service) GetYearRanges(ctx context.Context, cred model.StoreCredential, mk, mdl string) (model.YearSummary, error) {
	mk, mdl = strings.TrimSpace(mk), strings.TrimSpace(mdl)
	if mk == "" || mdl == "" {
		return model.YearSummary{}, &compat.ValidationError{Msg: "make and model are required"}
	}

	key := cache.Key(cred.StoreID, OpYears, map[string]string{"make": mk, "model": mdl})
	return cache.GetOrCompute(ctx, s.cache, key, s.aggTTL, func(ctx context.Context) (model.YearSummary, error) {
		snap, err := s.catalogSnapshot(ctx, cred)
		if err != nil {
			return model.YearSummary{}, err
		}
		var ranges []model.YearRange
		for _, r := range snap.Records {
			if r.Make == nil || r.Model == nil {
				continue
			}
			if !strings.EqualFold(*r.Make, mk) || !strings.EqualFold(*r.Model, mdl) {
				continue
			}
			ranges = append(ranges, model.YearRange{Start: r.YearStart, End: r.YearEnd})
		}
		for _, v := range s.activeVehicles(ctx, cred.StoreID) {
			if strings.EqualFold(v.Make, mk) && strings.EqualFold(v.Model, mdl) {
				start, end := v.YearStart, v.YearEnd
				ranges = append(ranges, model.YearRange{Start: &start, End: &end})
			}
		}
		return s.summarize(ranges), nil
	})
}

// SearchCompatible returns one page of items compatible with q. Upstream
// records match in relaxed mode, locally associated products in strict
// mode; an item found both ways is listed once.
func (s *Service) SearchCompatible(ctx context.Context, cred model.StoreCredential, q model.CompatibilityQuery, page, limit int) (*model.SearchResult, error) {
	q.Make, q.Model = strings.TrimSpace(q.Make), strings.TrimSpace(q.Model)
	if err := compat.ValidateQuery(q, s.now(), s.yearsAhead); err != nil {
		return nil, err
	}
	page, limit = normalizePaging(page, limit)

	// Local matches are case-sensitive, so the spelling is part of the key.
	key := cache.ExactKey(cred.StoreID, OpSearch, map[string]string{
		"year":  strconv.Itoa(q.Year),
		"make":  q.Make,
		"model": q.Model,
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	})
	return cache.GetOrCompute(ctx, s.cache, key, s.listTTL, func(ctx context.Context) (*model.SearchResult, error) {
		snap, err := s.catalogSnapshot(ctx, cred)
		if err != nil {
			return nil, err
		}

		matches := compat.Filter(snap.Records, q)
		seen := make(map[string]bool, len(matches))
		for i := range matches {
			matches[i].MatchedBy = string(compat.ModeRelaxed)
			seen[matches[i].ItemID] = true
		}
		matches = append(matches, s.localMatches(ctx, cred, q, seen)...)

		total := len(matches)
		start := min((page-1)*limit, total)
		end := min(start+limit, total)
		return &model.SearchResult{
			Items:     matches[start:end],
			Total:     total,
			Page:      page,
			Limit:     limit,
			Truncated: snap.Truncated,
		}, nil
	})
}

func (s *Service) localMatches(ctx context.Context, cred model.StoreCredential, q model.CompatibilityQuery, seen map[string]bool) []model.YmmRecord {
	if s.local == nil {
		return nil
	}
	ids, err := s.local.MatchingProductIDs(ctx, cred.StoreID, q)
	if err != nil {
		s.logger.Warn("local vehicle match failed", "store", cred.StoreID, "err", err)
		return nil
	}

	var missing []int64
	for _, id := range ids {
		if !seen[strconv.FormatInt(id, 10)] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	products, err := s.walker.LookupProducts(ctx, cred, missing)
	if err != nil {
		s.logger.Warn("product lookup for local matches failed", "store", cred.StoreID, "err", err)
	}

	out := make([]model.YmmRecord, 0, len(products))
	for _, p := range products {
		mk, mdl := q.Make, q.Model
		out = append(out, model.YmmRecord{
			ItemID:    strconv.FormatInt(p.ID, 10),
			Name:      p.Name,
			Make:      &mk,
			Model:     &mdl,
			MatchedBy: string(compat.ModeStrict),
		})
	}
	return out
}

// ListProducts returns one upstream page of YMM-tagged products.
func (s *Service) ListProducts(ctx context.Context, cred model.StoreCredential, page, limit int) (*model.ProductPage, error) {
	page, limit = normalizePaging(page, limit)

	key := cache.Key(cred.StoreID, OpProducts, map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	})
	return cache.GetOrCompute(ctx, s.cache, key, s.listTTL, func(ctx context.Context) (*model.ProductPage, error) {
		res, err := s.walker.WalkPage(ctx, cred, page, limit)
		if err != nil {
			return nil, err
		}
		items := res.Records
		if items == nil {
			items = []model.YmmRecord{}
		}
		return &model.ProductPage{
			Items:       items,
			CurrentPage: res.Pagination.CurrentPage,
			TotalPages:  res.Pagination.TotalPages,
			Total:       res.Pagination.Total,
		}, nil
	})
}

// InvalidateVehicle evicts the answers a local vehicle change can alter:
// the store's makes, the models of make, the years of make/model and every
// cached search of the store. Failures are logged; entries then expire by TTL.
func (s *Service) InvalidateVehicle(ctx context.Context, storeID, mk, mdl string) {
	keys := []string{
		cache.Key(storeID, OpMakes, nil),
		cache.Key(storeID, OpModels, map[string]string{"make": mk}),
		cache.Key(storeID, OpYears, map[string]string{"make": mk, "model": mdl}),
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", "store", storeID, "err", err)
	}
	if err := s.cache.InvalidatePrefix(ctx, cache.StorePrefix(storeID, OpSearch)); err != nil {
		s.logger.Warn("search cache invalidation failed", "store", storeID, "err", err)
	}
}

// Refresh drops the store's catalog snapshot and aggregates, then rebuilds
// the makes list. The warm-up job calls it.
func (s *Service) Refresh(ctx context.Context, cred model.StoreCredential) error {
	if err := s.cache.InvalidatePrefix(ctx, cache.StorePrefix(cred.StoreID, "")); err != nil {
		return err
	}
	_, err := s.GetMakes(ctx, cred)
	return err
}

func (s *Service) summarize(ranges []model.YearRange) model.YearSummary {
	lo, hi := compat.YearBounds(s.now(), s.yearsAhead)

	seen := make(map[string]bool)
	years := make(map[int]bool)
	out := model.YearSummary{Ranges: []model.YearRange{}, Years: []int{}}
	for _, r := range ranges {
		k := boundKey(r.Start) + "-" + boundKey(r.End)
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Ranges = append(out.Ranges, r)

		if r.Start == nil || r.End == nil {
			continue
		}
		for y := max(*r.Start, lo); y <= min(*r.End, hi); y++ {
			years[y] = true
		}
	}

	sort.SliceStable(out.Ranges, func(i, j int) bool {
		a, b := out.Ranges[i], out.Ranges[j]
		if boundValue(a.Start) != boundValue(b.Start) {
			return boundValue(a.Start) < boundValue(b.Start)
		}
		return boundValue(a.End) < boundValue(b.End)
	})
	for y := range years {
		out.Years = append(out.Years, y)
	}
	sort.Ints(out.Years)
	return out
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	return page, catalog.ClampLimit(limit)
}

func boundKey(p *int) string {
	if p == nil {
		return "*"
	}
	return strconv.Itoa(*p)
}

func boundValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// foldSet collects strings uniquely under case folding, keeping the first
// spelling seen.
type foldSet struct {
	byFold map[string]string
}

func newFoldSet() *foldSet { return &foldSet{byFold: make(map[string]string)} }

func (f *foldSet) add(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	k := strings.ToLower(s)
	if _, ok := f.byFold[k]; !ok {
		f.byFold[k] = s
	}
}

func (f *foldSet) sorted() []string {
	keys := make([]string, 0, len(f.byFold))
	for k := range f.byFold {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, f.byFold[k])
	}
	return out
}
