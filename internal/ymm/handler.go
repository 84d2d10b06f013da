// HTTP handlers for the YMM service.
//
// Credentials come from X-Store-Hash / X-Auth-Token headers (or the
// store_hash query parameter), the ymm_session cookie, or a store query
// parameter naming a registered store. The /api/vehicles routes accept only
// an explicit token or a valid session.
//
// Routes:
//
//	GET    /api/ymm/makes                              → distinct makes
//	GET    /api/ymm/models?make=                       → models of a make
//	GET    /api/ymm/years?make=&model=                 → year ranges of a make/model
//	GET    /api/ymm/search?year=&make=&model=&page=&limit= → compatible products
//	GET    /api/ymm/products?page=&limit=              → YMM-tagged products, one upstream page
//	GET    /api/vehicles                               → local vehicles
//	POST   /api/vehicles                               → create local vehicle
//	PUT    /api/vehicles/{id}                          → update local vehicle
//	DELETE /api/vehicles/{id}                          → deactivate local vehicle
//	POST   /api/vehicles/{id}/products                 → associate a product
//	DELETE /api/vehicles/{id}/products/{productID}     → dissociate a product
package ymm

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"ymmfilter/compat-service/internal/catalog"
	"ymmfilter/compat-service/internal/compat"
	"ymmfilter/compat-service/internal/credential"
	"ymmfilter/compat-service/internal/model"
	"ymmfilter/compat-service/internal/vehicles"
)

// Handler holds shared dependencies.
type Handler struct {
	svc           *Service
	vehicles      *vehicles.Service
	resolver      *credential.Resolver
	admin         *credential.Resolver
	sessionSecret []byte
	logger        *slog.Logger
}

// NewHandler returns a configured Handler. resolver serves the read routes;
// admin serves the vehicle routes. veh may be nil, in which case the vehicle
// routes are not mounted.
func NewHandler(svc *Service, veh *vehicles.Service, resolver, admin *credential.Resolver, sessionSecret []byte, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:           svc,
		vehicles:      veh,
		resolver:      resolver,
		admin:         admin,
		sessionSecret: sessionSecret,
		logger:        logger,
	}
}

// RegisterRoutes mounts all YMM routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/ymm", func(r chi.Router) {
		r.Get("/makes", h.getMakes)
		r.Get("/models", h.getModels)
		r.Get("/years", h.getYears)
		r.Get("/search", h.search)
		r.Get("/products", h.listProducts)
	})

	if h.vehicles == nil {
		return
	}
	r.Route("/api/vehicles", func(r chi.Router) {
		r.Get("/", h.listVehicles)
		r.Post("/", h.createVehicle)
		r.Put("/{id}", h.updateVehicle)
		r.Delete("/{id}", h.deactivateVehicle)
		r.Post("/{id}/products", h.associateProduct)
		r.Delete("/{id}/products/{productID}", h.dissociateProduct)
	})
}

// RequestLogger tags each request with an X-Request-ID and logs its outcome.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"requestId", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		})
	}
}

// ─── Credentials ──────────────────────────────────────────────────────────────

func (h *Handler) sources(r *http.Request) credential.Sources {
	storeID := r.Header.Get("X-Store-Hash")
	if storeID == "" {
		storeID = r.URL.Query().Get("store_hash")
	}
	return credential.Sources{
		StoreID:     storeID,
		AccessToken: r.Header.Get("X-Auth-Token"),
		Session:     credential.NewCookieSession(h.sessionSecret, r),
		StoreIDHint: r.URL.Query().Get("store"),
	}
}

func (h *Handler) credential(w http.ResponseWriter, r *http.Request) (model.StoreCredential, bool) {
	return h.resolve(w, r, h.resolver)
}

// adminCredential resolves the store for a vehicle route. A store hash on
// its own is not enough.
func (h *Handler) adminCredential(w http.ResponseWriter, r *http.Request) (model.StoreCredential, bool) {
	return h.resolve(w, r, h.admin)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, res *credential.Resolver) (model.StoreCredential, bool) {
	cred, err := res.Resolve(r.Context(), h.sources(r))
	if err != nil {
		h.writeError(w, err)
		return model.StoreCredential{}, false
	}
	return cred, true
}

// ─── YMM lookups ──────────────────────────────────────────────────────────────

func (h *Handler) getMakes(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.credential(w, r)
	if !ok {
		return
	}
	makes, err := h.svc.GetMakes(r.Context(), cred)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, map[string]any{"makes": makes})
}

func (h *Handler) getModels(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.credential(w, r)
	if !ok {
		return
	}
	models, err := h.svc.GetModels(r.Context(), cred, r.URL.Query().Get("make"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, map[string]any{"models": models})
}

func (h *Handler) getYears(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.credential(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	years, err := h.svc.GetYearRanges(r.Context(), cred, q.Get("make"), q.Get("model"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, years)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		jsonError(w, "year must be an integer", http.StatusBadRequest)
		return
	}
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}

	cred, ok := h.credential(w, r)
	if !ok {
		return
	}
	res, err := h.svc.SearchCompatible(r.Context(), cred, model.CompatibilityQuery{
		Year:  year,
		Make:  q.Get("make"),
		Model: q.Get("model"),
	}, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, res)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := paging(w, r)
	if !ok {
		return
	}
	cred, ok := h.credential(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ListProducts(r.Context(), cred, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, res)
}

// ─── Local vehicles ───────────────────────────────────────────────────────────

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.adminCredential(w, r)
	if !ok {
		return
	}
	vs, err := h.vehicles.List(r.Context(), cred.StoreID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, vs)
}

func (h *Handler) createVehicle(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.adminCredential(w, r)
	if !ok {
		return
	}
	var in vehicles.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	v, err := h.vehicles.Create(r.Context(), cred.StoreID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, v)
}

func (h *Handler) updateVehicle(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.adminCredential(w, r)
	if !ok {
		return
	}
	var in vehicles.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	v, err := h.vehicles.Update(r.Context(), cred.StoreID, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, v)
}

func (h *Handler) deactivateVehicle(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.adminCredential(w, r)
	if !ok {
		return
	}
	v, err := h.vehicles.Deactivate(r.Context(), cred.StoreID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, v)
}

func (h *Handler) associateProduct(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.adminCredential(w, r)
	if !ok {
		return
	}
	var body struct {
		ProductID int64 `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProductID <= 0 {
		jsonError(w, "body must contain a positive productId", http.StatusBadRequest)
		return
	}
	if err := h.vehicles.Associate(r.Context(), cred.StoreID, chi.URLParam(r, "id"), body.ProductID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dissociateProduct(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.adminCredential(w, r)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		jsonError(w, "productID must be an integer", http.StatusBadRequest)
		return
	}
	if err := h.vehicles.Dissociate(r.Context(), cred.StoreID, chi.URLParam(r, "id"), productID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func paging(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	q := r.URL.Query()
	page, limit = 1, defaultLimit
	var err error
	if s := q.Get("page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil || page < 1 {
			jsonError(w, "page must be a positive integer", http.StatusBadRequest)
			return 0, 0, false
		}
	}
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return 0, 0, false
		}
	}
	return page, limit, true
}

// StatusFor maps an engine error onto an HTTP status code.
func StatusFor(err error) int {
	var (
		ve *compat.ValidationError
		oe *vehicles.OverlapError
		ue *catalog.UpstreamError
		te *catalog.TransportError
	)
	switch {
	case errors.Is(err, credential.ErrUnresolved), errors.Is(err, catalog.ErrIncompleteCredential):
		return http.StatusUnauthorized
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &oe):
		return http.StatusConflict
	case errors.Is(err, vehicles.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrNoPages), errors.As(err, &ue), errors.As(err, &te):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusUnauthorized:
		msg = "unauthenticated"
	case http.StatusBadGateway:
		h.logger.Warn("upstream catalog unavailable", "err", err)
		msg = "upstream catalog unavailable"
	case http.StatusInternalServerError:
		h.logger.Error("request failed", "err", err)
		msg = "internal error"
	}
	jsonError(w, msg, code)
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
