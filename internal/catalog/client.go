// Package catalog walks an upstream e-commerce catalog and extracts the
// vehicle compatibility metadata stored in product custom fields.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ymmfilter/compat-service/internal/model"
)

const (
	// MaxPageLimit is the largest page size the upstream accepts.
	MaxPageLimit = 250

	ProductsPath = "/catalog/products"

	defaultPageTimeout   = 30 * time.Second
	defaultFieldsTimeout = 10 * time.Second
	maxErrorBody         = 2048
)

// PageOptions selects one page of a listing.
type PageOptions struct {
	Page    int
	Limit   int
	Fields  []string          // include_fields
	Filters map[string]string // passed through as query parameters, e.g. "id:in"
}

// Pagination mirrors meta.pagination of an upstream listing.
type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// RateLimit holds the quota headers of the last upstream response. The
// engine only surfaces them; pacing is done by the walker's gate.
type RateLimit struct {
	RequestsLeft int
	Quota        int
	WindowMs     int
	ResetMs      int
}

// Page is one decoded listing page.
type Page struct {
	Items      []model.Product
	Pagination Pagination
	RateLimit  RateLimit
}

// Upstream is the catalog API surface the walker drives.
type Upstream interface {
	FetchPage(ctx context.Context, cred model.StoreCredential, path string, opts PageOptions) (*Page, error)
	FetchCustomFields(ctx context.Context, cred model.StoreCredential, productID string) ([]model.FieldKV, error)
}

// Recorder receives call and walk outcomes. metrics.Metrics implements it.
type Recorder interface {
	UpstreamCall(kind, outcome string)
	WalkFinished(state string)
}

type nopRecorder struct{}

func (nopRecorder) UpstreamCall(string, string) {}
func (nopRecorder) WalkFinished(string)         {}

// Client calls the upstream catalog REST API.
type Client struct {
	http          *http.Client
	pageTimeout   time.Duration
	fieldsTimeout time.Duration
	rec           Recorder
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeouts sets the per-call timeouts for page and custom-field calls.
func WithTimeouts(page, fields time.Duration) ClientOption {
	return func(c *Client) {
		if page > 0 {
			c.pageTimeout = page
		}
		if fields > 0 {
			c.fieldsTimeout = fields
		}
	}
}

// WithClientRecorder reports every call outcome to r.
func WithClientRecorder(r Recorder) ClientOption {
	return func(c *Client) {
		if r != nil {
			c.rec = r
		}
	}
}

// NewClient constructs a Client with a shared HTTP client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:          &http.Client{},
		pageTimeout:   defaultPageTimeout,
		fieldsTimeout: defaultFieldsTimeout,
		rec:           nopRecorder{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// listResponse mirrors the upstream list envelope.
type listResponse struct {
	Data []model.Product `json:"data"`
	Meta struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

type customFieldsResponse struct {
	Data []model.FieldKV `json:"data"`
}

// ClampLimit bounds limit to [1, MaxPageLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// FetchPage issues one paginated list call. Non-2xx answers come back as
// *UpstreamError, network failures and timeouts as *TransportError.
func (c *Client) FetchPage(ctx context.Context, cred model.StoreCredential, path string, opts PageOptions) (*Page, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(ClampLimit(opts.Limit)))
	if len(opts.Fields) > 0 {
		params.Set("include_fields", strings.Join(opts.Fields, ","))
	}
	for k, v := range opts.Filters {
		params.Set(k, v)
	}

	var env listResponse
	hdr, err := c.get(ctx, c.pageTimeout, cred, path, params, &env)
	if err != nil {
		c.rec.UpstreamCall("page", outcomeOf(err))
		return nil, err
	}
	c.rec.UpstreamCall("page", "ok")

	pg := env.Meta.Pagination
	if pg.CurrentPage == 0 {
		pg.CurrentPage = page
	}
	return &Page{Items: env.Data, Pagination: pg, RateLimit: parseRateLimit(hdr)}, nil
}

// FetchCustomFields returns the custom fields of one product.
func (c *Client) FetchCustomFields(ctx context.Context, cred model.StoreCredential, productID string) ([]model.FieldKV, error) {
	path := fmt.Sprintf("%s/%s/custom-fields", ProductsPath, url.PathEscape(productID))

	params := url.Values{}
	params.Set("limit", strconv.Itoa(MaxPageLimit))

	var env customFieldsResponse
	if _, err := c.get(ctx, c.fieldsTimeout, cred, path, params, &env); err != nil {
		c.rec.UpstreamCall("custom_fields", outcomeOf(err))
		return nil, err
	}
	c.rec.UpstreamCall("custom_fields", "ok")
	return env.Data, nil
}

func (c *Client) get(ctx context.Context, timeout time.Duration, cred model.StoreCredential, path string, params url.Values, out any) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := strings.TrimRight(cred.APIBaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Auth-Token", cred.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Path: path, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return resp.Header, &UpstreamError{Path: path, Status: resp.StatusCode, Body: string(body)}
	}

	if resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return resp.Header, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.Header, &TransportError{Path: path, Err: fmt.Errorf("json unmarshal: %w", err)}
	}
	return resp.Header, nil
}

func parseRateLimit(h http.Header) RateLimit {
	atoi := func(name string) int {
		v, _ := strconv.Atoi(h.Get(name))
		return v
	}
	return RateLimit{
		RequestsLeft: atoi("X-Rate-Limit-Requests-Left"),
		Quota:        atoi("X-Rate-Limit-Requests-Quota"),
		WindowMs:     atoi("X-Rate-Limit-Time-Window-Ms"),
		ResetMs:      atoi("X-Rate-Limit-Time-Reset-Ms"),
	}
}

func outcomeOf(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return "status_" + strconv.Itoa(ue.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "transport"
}
