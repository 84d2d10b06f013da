// Package cache memoizes engine answers per (store, operation, parameters)
// with a per-entry TTL. There is no single-flight: concurrent misses on the
// same key each compute, and the last write wins.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// TTL classes used across the engine.
const (
	TTLList      = 300 * time.Second
	TTLAggregate = 3600 * time.Second
	TTLForever   = time.Duration(0) // admin configuration, explicit invalidation only
)

const keyPrefix = "ymm:"

// Store is the shared backend. A zero ttl stores without expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Recorder receives hit/miss outcomes per operation.
type Recorder interface {
	CacheLookup(op string, hit bool)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string, bool) {}

// Cache wraps a Store with JSON encoding and failure tolerance: backend
// errors are logged and the value is computed as if the entry were missing.
type Cache struct {
	store  Store
	logger *slog.Logger
	rec    Recorder
}

// New returns a Cache over store. logger and rec may be nil.
func New(store Store, logger *slog.Logger, rec Recorder) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Cache{store: store, logger: logger, rec: rec}
}

// Key builds a deterministic cache key. Parameters are sorted by name and
// escaped, so different pages, limits or stores never share a key. Values
// of "make" and "model" are trimmed and lower-cased to match the
// case-insensitive lookup semantics.
func Key(store, op string, params map[string]string) string {
	return buildKey(store, op, params, true)
}

// ExactKey is Key without case folding of "make" and "model". It is used
// for answers that depend on the exact spelling of the query.
func ExactKey(store, op string, params map[string]string) string {
	return buildKey(store, op, params, false)
}

func buildKey(store, op string, params map[string]string, fold bool) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteString(url.QueryEscape(store))
	b.WriteByte(':')
	b.WriteString(op)
	b.WriteByte(':')

	if len(params) > 0 {
		v := url.Values{}
		for k, val := range params {
			if k == "make" || k == "model" {
				val = strings.TrimSpace(val)
				if fold {
					val = strings.ToLower(val)
				}
			}
			v.Set(k, val)
		}
		b.WriteString(v.Encode())
	}
	return b.String()
}

// StorePrefix returns the prefix shared by every key of one store, or of one
// operation of that store when op is non-empty.
func StorePrefix(store, op string) string {
	p := keyPrefix + url.QueryEscape(store) + ":"
	if op != "" {
		p += op + ":"
	}
	return p
}

// GetOrCompute returns the cached value for key, or runs compute and caches
// its result for ttl. Errors from compute are returned and never cached.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	op := opOf(key)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed, computing", "key", key, "err", err)
	}
	if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			c.rec.CacheLookup(op, true)
			return v, nil
		}
		c.logger.Warn("cache entry undecodable, recomputing", "key", key)
	}
	c.rec.CacheLookup(op, false)

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}

	enc, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "err", err)
		return v, nil
	}
	if err := c.store.Set(ctx, key, enc, ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "err", err)
	}
	return v, nil
}

// Invalidate evicts the given keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

// InvalidatePrefix evicts every key starting with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	return c.store.DeletePrefix(ctx, prefix)
}

// opOf extracts the operation segment of a key built by Key.
func opOf(key string) string {
	rest := strings.TrimPrefix(key, keyPrefix)
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 {
		return "unknown"
	}
	return parts[1]
}
