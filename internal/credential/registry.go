package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ymmfilter/compat-service/internal/db"
	"ymmfilter/compat-service/internal/model"
)

// ErrStoreNotFound is returned when no matching store exists.
var ErrStoreNotFound = errors.New("store not found")

// Registry is the persisted store registry.
type Registry interface {
	FindActive(ctx context.Context, idOrHash string) (*model.Store, error)
	TouchLastAccessed(ctx context.Context, storeID string) error
	TokenByHash(ctx context.Context, hash string) (string, error)
	ListActive(ctx context.Context) ([]model.Store, error)
}

// PGRegistry reads the stores table.
type PGRegistry struct {
	db db.Querier
}

// NewPGRegistry returns a registry over q (usually a *pgxpool.Pool).
func NewPGRegistry(q db.Querier) *PGRegistry {
	return &PGRegistry{db: q}
}

// FindActive returns the active store whose hash or id equals idOrHash.
func (r *PGRegistry) FindActive(ctx context.Context, idOrHash string) (*model.Store, error) {
	var s model.Store
	err := r.db.QueryRow(ctx,
		`SELECT id::text, store_hash, access_token, is_active, last_accessed_at
		 FROM stores
		 WHERE (store_hash = $1 OR id::text = $1) AND is_active = true
		 LIMIT 1`,
		idOrHash,
	).Scan(&s.ID, &s.Hash, &s.AccessToken, &s.IsActive, &s.LastAccessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("findActive: %w", err)
	}
	return &s, nil
}

// TouchLastAccessed stamps last_accessed_at with the current time.
func (r *PGRegistry) TouchLastAccessed(ctx context.Context, storeID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE stores SET last_accessed_at = NOW() WHERE id::text = $1`,
		storeID,
	)
	if err != nil {
		return fmt.Errorf("touchLastAccessed: %w", err)
	}
	return nil
}

// TokenByHash returns the stored token of the active store with hash.
func (r *PGRegistry) TokenByHash(ctx context.Context, hash string) (string, error) {
	var token string
	err := r.db.QueryRow(ctx,
		`SELECT access_token FROM stores WHERE store_hash = $1 AND is_active = true LIMIT 1`,
		hash,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrStoreNotFound
	}
	if err != nil {
		return "", fmt.Errorf("tokenByHash: %w", err)
	}
	if token == "" {
		return "", ErrStoreNotFound
	}
	return token, nil
}

// ListActive returns every active store.
func (r *PGRegistry) ListActive(ctx context.Context) ([]model.Store, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, store_hash, access_token, is_active, last_accessed_at
		 FROM stores
		 WHERE is_active = true
		 ORDER BY store_hash`,
	)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	stores := make([]model.Store, 0)
	for rows.Next() {
		var s model.Store
		if err := rows.Scan(&s.ID, &s.Hash, &s.AccessToken, &s.IsActive, &s.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}
