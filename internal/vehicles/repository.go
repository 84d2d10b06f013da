package vehicles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ymmfilter/compat-service/internal/db"
	"ymmfilter/compat-service/internal/model"
)

// Repository persists local vehicles and their product associations.
type Repository interface {
	Create(ctx context.Context, v model.LocalVehicle) (*model.LocalVehicle, error)
	Update(ctx context.Context, v model.LocalVehicle) (*model.LocalVehicle, error)
	Get(ctx context.Context, storeID, id string) (*model.LocalVehicle, error)
	SetActive(ctx context.Context, storeID, id string, active bool) (*model.LocalVehicle, error)
	List(ctx context.Context, storeID string, activeOnly bool) ([]model.LocalVehicle, error)
	ListByMakeModel(ctx context.Context, storeID, mk, mdl string) ([]model.LocalVehicle, error)
	Associate(ctx context.Context, storeID, vehicleID string, productID int64) error
	Dissociate(ctx context.Context, storeID, vehicleID string, productID int64) error
	ProductIDs(ctx context.Context, storeID string, vehicleIDs []string) ([]int64, error)
}

const vehicleColumns = `id::text, store_id, make, model, year_start, year_end, is_active, created_at, updated_at`

// PGRepository is the PostgreSQL Repository.
type PGRepository struct {
	db db.Querier
}

// NewPGRepository returns a repository over q (usually a *pgxpool.Pool).
func NewPGRepository(q db.Querier) *PGRepository {
	return &PGRepository{db: q}
}

func scanVehicle(row pgx.Row) (*model.LocalVehicle, error) {
	var v model.LocalVehicle
	err := row.Scan(&v.ID, &v.StoreID, &v.Make, &v.Model, &v.YearStart, &v.YearEnd,
		&v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *PGRepository) Create(ctx context.Context, v model.LocalVehicle) (*model.LocalVehicle, error) {
	out, err := scanVehicle(r.db.QueryRow(ctx,
		`INSERT INTO vehicles (id, store_id, make, model, year_start, year_end, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+vehicleColumns,
		v.ID, v.StoreID, v.Make, v.Model, v.YearStart, v.YearEnd, v.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("createVehicle: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Update(ctx context.Context, v model.LocalVehicle) (*model.LocalVehicle, error) {
	out, err := scanVehicle(r.db.QueryRow(ctx,
		`UPDATE vehicles
		 SET make = $1, model = $2, year_start = $3, year_end = $4, updated_at = NOW()
		 WHERE id::text = $5 AND store_id = $6
		 RETURNING `+vehicleColumns,
		v.Make, v.Model, v.YearStart, v.YearEnd, v.ID, v.StoreID,
	))
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("updateVehicle: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Get(ctx context.Context, storeID, id string) (*model.LocalVehicle, error) {
	return scanVehicle(r.db.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id::text = $1 AND store_id = $2`,
		id, storeID,
	))
}

func (r *PGRepository) SetActive(ctx context.Context, storeID, id string, active bool) (*model.LocalVehicle, error) {
	return scanVehicle(r.db.QueryRow(ctx,
		`UPDATE vehicles SET is_active = $1, updated_at = NOW()
		 WHERE id::text = $2 AND store_id = $3
		 RETURNING `+vehicleColumns,
		active, id, storeID,
	))
}

func (r *PGRepository) List(ctx context.Context, storeID string, activeOnly bool) ([]model.LocalVehicle, error) {
	q := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE store_id = $1`
	if activeOnly {
		q += ` AND is_active = true`
	}
	return r.query(ctx, q+` ORDER BY make, model, year_start`, storeID)
}

// ListByMakeModel returns every stored range, active or not, for the exact
// make/model pair.
func (r *PGRepository) ListByMakeModel(ctx context.Context, storeID, mk, mdl string) ([]model.LocalVehicle, error) {
	return r.query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles
		 WHERE store_id = $1 AND make = $2 AND model = $3
		 ORDER BY year_start`,
		storeID, mk, mdl,
	)
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]model.LocalVehicle, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer rows.Close()

	out := make([]model.LocalVehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *PGRepository) Associate(ctx context.Context, storeID, vehicleID string, productID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO product_vehicles (store_id, product_id, vehicle_id)
		 VALUES ($1, $2, $3::uuid)
		 ON CONFLICT DO NOTHING`,
		storeID, productID, vehicleID,
	)
	if err != nil {
		return fmt.Errorf("associate: %w", err)
	}
	return nil
}

func (r *PGRepository) Dissociate(ctx context.Context, storeID, vehicleID string, productID int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM product_vehicles
		 WHERE store_id = $1 AND product_id = $2 AND vehicle_id::text = $3`,
		storeID, productID, vehicleID,
	)
	if err != nil {
		return fmt.Errorf("dissociate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) ProductIDs(ctx context.Context, storeID string, vehicleIDs []string) ([]int64, error) {
	if len(vehicleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT product_id FROM product_vehicles
		 WHERE store_id = $1 AND vehicle_id::text = ANY($2)
		 ORDER BY product_id`,
		storeID, vehicleIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query product_vehicles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
