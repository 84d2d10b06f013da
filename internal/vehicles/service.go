// Package vehicles manages the locally stored vehicle ranges and the products
// associated with them. Ranges of one make/model never overlap.
package vehicles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ymmfilter/compat-service/internal/compat"
	"ymmfilter/compat-service/internal/model"
)

// ErrNotFound is returned when a vehicle or association is missing for the store.
var ErrNotFound = errors.New("vehicle not found")

// OverlapError reports the stored vehicle a new range collides with.
type OverlapError struct {
	Existing model.LocalVehicle
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("year range overlaps %s %s %d-%d (%s)",
		e.Existing.Make, e.Existing.Model, e.Existing.YearStart, e.Existing.YearEnd, e.Existing.ID)
}

// Invalidator evicts cached answers affected by a vehicle change.
type Invalidator interface {
	InvalidateVehicle(ctx context.Context, storeID, mk, mdl string)
}

// Input is the writable part of a vehicle.
type Input struct {
	Make      string `json:"make"`
	Model     string `json:"model"`
	YearStart int    `json:"yearStart"`
	YearEnd   int    `json:"yearEnd"`
}

// Service encapsulates local vehicle business logic.
type Service struct {
	repo       Repository
	inv        Invalidator
	yearsAhead int
	now        func() time.Time
}

// NewService returns a Service. yearsAhead bounds the latest accepted model
// year relative to the current year. inv may be nil.
func NewService(repo Repository, inv Invalidator, yearsAhead int) *Service {
	return &Service{repo: repo, inv: inv, yearsAhead: yearsAhead, now: time.Now}
}

// SetInvalidator wires the cache invalidation hook after construction.
func (s *Service) SetInvalidator(inv Invalidator) { s.inv = inv }

func (s *Service) validate(in *Input) error {
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	if in.Make == "" || in.Model == "" {
		return &compat.ValidationError{Msg: "make and model are required"}
	}
	return compat.ValidateRange(in.YearStart, in.YearEnd, s.now(), s.yearsAhead)
}

// checkOverlap fails when [start, end] intersects another stored range of
// the same make/model. excludeID skips the vehicle being updated.
func (s *Service) checkOverlap(ctx context.Context, storeID string, in Input, excludeID string) error {
	existing, err := s.repo.ListByMakeModel(ctx, storeID, in.Make, in.Model)
	if err != nil {
		return err
	}
	for _, v := range existing {
		if v.ID == excludeID {
			continue
		}
		if compat.RangesOverlap(v.YearStart, v.YearEnd, in.YearStart, in.YearEnd) {
			return &OverlapError{Existing: v}
		}
	}
	return nil
}

// Create stores a new active vehicle after validation and the overlap check.
func (s *Service) Create(ctx context.Context, storeID string, in Input) (*model.LocalVehicle, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	if err := s.checkOverlap(ctx, storeID, in, ""); err != nil {
		return nil, err
	}

	v, err := s.repo.Create(ctx, model.LocalVehicle{
		ID:        uuid.NewString(),
		StoreID:   storeID,
		Make:      in.Make,
		Model:     in.Model,
		YearStart: in.YearStart,
		YearEnd:   in.YearEnd,
		IsActive:  true,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, storeID, v.Make, v.Model)
	return v, nil
}

// Update replaces the range and identity of an existing vehicle.
func (s *Service) Update(ctx context.Context, storeID, id string, in Input) (*model.LocalVehicle, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	old, err := s.repo.Get(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOverlap(ctx, storeID, in, id); err != nil {
		return nil, err
	}

	v, err := s.repo.Update(ctx, model.LocalVehicle{
		ID:        id,
		StoreID:   storeID,
		Make:      in.Make,
		Model:     in.Model,
		YearStart: in.YearStart,
		YearEnd:   in.YearEnd,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, storeID, old.Make, old.Model)
	if old.Make != v.Make || old.Model != v.Model {
		s.invalidate(ctx, storeID, v.Make, v.Model)
	}
	return v, nil
}

// Deactivate hides a vehicle from matching without deleting it.
func (s *Service) Deactivate(ctx context.Context, storeID, id string) (*model.LocalVehicle, error) {
	v, err := s.repo.SetActive(ctx, storeID, id, false)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, storeID, v.Make, v.Model)
	return v, nil
}

// List returns every vehicle of the store.
func (s *Service) List(ctx context.Context, storeID string) ([]model.LocalVehicle, error) {
	return s.repo.List(ctx, storeID, false)
}

// Active returns the active vehicles of the store.
func (s *Service) Active(ctx context.Context, storeID string) ([]model.LocalVehicle, error) {
	return s.repo.List(ctx, storeID, true)
}

// Associate links a product to a vehicle and evicts the answers it changes.
func (s *Service) Associate(ctx context.Context, storeID, vehicleID string, productID int64) error {
	v, err := s.repo.Get(ctx, storeID, vehicleID)
	if err != nil {
		return err
	}
	if err := s.repo.Associate(ctx, storeID, vehicleID, productID); err != nil {
		return err
	}
	s.invalidate(ctx, storeID, v.Make, v.Model)
	return nil
}

// Dissociate removes a product/vehicle link.
func (s *Service) Dissociate(ctx context.Context, storeID, vehicleID string, productID int64) error {
	v, err := s.repo.Get(ctx, storeID, vehicleID)
	if err != nil {
		return err
	}
	if err := s.repo.Dissociate(ctx, storeID, vehicleID, productID); err != nil {
		return err
	}
	s.invalidate(ctx, storeID, v.Make, v.Model)
	return nil
}

// MatchingProductIDs returns the products associated with every active
// vehicle that strictly matches q.
func (s *Service) MatchingProductIDs(ctx context.Context, storeID string, q model.CompatibilityQuery) ([]int64, error) {
	candidates, err := s.repo.ListByMakeModel(ctx, storeID, q.Make, q.Model)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, v := range candidates {
		if compat.IsLocalMatch(v, q) {
			ids = append(ids, v.ID)
		}
	}
	return s.repo.ProductIDs(ctx, storeID, ids)
}

func (s *Service) invalidate(ctx context.Context, storeID, mk, mdl string) {
	if s.inv != nil {
		s.inv.InvalidateVehicle(ctx, storeID, mk, mdl)
	}
}
