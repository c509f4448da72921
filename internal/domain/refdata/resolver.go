package refdata

import (
	"context"
	"fmt"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
)

// LocationResolver turns the nullable line/header location pair into a
// ResolvedLocation once per line, before any ledger mutation.
type LocationResolver struct {
	dir LocationDirectory
}

// NewLocationResolver creates a resolver over a location directory.
func NewLocationResolver(dir LocationDirectory) *LocationResolver {
	return &LocationResolver{dir: dir}
}

// Resolve picks the line location, falling back to the header location.
// When warehouseID is set, the resolved location must belong to it.
func (r *LocationResolver) Resolve(ctx context.Context, lineLocation, headerLocation, warehouseID *id.ID) (entity.ResolvedLocation, error) {
	locationID := lineLocation
	if locationID == nil || id.IsNil(*locationID) {
		locationID = headerLocation
	}
	if locationID == nil || id.IsNil(*locationID) {
		return entity.ResolvedLocation{}, apperror.NewValidation("location is required").
			WithDetail("field", "locationId")
	}

	loc, err := r.dir.GetLocation(ctx, *locationID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return entity.ResolvedLocation{}, apperror.NewValidation("unknown location").
				WithDetail("locationId", locationID.String())
		}
		return entity.ResolvedLocation{}, fmt.Errorf("get location %s: %w", locationID, err)
	}

	if warehouseID != nil && !id.IsNil(*warehouseID) && loc.WarehouseID != *warehouseID {
		return entity.ResolvedLocation{}, apperror.NewValidation("location belongs to another warehouse").
			WithDetail("locationId", loc.ID.String()).
			WithDetail("warehouseId", warehouseID.String())
	}

	return entity.ResolvedLocation{LocationID: loc.ID, WarehouseID: loc.WarehouseID}, nil
}
