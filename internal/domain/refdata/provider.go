// Package refdata defines the read-only reference data the costing core consumes:
// items, the location to warehouse hierarchy, and GL account-role settings.
package refdata

import (
	"context"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
)

// ItemCatalog provides item master data (standard cost fallback).
type ItemCatalog interface {
	// GetItem returns apperror NotFound when the item does not exist.
	GetItem(ctx context.Context, itemID id.ID) (*entity.Item, error)
}

// LocationDirectory resolves locations to warehouses.
type LocationDirectory interface {
	// GetLocation returns apperror NotFound when the location does not exist.
	GetLocation(ctx context.Context, locationID id.ID) (*entity.Location, error)

	// ListWarehouses returns every warehouse, ordered by id.
	ListWarehouses(ctx context.Context) ([]entity.Warehouse, error)
}

// GLSettings maps logical account roles to chart-of-accounts ids.
type GLSettings interface {
	// AccountFor returns ok=false when the role has no mapping.
	AccountFor(ctx context.Context, role entity.AccountRole) (coaID id.ID, ok bool, err error)
}

// Provider bundles all reference data sources.
type Provider interface {
	ItemCatalog
	LocationDirectory
	GLSettings
}
