// Package stock provides the moving-average stock ledger: the costing state
// transition, the incremental applier used by document transitions, and the
// recalculator that rebuilds the ledger from document history.
package stock

import (
	"context"
	"slices"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
)

// Repository defines operations for the stock ledger.
type Repository interface {
	// GetForUpdate returns the row with a row lock; found=false when it does not exist yet.
	GetForUpdate(ctx context.Context, key entity.LedgerKey) (entry entity.StockLedgerEntry, found bool, err error)

	// Upsert creates or replaces one row.
	Upsert(ctx context.Context, entry entity.StockLedgerEntry) error

	// List returns rows matching the filter, ordered by item, warehouse, location.
	List(ctx context.Context, filter LedgerFilter) ([]entity.StockLedgerEntry, error)

	// ReplaceScope deletes every row inside the scope and inserts entries.
	// Entries outside the scope are ignored.
	ReplaceScope(ctx context.Context, scope ScopeFilter, entries []entity.StockLedgerEntry) error

	// RecordAnomalies stores negative-stock anomalies for later reconciliation.
	RecordAnomalies(ctx context.Context, anomalies []entity.StockAnomaly) error

	// ListAnomalies returns recorded anomalies, newest first.
	ListAnomalies(ctx context.Context, filter AnomalyFilter) ([]entity.StockAnomaly, error)
}

// LedgerFilter for ledger queries. Empty slices match everything.
type LedgerFilter struct {
	ItemIDs      []id.ID
	WarehouseIDs []id.ID
	LocationIDs  []id.ID
	ExcludeZero  bool
}

// ScopeFilter selects the (item, warehouse) scopes a recalculation owns.
// An empty WarehouseIDs means every warehouse of the listed items.
type ScopeFilter struct {
	ItemIDs      []id.ID
	WarehouseIDs []id.ID
}

// Contains reports whether a ledger row belongs to the scope.
func (f ScopeFilter) Contains(key entity.LedgerKey) bool {
	if !slices.Contains(f.ItemIDs, key.ItemID) {
		return false
	}
	return len(f.WarehouseIDs) == 0 || slices.Contains(f.WarehouseIDs, key.WarehouseID)
}

// AnomalyFilter for anomaly queries.
type AnomalyFilter struct {
	ItemID      *id.ID
	WarehouseID *id.ID
	DocumentID  *id.ID
	Limit       int
}

// ScopeLocker serializes transitions and recalculation on the same (item, warehouse).
// Implementations must acquire scopes in a deterministic order.
type ScopeLocker interface {
	// Acquire blocks until every scope is held. The returned release is called
	// after the surrounding transaction finished, whatever its outcome.
	Acquire(ctx context.Context, scopes []entity.Scope) (release func(context.Context), err error)
}

// NormalizeScopes sorts scopes and drops duplicates so lock order is stable.
func NormalizeScopes(scopes []entity.Scope) []entity.Scope {
	out := slices.Clone(scopes)
	slices.SortFunc(out, func(a, b entity.Scope) int {
		if c := id.Compare(a.ItemID, b.ItemID); c != 0 {
			return c
		}
		return id.Compare(a.WarehouseID, b.WarehouseID)
	})
	return slices.Compact(out)
}

// ScopesOf returns the normalized scopes touched by movements.
func ScopesOf(movements []entity.StockMovement) []entity.Scope {
	scopes := make([]entity.Scope, 0, len(movements))
	for i := range movements {
		scopes = append(scopes, movements[i].Key().Scope())
	}
	return NormalizeScopes(scopes)
}
