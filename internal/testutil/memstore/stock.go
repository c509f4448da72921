package memstore

import (
	"context"
	"slices"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/registers/stock"
)

// StockRepo implements stock.Repository.
type StockRepo struct{ s *Store }

// Stock returns the stock ledger repository.
func (s *Store) Stock() *StockRepo { return &StockRepo{s: s} }

var _ stock.Repository = (*StockRepo)(nil)

// GetForUpdate implements stock.Repository.
func (r *StockRepo) GetForUpdate(ctx context.Context, key entity.LedgerKey) (entity.StockLedgerEntry, bool, error) {
	var (
		entry entity.StockLedgerEntry
		found bool
	)
	err := r.s.do(ctx, func(st *state) error {
		entry, found = st.ledger[key]
		return nil
	})
	return entry, found, err
}

// Upsert implements stock.Repository.
func (r *StockRepo) Upsert(ctx context.Context, entry entity.StockLedgerEntry) error {
	return r.s.do(ctx, func(st *state) error {
		st.ledger[entry.Key()] = entry
		return nil
	})
}

// List implements stock.Repository.
func (r *StockRepo) List(ctx context.Context, filter stock.LedgerFilter) ([]entity.StockLedgerEntry, error) {
	var out []entity.StockLedgerEntry
	err := r.s.do(ctx, func(st *state) error {
		for key, e := range st.ledger {
			if !matches(filter.ItemIDs, key.ItemID) ||
				!matches(filter.WarehouseIDs, key.WarehouseID) ||
				!matches(filter.LocationIDs, key.LocationID) {
				continue
			}
			if filter.ExcludeZero && e.Quantity.IsZero() {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	stock.SortEntries(out)
	return out, err
}

// ReplaceScope implements stock.Repository.
func (r *StockRepo) ReplaceScope(ctx context.Context, scope stock.ScopeFilter, entries []entity.StockLedgerEntry) error {
	return r.s.do(ctx, func(st *state) error {
		for key := range st.ledger {
			if scope.Contains(key) {
				delete(st.ledger, key)
			}
		}
		for _, e := range entries {
			if scope.Contains(e.Key()) {
				st.ledger[e.Key()] = e
			}
		}
		return nil
	})
}

// RecordAnomalies implements stock.Repository.
func (r *StockRepo) RecordAnomalies(ctx context.Context, anomalies []entity.StockAnomaly) error {
	return r.s.do(ctx, func(st *state) error {
		st.anomalies = append(st.anomalies, anomalies...)
		return nil
	})
}

// ListAnomalies implements stock.Repository.
func (r *StockRepo) ListAnomalies(ctx context.Context, filter stock.AnomalyFilter) ([]entity.StockAnomaly, error) {
	var out []entity.StockAnomaly
	err := r.s.do(ctx, func(st *state) error {
		for i := len(st.anomalies) - 1; i >= 0; i-- {
			a := st.anomalies[i]
			if filter.ItemID != nil && a.ItemID != *filter.ItemID {
				continue
			}
			if filter.WarehouseID != nil && a.WarehouseID != *filter.WarehouseID {
				continue
			}
			if filter.DocumentID != nil && a.DocumentID != *filter.DocumentID {
				continue
			}
			out = append(out, a)
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Ledger returns every ledger row in key order.
func (s *Store) Ledger() []entity.StockLedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.StockLedgerEntry, 0, len(s.st.ledger))
	for _, e := range s.st.ledger {
		out = append(out, e)
	}
	stock.SortEntries(out)
	return out
}

// Entry returns one ledger row.
func (s *Store) Entry(key entity.LedgerKey) (entity.StockLedgerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.ledger[key]
	return e, ok
}

func matches(ids []id.ID, v id.ID) bool {
	return len(ids) == 0 || slices.Contains(ids, v)
}
