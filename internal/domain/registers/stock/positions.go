package stock

import (
	"context"
	"slices"
	"time"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
)

// ledgerStore is the PositionStore of the incremental path. Rows are locked on
// first load and written through on every save.
type ledgerStore struct {
	repo Repository
	now  time.Time
	rows map[entity.LedgerKey]Position
}

func newLedgerStore(repo Repository, now time.Time) *ledgerStore {
	return &ledgerStore{repo: repo, now: now, rows: make(map[entity.LedgerKey]Position)}
}

func (s *ledgerStore) Load(ctx context.Context, key entity.LedgerKey) (Position, error) {
	if p, ok := s.rows[key]; ok {
		return p, nil
	}
	entry, found, err := s.repo.GetForUpdate(ctx, key)
	if err != nil {
		return Position{}, err
	}
	p := Position{}
	if found {
		p = PositionOf(entry)
	}
	s.rows[key] = p
	return p, nil
}

func (s *ledgerStore) Save(ctx context.Context, key entity.LedgerKey, p Position) error {
	if err := s.repo.Upsert(ctx, EntryOf(key, p, s.now)); err != nil {
		return err
	}
	s.rows[key] = p
	return nil
}

// MemoryPositions is a PositionStore starting from an empty ledger.
// Not safe for concurrent use.
type MemoryPositions struct {
	rows map[entity.LedgerKey]Position
}

// NewMemoryPositions creates an empty in-memory ledger.
func NewMemoryPositions() *MemoryPositions {
	return &MemoryPositions{rows: make(map[entity.LedgerKey]Position)}
}

// Load implements PositionStore. Unknown rows are empty.
func (m *MemoryPositions) Load(_ context.Context, key entity.LedgerKey) (Position, error) {
	return m.rows[key], nil
}

// Save implements PositionStore.
func (m *MemoryPositions) Save(_ context.Context, key entity.LedgerKey, p Position) error {
	m.rows[key] = p
	return nil
}

// Entries returns the ledger rows accepted by keep, sorted by item, warehouse, location.
func (m *MemoryPositions) Entries(keep func(entity.LedgerKey) bool, updatedAt time.Time) []entity.StockLedgerEntry {
	out := make([]entity.StockLedgerEntry, 0, len(m.rows))
	for key, p := range m.rows {
		if keep != nil && !keep(key) {
			continue
		}
		out = append(out, EntryOf(key, p, updatedAt))
	}
	SortEntries(out)
	return out
}

// PositionOf converts a stored row to a costing position.
func PositionOf(e entity.StockLedgerEntry) Position {
	p := Position{Quantity: e.Quantity, AverageCost: e.AverageCost}
	if e.LastDocDate != nil {
		p.LastDocDate = *e.LastDocDate
	}
	return p
}

// EntryOf converts a costing position to a ledger row.
func EntryOf(key entity.LedgerKey, p Position, updatedAt time.Time) entity.StockLedgerEntry {
	e := entity.StockLedgerEntry{
		ItemID:      key.ItemID,
		WarehouseID: key.WarehouseID,
		LocationID:  key.LocationID,
		Quantity:    p.Quantity,
		AverageCost: p.AverageCost,
		UpdatedAt:   updatedAt,
	}
	if !p.LastDocDate.IsZero() {
		d := p.LastDocDate
		e.LastDocDate = &d
	}
	return e
}

// SortEntries orders rows by item, warehouse, location.
func SortEntries(entries []entity.StockLedgerEntry) {
	slices.SortFunc(entries, func(a, b entity.StockLedgerEntry) int {
		if c := id.Compare(a.ItemID, b.ItemID); c != 0 {
			return c
		}
		if c := id.Compare(a.WarehouseID, b.WarehouseID); c != 0 {
			return c
		}
		return id.Compare(a.LocationID, b.LocationID)
	})
}
