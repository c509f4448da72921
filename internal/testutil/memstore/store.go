// Package memstore is an in-memory implementation of every repository the
// domain packages depend on, plus a transaction manager that restores a
// snapshot on rollback. Transactions are serialized by one mutex.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/numerator"
	"costledger/internal/domain/audit"
)

type txKey struct{}

// state is everything a transaction can change.
type state struct {
	ledger      map[entity.LedgerKey]entity.StockLedgerEntry
	anomalies   []entity.StockAnomaly
	vouchers    map[id.ID]entity.JournalVoucher
	details     map[id.ID][]entity.JournalVoucherDetail
	invoices    map[id.ID]entity.Invoice
	allocations map[id.ID]entity.Allocation
	documents   map[id.ID]entity.Document
	sequences   map[string]int64
	audit       []audit.Entry
	docSeq      int64
}

func newState() *state {
	return &state{
		ledger:      make(map[entity.LedgerKey]entity.StockLedgerEntry),
		vouchers:    make(map[id.ID]entity.JournalVoucher),
		details:     make(map[id.ID][]entity.JournalVoucherDetail),
		invoices:    make(map[id.ID]entity.Invoice),
		allocations: make(map[id.ID]entity.Allocation),
		documents:   make(map[id.ID]entity.Document),
		sequences:   make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := &state{
		ledger:      maps.Clone(s.ledger),
		anomalies:   slices.Clone(s.anomalies),
		vouchers:    maps.Clone(s.vouchers),
		details:     make(map[id.ID][]entity.JournalVoucherDetail, len(s.details)),
		invoices:    maps.Clone(s.invoices),
		allocations: maps.Clone(s.allocations),
		documents:   make(map[id.ID]entity.Document, len(s.documents)),
		sequences:   maps.Clone(s.sequences),
		audit:       slices.Clone(s.audit),
		docSeq:      s.docSeq,
	}
	for k, v := range s.details {
		c.details[k] = slices.Clone(v)
	}
	for k, v := range s.documents {
		c.documents[k] = cloneDocument(v)
	}
	return c
}

func cloneDocument(d entity.Document) entity.Document {
	d.Lines = slices.Clone(d.Lines)
	return d
}

// Store holds the in-memory database.
type Store struct {
	mu sync.Mutex
	st *state

	items      map[id.ID]entity.Item
	locations  map[id.ID]entity.Location
	warehouses map[id.ID]entity.Warehouse
	gl         map[entity.AccountRole]id.ID
	locker     *ScopeLocker

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		st:         newState(),
		items:      make(map[id.ID]entity.Item),
		locations:  make(map[id.ID]entity.Location),
		warehouses: make(map[id.ID]entity.Warehouse),
		gl:         make(map[entity.AccountRole]id.ID),
		locker:     NewScopeLocker(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunInTransaction implements tx.Manager. Nested calls join the outer
// transaction; an error restores the state seen at the outermost begin.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// ReadOnly implements tx.ReadOnlyManager.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// do runs fn under the store mutex unless ctx already holds it.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

// --- reference data ---

// AddItem registers an item.
func (s *Store) AddItem(item entity.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// AddWarehouse registers a warehouse with its locations.
func (s *Store) AddWarehouse(w entity.Warehouse, locations ...id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouses[w.ID] = w
	for _, loc := range locations {
		s.locations[loc] = entity.Location{ID: loc, WarehouseID: w.ID, Code: loc.String()[:8]}
	}
}

// SetAccount maps an account role.
func (s *Store) SetAccount(role entity.AccountRole, coaID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gl[role] = coaID
}

// RemoveAccount unmaps an account role.
func (s *Store) RemoveAccount(role entity.AccountRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gl, role)
}

// GetItem implements refdata.ItemCatalog.
func (s *Store) GetItem(_ context.Context, itemID id.ID) (*entity.Item, error) {
	item, ok := s.items[itemID]
	if !ok {
		return nil, apperror.NewNotFound("item", itemID)
	}
	return &item, nil
}

// GetLocation implements refdata.LocationDirectory.
func (s *Store) GetLocation(_ context.Context, locationID id.ID) (*entity.Location, error) {
	loc, ok := s.locations[locationID]
	if !ok {
		return nil, apperror.NewNotFound("location", locationID)
	}
	return &loc, nil
}

// ListWarehouses implements refdata.LocationDirectory.
func (s *Store) ListWarehouses(context.Context) ([]entity.Warehouse, error) {
	out := slices.Collect(maps.Values(s.warehouses))
	slices.SortFunc(out, func(a, b entity.Warehouse) int { return id.Compare(a.ID, b.ID) })
	return out, nil
}

// AccountFor implements refdata.GLSettings.
func (s *Store) AccountFor(_ context.Context, role entity.AccountRole) (id.ID, bool, error) {
	coaID, ok := s.gl[role]
	return coaID, ok, nil
}

// --- scope locks, numbering, audit ---

// Locker returns the store's scope locker. Every caller wired with it
// contends on the same scopes.
func (s *Store) Locker() *ScopeLocker { return s.locker }

// GetNextNumber implements numerator.Generator inside the store transaction.
func (s *Store) GetNextNumber(ctx context.Context, cfg numerator.Config, period time.Time) (string, error) {
	var out string
	err := s.do(ctx, func(st *state) error {
		key := cfg.Key(period)
		st.sequences[key]++
		out = cfg.Format(period, st.sequences[key])
		return nil
	})
	return out, err
}

// Record implements audit.Recorder.
func (s *Store) Record(ctx context.Context, entry audit.Entry) error {
	return s.do(ctx, func(st *state) error {
		if id.IsNil(entry.ID) {
			entry.ID = id.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = s.now()
		}
		st.audit = append(st.audit, entry)
		return nil
	})
}

// AuditEntries returns recorded audit entries in insertion order.
func (s *Store) AuditEntries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.audit)
}
