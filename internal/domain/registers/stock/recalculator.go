package stock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/tx"
	"costledger/internal/domain/refdata"
	"costledger/pkg/logger"
)

var tracer = otel.Tracer("costledger/stock")

// MovementSource reads the effective (approved or closed) stock document history.
type MovementSource interface {
	// EffectiveMovements returns the movements of every effective stock document
	// touching one of itemIDs, one slice per document, ordered by (doc_date, seq).
	EffectiveMovements(ctx context.Context, itemIDs []id.ID) ([][]entity.StockMovement, error)

	// ConversionLinks returns, per effective item conversion, the items it consumes and produces.
	ConversionLinks(ctx context.Context) ([][]id.ID, error)

	// StockItems returns every item that appears on an effective stock document.
	StockItems(ctx context.Context) ([]id.ID, error)
}

// RecalcFilter limits a recalculation. Empty slices mean everything.
type RecalcFilter struct {
	ItemIDs      []id.ID `json:"itemIds,omitempty"`
	WarehouseIDs []id.ID `json:"warehouseIds,omitempty"`
}

// Progress is reported after each item group is written.
type Progress struct {
	GroupsDone  int
	GroupsTotal int
	Items       int
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// Drift is a row whose stored state differs from the recalculated one.
type Drift struct {
	Key          entity.LedgerKey `json:"key"`
	Stored       Position         `json:"stored"`
	Recalculated Position         `json:"recalculated"`
}

// Snapshot is the result of a recalculation.
type Snapshot struct {
	Entries   []entity.StockLedgerEntry `json:"entries"`
	Groups    int                       `json:"groups"`
	Scopes    int                       `json:"scopes"`
	Documents int                       `json:"documents"`
	Movements int                       `json:"movements"`
	Drift     []Drift                   `json:"drift"`
	// Anomalies found while replaying. They are reported, not persisted.
	Anomalies []entity.StockAnomaly `json:"anomalies"`
	StartedAt time.Time             `json:"startedAt"`
	Elapsed   time.Duration         `json:"elapsed"`
}

// Recalculator rebuilds the stock ledger from document history.
type Recalculator struct {
	repo        Repository
	source      MovementSource
	dir         refdata.LocationDirectory
	items       refdata.ItemCatalog
	txm         tx.Manager
	locker      ScopeLocker
	parallelism int
}

// NewRecalculator creates a recalculator. parallelism bounds how many
// independent item groups are rebuilt at once.
func NewRecalculator(
	repo Repository,
	source MovementSource,
	dir refdata.LocationDirectory,
	items refdata.ItemCatalog,
	txm tx.Manager,
	locker ScopeLocker,
	parallelism int,
) *Recalculator {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Recalculator{
		repo:        repo,
		source:      source,
		dir:         dir,
		items:       items,
		txm:         txm,
		locker:      locker,
		parallelism: parallelism,
	}
}

// itemGroup is a set of items whose costs depend on each other through conversions.
// Targets are the items whose rows are rewritten.
type itemGroup struct {
	items   []id.ID
	targets []id.ID
}

// Recalculate replays the effective history of the filtered items from an empty
// ledger and replaces exactly the filtered (item, warehouse) scopes with the result.
// Each item group is written in its own transaction under the scope locks.
func (r *Recalculator) Recalculate(ctx context.Context, filter RecalcFilter, progress ProgressFunc) (*Snapshot, error) {
	startedAt := time.Now().UTC()
	ctx, span := tracer.Start(ctx, "stock.Recalculate")
	defer span.End()

	targets := id.SortedUnique(filter.ItemIDs)
	if len(targets) == 0 {
		all, err := r.source.StockItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stock items: %w", err)
		}
		targets = id.SortedUnique(all)
	}

	warehouses := id.SortedUnique(filter.WarehouseIDs)
	if len(warehouses) == 0 {
		all, err := r.dir.ListWarehouses(ctx)
		if err != nil {
			return nil, fmt.Errorf("list warehouses: %w", err)
		}
		for _, w := range all {
			warehouses = append(warehouses, w.ID)
		}
		warehouses = id.SortedUnique(warehouses)
	}

	links, err := r.source.ConversionLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversion links: %w", err)
	}
	groups := groupItems(targets, links)

	logger.Info(ctx, "recalculation started",
		"items", len(targets),
		"warehouses", len(warehouses),
		"groups", len(groups),
		"parallelism", r.parallelism,
	)
	span.SetAttributes(
		attribute.Int("recalc.items", len(targets)),
		attribute.Int("recalc.groups", len(groups)),
	)

	snap := &Snapshot{StartedAt: startedAt, Groups: len(groups)}
	var mu sync.Mutex
	done := 0
	items := 0

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.parallelism)
	for _, g := range groups {
		eg.Go(func() error {
			part, err := r.recalculateGroup(egCtx, g, warehouses, filter.WarehouseIDs, startedAt)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			snap.Entries = append(snap.Entries, part.Entries...)
			snap.Drift = append(snap.Drift, part.Drift...)
			snap.Anomalies = append(snap.Anomalies, part.Anomalies...)
			snap.Scopes += part.Scopes
			snap.Documents += part.Documents
			snap.Movements += part.Movements
			done++
			items += len(g.targets)
			if progress != nil {
				progress(Progress{GroupsDone: done, GroupsTotal: len(groups), Items: items})
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logger.Error(ctx, "recalculation failed", "error", err, "groups_done", done)
		return nil, err
	}

	SortEntries(snap.Entries)
	slices.SortFunc(snap.Drift, func(a, b Drift) int { return compareKeys(a.Key, b.Key) })
	slices.SortFunc(snap.Anomalies, func(a, b entity.StockAnomaly) int {
		return compareKeys(
			entity.LedgerKey{ItemID: a.ItemID, WarehouseID: a.WarehouseID, LocationID: a.LocationID},
			entity.LedgerKey{ItemID: b.ItemID, WarehouseID: b.WarehouseID, LocationID: b.LocationID},
		)
	})
	snap.Elapsed = time.Since(startedAt)

	logger.Info(ctx, "recalculation finished",
		"entries", len(snap.Entries),
		"documents", snap.Documents,
		"movements", snap.Movements,
		"drift", len(snap.Drift),
		"anomalies", len(snap.Anomalies),
		"elapsed", snap.Elapsed.String(),
	)
	return snap, nil
}

func (r *Recalculator) recalculateGroup(ctx context.Context, g itemGroup, warehouses, warehouseFilter []id.ID, at time.Time) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "stock.RecalculateGroup")
	defer span.End()
	span.SetAttributes(attribute.Int("recalc.group_items", len(g.items)))

	scope := ScopeFilter{ItemIDs: g.targets, WarehouseIDs: warehouseFilter}
	scopes := make([]entity.Scope, 0, len(g.targets)*len(warehouses))
	for _, itemID := range g.targets {
		for _, warehouseID := range warehouses {
			scopes = append(scopes, entity.Scope{ItemID: itemID, WarehouseID: warehouseID})
		}
	}
	scopes = NormalizeScopes(scopes)

	var release func(context.Context)
	defer func() {
		if release != nil {
			release(ctx)
		}
	}()

	part := &Snapshot{Scopes: len(scopes)}
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		release, err = r.locker.Acquire(ctx, scopes)
		if err != nil {
			return fmt.Errorf("acquire scope locks: %w", err)
		}

		docs, err := r.source.EffectiveMovements(ctx, g.items)
		if err != nil {
			return fmt.Errorf("read movements: %w", err)
		}

		memo := refdata.NewItemMemo(r.items)
		applier := NewApplier(memo, AlwaysTolerate{}, entity.AnomalyFromRecalculation)
		positions := NewMemoryPositions()
		for _, doc := range docs {
			movements := slices.DeleteFunc(slices.Clone(doc), func(m entity.StockMovement) bool {
				return !slices.Contains(g.items, m.ItemID)
			})
			if len(movements) == 0 {
				continue
			}
			applied, err := applier.Apply(ctx, positions, movements)
			if err != nil {
				return fmt.Errorf("replay document %s: %w", movements[0].DocumentID, err)
			}
			part.Documents++
			part.Movements += len(applied)
			for i := range applied {
				if a := applied[i].Anomaly; a != nil && scope.Contains(applied[i].Movement.Key()) {
					part.Anomalies = append(part.Anomalies, *a)
				}
			}
		}

		stored, err := r.repo.List(ctx, LedgerFilter{ItemIDs: g.targets, WarehouseIDs: warehouseFilter})
		if err != nil {
			return fmt.Errorf("list stored ledger: %w", err)
		}
		part.Entries = positions.Entries(scope.Contains, at)
		part.Drift = diffLedger(stored, part.Entries)
		keepUpdatedAt(stored, part.Entries)

		return r.repo.ReplaceScope(ctx, scope, part.Entries)
	})
	if err != nil {
		return nil, err
	}
	return part, nil
}

// diffLedger lists rows whose quantity or average differs. A missing row
// compares as an empty one.
func diffLedger(stored, recalculated []entity.StockLedgerEntry) []Drift {
	before := make(map[entity.LedgerKey]Position, len(stored))
	for i := range stored {
		before[stored[i].Key()] = PositionOf(stored[i])
	}
	after := make(map[entity.LedgerKey]Position, len(recalculated))
	for i := range recalculated {
		after[recalculated[i].Key()] = PositionOf(recalculated[i])
	}

	var out []Drift
	for key, p := range after {
		if old := before[key]; !old.Equal(p) {
			out = append(out, Drift{Key: key, Stored: old, Recalculated: p})
		}
	}
	for key, old := range before {
		if _, ok := after[key]; !ok && !old.Equal(Position{}) {
			out = append(out, Drift{Key: key, Stored: old})
		}
	}
	return out
}

// keepUpdatedAt carries the stored timestamp over to rows that did not change,
// so a repeated run rewrites identical rows.
func keepUpdatedAt(stored, recalculated []entity.StockLedgerEntry) {
	before := make(map[entity.LedgerKey]entity.StockLedgerEntry, len(stored))
	for i := range stored {
		before[stored[i].Key()] = stored[i]
	}
	for i := range recalculated {
		old, ok := before[recalculated[i].Key()]
		if ok && PositionOf(old).Equal(PositionOf(recalculated[i])) && sameDate(old.LastDocDate, recalculated[i].LastDocDate) {
			recalculated[i].UpdatedAt = old.UpdatedAt
		}
	}
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func compareKeys(a, b entity.LedgerKey) int {
	if c := id.Compare(a.ItemID, b.ItemID); c != 0 {
		return c
	}
	if c := id.Compare(a.WarehouseID, b.WarehouseID); c != 0 {
		return c
	}
	return id.Compare(a.LocationID, b.LocationID)
}

// groupItems partitions targets into groups of items connected by conversions.
// Each group carries every item needed to replay its targets.
func groupItems(targets []id.ID, links [][]id.ID) []itemGroup {
	parent := make(map[id.ID]id.ID)
	var find func(id.ID) id.ID
	find = func(x id.ID) id.ID {
		p, ok := parent[x]
		if !ok || p == x {
			parent[x] = x
			return x
		}
		root := find(p)
		parent[x] = root
		return root
	}
	union := func(a, b id.ID) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if id.Compare(ra, rb) < 0 {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for _, t := range targets {
		find(t)
	}
	for _, link := range links {
		for i := 1; i < len(link); i++ {
			union(link[0], link[i])
		}
	}

	members := make(map[id.ID][]id.ID)
	for x := range parent {
		root := find(x)
		members[root] = append(members[root], x)
	}

	byRoot := make(map[id.ID]*itemGroup)
	var roots []id.ID
	for _, t := range targets {
		root := find(t)
		g, ok := byRoot[root]
		if !ok {
			g = &itemGroup{items: id.SortedUnique(members[root])}
			byRoot[root] = g
			roots = append(roots, root)
		}
		g.targets = append(g.targets, t)
	}

	slices.SortFunc(roots, id.Compare)
	out := make([]itemGroup, 0, len(roots))
	for _, root := range roots {
		out = append(out, *byRoot[root])
	}
	return out
}
