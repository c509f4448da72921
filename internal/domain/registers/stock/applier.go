package stock

import (
	"context"
	"fmt"
	"slices"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/refdata"
)

// PositionStore loads and saves ledger positions for the applier.
// The incremental path is backed by the repository, recalculation by memory.
type PositionStore interface {
	Load(ctx context.Context, key entity.LedgerKey) (Position, error)
	Save(ctx context.Context, key entity.LedgerKey, p Position) error
}

// AppliedMovement is the outcome of one movement.
type AppliedMovement struct {
	Movement entity.StockMovement

	// UnitCost is the cost booked for the movement: the explicit or derived
	// inbound cost, or the average consumed by an outbound movement.
	UnitCost types.Money
	// Value is Quantity*UnitCost rounded to money scale.
	Value types.Money

	Before Position
	After  Position

	// Anomaly is set when the movement left the row below zero and the
	// negative stock policy tolerated it.
	Anomaly *entity.StockAnomaly
}

// Backdated reports whether the movement is older than the latest document
// already applied to its row.
func (a *AppliedMovement) Backdated() bool {
	return !a.Before.LastDocDate.IsZero() && a.Movement.DocDate.Before(a.Before.LastDocDate)
}

// Applier runs movements through the moving-average transition.
// It holds no state between calls and is safe for concurrent use.
type Applier struct {
	items  refdata.ItemCatalog
	policy NegativeStockPolicy
	source entity.AnomalySource
	now    func() time.Time
}

// NewApplier creates an applier. Anomalies it reports are tagged with source.
func NewApplier(items refdata.ItemCatalog, policy NegativeStockPolicy, source entity.AnomalySource) *Applier {
	if policy == nil {
		policy = AlwaysTolerate{}
	}
	return &Applier{
		items:  items,
		policy: policy,
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply applies one document's movements in application order: every movement
// except inflows costed from outflows first, then those inflows, so each group's
// consumed value is known before it is spread.
func (a *Applier) Apply(ctx context.Context, store PositionStore, movements []entity.StockMovement) ([]AppliedMovement, error) {
	ordered := ApplicationOrder(movements)
	flows := newGroupFlows(ordered)
	out := make([]AppliedMovement, 0, len(ordered))

	for _, m := range ordered {
		if !m.Quantity.IsPositive() {
			return nil, apperror.NewValidation("movement quantity must be positive").
				WithDetail("documentId", m.DocumentID.String()).
				WithDetail("lineNo", m.LineNo)
		}

		key := m.Key()
		before, err := store.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load position %s: %w", key.Scope(), err)
		}

		applied := AppliedMovement{Movement: m, Before: before}
		if err := checkRange(before, m, false); err != nil {
			return nil, err
		}

		switch m.Direction {
		case entity.DirectionOut:
			cost, err := a.consumedCost(ctx, m.ItemID, before)
			if err != nil {
				return nil, err
			}
			applied.UnitCost = cost
			applied.After = Issue(before, m.Quantity, cost)
			flows.consume(m.Group, m.Quantity, cost)

		case entity.DirectionIn:
			cost, err := a.inboundCost(ctx, m, before, flows)
			if err != nil {
				return nil, err
			}
			applied.UnitCost = cost
			applied.After = Receive(before, m.Quantity, cost)

		default:
			return nil, apperror.NewValidation("unknown movement direction").
				WithDetail("direction", string(m.Direction))
		}

		if m.DocDate.After(applied.After.LastDocDate) {
			applied.After.LastDocDate = m.DocDate
		}
		applied.Value = types.RoundMoney(m.Quantity.Decimal().Mul(applied.UnitCost))

		if err := a.checkNegative(ctx, &applied, false); err != nil {
			return nil, err
		}
		if err := store.Save(ctx, key, applied.After); err != nil {
			return nil, fmt.Errorf("save position %s: %w", key.Scope(), err)
		}
		out = append(out, applied)
	}

	return out, nil
}

// Reverse undoes movements previously applied, in the opposite application order.
// Every movement must carry the unit cost booked when it was applied.
// LastDocDate is left as is.
func (a *Applier) Reverse(ctx context.Context, store PositionStore, movements []entity.StockMovement) ([]AppliedMovement, error) {
	ordered := ApplicationOrder(movements)
	slices.Reverse(ordered)
	out := make([]AppliedMovement, 0, len(ordered))

	for _, m := range ordered {
		if m.CostMode != entity.CostExplicit {
			return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "reversal requires the stored line cost").
				WithDetail("documentId", m.DocumentID.String()).
				WithDetail("lineNo", m.LineNo)
		}

		key := m.Key()
		before, err := store.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load position %s: %w", key.Scope(), err)
		}

		applied := AppliedMovement{Movement: m, Before: before, UnitCost: m.UnitCost}
		if err := checkRange(before, m, true); err != nil {
			return nil, err
		}
		if m.Direction == entity.DirectionIn {
			applied.After = Unreceive(before, m.Quantity, m.UnitCost)
		} else {
			applied.After = Unissue(before, m.Quantity, m.UnitCost)
		}
		applied.Value = types.RoundMoney(m.Quantity.Decimal().Mul(m.UnitCost))

		if err := a.checkNegative(ctx, &applied, true); err != nil {
			return nil, err
		}
		if err := store.Save(ctx, key, applied.After); err != nil {
			return nil, fmt.Errorf("save position %s: %w", key.Scope(), err)
		}
		out = append(out, applied)
	}

	return out, nil
}

// checkRange rejects a movement whose resulting quantity does not fit the row.
func checkRange(p Position, m entity.StockMovement, reversal bool) error {
	var err error
	if (m.Direction == entity.DirectionIn) != reversal {
		_, err = types.AddQuantity(p.Quantity, m.Quantity)
	} else {
		_, err = types.SubQuantity(p.Quantity, m.Quantity)
	}
	if err != nil {
		return apperror.NewValidation("resulting stock quantity is out of range").
			WithDetail("documentId", m.DocumentID.String()).
			WithDetail("lineNo", m.LineNo).
			WithDetail("quantity", m.Quantity.String())
	}
	return nil
}

// ApplicationOrder returns movements in the order the applier processes them.
// Relative order is otherwise kept.
func ApplicationOrder(movements []entity.StockMovement) []entity.StockMovement {
	ordered := make([]entity.StockMovement, 0, len(movements))
	var deferred []entity.StockMovement
	for _, m := range movements {
		if m.Direction == entity.DirectionIn && m.CostMode == entity.CostFromOutflows {
			deferred = append(deferred, m)
			continue
		}
		ordered = append(ordered, m)
	}
	return append(ordered, deferred...)
}

// consumedCost is the current average, or the item's standard cost when the
// row carries no cost yet.
func (a *Applier) consumedCost(ctx context.Context, itemID id.ID, p Position) (types.Money, error) {
	if p.AverageCost.IsPositive() {
		return p.AverageCost, nil
	}
	return a.standardCost(ctx, itemID)
}

func (a *Applier) inboundCost(ctx context.Context, m entity.StockMovement, before Position, flows groupFlows) (types.Money, error) {
	switch m.CostMode {
	case entity.CostExplicit, "":
		return m.UnitCost, nil
	case entity.CostCurrentAverage:
		return a.consumedCost(ctx, m.ItemID, before)
	case entity.CostFromOutflows:
		cost, ok := flows.unitCost(m.Group)
		if !ok {
			return types.Zero(), apperror.NewValidation("inbound movement has no outflows to take its cost from").
				WithDetail("documentId", m.DocumentID.String()).
				WithDetail("group", m.Group)
		}
		return cost, nil
	}
	return types.Zero(), apperror.NewValidation("unknown cost mode").WithDetail("costMode", string(m.CostMode))
}

func (a *Applier) standardCost(ctx context.Context, itemID id.ID) (types.Money, error) {
	if a.items == nil {
		return types.Zero(), nil
	}
	item, err := a.items.GetItem(ctx, itemID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return types.Zero(), nil
		}
		return types.Zero(), fmt.Errorf("get item %s: %w", itemID, err)
	}
	return item.StandardCost, nil
}

func (a *Applier) checkNegative(ctx context.Context, applied *AppliedMovement, reversal bool) error {
	after := applied.After.Quantity
	if !after.IsNegative() {
		return nil
	}

	m := applied.Movement
	event := NegativeStockEvent{
		DocType:      m.SourceType,
		ItemID:       m.ItemID,
		WarehouseID:  m.Location.WarehouseID,
		LocationID:   m.Location.LocationID,
		ResultingQty: after,
		Backdated:    applied.Backdated(),
		Reversal:     reversal,
	}
	ok, err := a.policy.Tolerate(ctx, event)
	if err != nil {
		return fmt.Errorf("evaluate negative stock policy: %w", err)
	}
	if !ok {
		return apperror.NewInsufficientStock(m.ItemID.String(), m.Location.WarehouseID.String(), m.Quantity, applied.Before.Quantity).
			WithDetail("location_id", m.Location.LocationID.String()).
			WithDetail("document_id", m.DocumentID.String())
	}

	applied.Anomaly = &entity.StockAnomaly{
		ID:           id.New(),
		ItemID:       m.ItemID,
		WarehouseID:  m.Location.WarehouseID,
		LocationID:   m.Location.LocationID,
		DocumentType: m.SourceType,
		DocumentID:   m.DocumentID,
		LineID:       m.LineID,
		ResultingQty: after,
		Backdated:    event.Backdated,
		Source:       a.source,
		DetectedAt:   a.now(),
	}
	return nil
}

// groupFlows accumulates the value consumed by each group's outflows and the
// inbound quantity that value is spread over.
type groupFlows struct {
	value map[int]types.Money
	inQty map[int]types.Quantity
}

func newGroupFlows(movements []entity.StockMovement) groupFlows {
	f := groupFlows{value: make(map[int]types.Money), inQty: make(map[int]types.Quantity)}
	for _, m := range movements {
		if m.Direction == entity.DirectionIn && m.CostMode == entity.CostFromOutflows {
			f.inQty[m.Group] += m.Quantity
		}
	}
	return f
}

func (f groupFlows) consume(group int, qty types.Quantity, unitCost types.Money) {
	v, ok := f.value[group]
	if !ok {
		v = types.Zero()
	}
	f.value[group] = v.Add(qty.Decimal().Mul(unitCost))
}

func (f groupFlows) unitCost(group int) (types.Money, bool) {
	v, ok := f.value[group]
	qty := f.inQty[group]
	if !ok || !qty.IsPositive() {
		return types.Zero(), false
	}
	return types.RoundCost(v.Div(qty.Decimal())), true
}
