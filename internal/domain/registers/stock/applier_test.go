package stock

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

type fakeCatalog map[id.ID]types.Money

func (c fakeCatalog) GetItem(_ context.Context, itemID id.ID) (*entity.Item, error) {
	cost, ok := c[itemID]
	if !ok {
		return nil, apperror.NewNotFound("item", itemID)
	}
	return &entity.Item{ID: itemID, StandardCost: cost}, nil
}

type denyAll struct{}

func (denyAll) Tolerate(context.Context, NegativeStockEvent) (bool, error) { return false, nil }

var (
	itemX = id.MustParse("00000000-0000-7000-8000-000000000001")
	itemY = id.MustParse("00000000-0000-7000-8000-000000000002")
	whA   = id.MustParse("00000000-0000-7000-8000-0000000000a0")
	locA1 = id.MustParse("00000000-0000-7000-8000-0000000000a1")
	locA2 = id.MustParse("00000000-0000-7000-8000-0000000000a2")
	day   = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func move(dir entity.Direction, item, loc id.ID, qty int64, cost string, mode entity.CostMode, group int) entity.StockMovement {
	return entity.StockMovement{
		SourceType: entity.DocReceiving,
		DocumentID: id.New(),
		DocDate:    day,
		LineID:     id.New(),
		Direction:  dir,
		ItemID:     item,
		Location:   entity.ResolvedLocation{LocationID: loc, WarehouseID: whA},
		Quantity:   types.NewQuantity(qty),
		UnitCost:   types.MustMoney(cost),
		CostMode:   mode,
		Group:      group,
	}
}

func keyOf(item, loc id.ID) entity.LedgerKey {
	return entity.LedgerKey{ItemID: item, WarehouseID: whA, LocationID: loc}
}

func TestApplier_ReceiveReceiveShip(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()

	_, err := a.Apply(ctx, store, []entity.StockMovement{move(entity.DirectionIn, itemX, locA1, 10, "100", entity.CostExplicit, 0)})
	require.NoError(t, err)
	_, err = a.Apply(ctx, store, []entity.StockMovement{move(entity.DirectionIn, itemX, locA1, 5, "130", entity.CostExplicit, 0)})
	require.NoError(t, err)

	p, _ := store.Load(ctx, keyOf(itemX, locA1))
	assert.True(t, types.MustMoney("110").Equal(p.AverageCost))

	applied, err := a.Apply(ctx, store, []entity.StockMovement{move(entity.DirectionOut, itemX, locA1, 8, "0", entity.CostExplicit, 0)})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.True(t, types.MustMoney("110").Equal(applied[0].UnitCost))
	assert.True(t, types.MustMoney("880").Equal(applied[0].Value))

	p, _ = store.Load(ctx, keyOf(itemX, locA1))
	assert.Equal(t, types.NewQuantity(7), p.Quantity)
	assert.True(t, types.MustMoney("770").Equal(types.RoundMoney(p.Value())))
}

func TestApplier_TransferCarriesSourceAverage(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()
	require.NoError(t, store.Save(ctx, keyOf(itemX, locA1), pos("10", "40")))
	require.NoError(t, store.Save(ctx, keyOf(itemX, locA2), pos("10", "10")))

	// The inbound half is listed first on purpose; the applier must still
	// consume the outflow before costing the inflow.
	applied, err := a.Apply(ctx, store, []entity.StockMovement{
		move(entity.DirectionIn, itemX, locA2, 10, "0", entity.CostFromOutflows, 1),
		move(entity.DirectionOut, itemX, locA1, 10, "0", entity.CostExplicit, 1),
	})
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, entity.DirectionOut, applied[0].Movement.Direction)

	dst, _ := store.Load(ctx, keyOf(itemX, locA2))
	assert.Equal(t, types.NewQuantity(20), dst.Quantity)
	assert.True(t, types.MustMoney("25").Equal(dst.AverageCost))

	total := types.RoundMoney(dst.Value())
	assert.True(t, types.MustMoney("500").Equal(total), "system value is unchanged")
}

func TestApplier_ConversionSpreadsInputValue(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()
	require.NoError(t, store.Save(ctx, keyOf(itemX, locA1), pos("10", "30")))

	_, err := a.Apply(ctx, store, []entity.StockMovement{
		move(entity.DirectionOut, itemX, locA1, 4, "0", entity.CostExplicit, 0),
		move(entity.DirectionIn, itemY, locA1, 8, "0", entity.CostFromOutflows, 0),
	})
	require.NoError(t, err)

	out, _ := store.Load(ctx, keyOf(itemY, locA1))
	assert.Equal(t, types.NewQuantity(8), out.Quantity)
	assert.True(t, types.MustMoney("15").Equal(out.AverageCost))
}

func TestApplier_StandardCostFallback(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{itemX: types.MustMoney("12.5")}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()

	applied, err := a.Apply(ctx, store, []entity.StockMovement{
		move(entity.DirectionIn, itemX, locA1, 4, "0", entity.CostCurrentAverage, 0),
	})
	require.NoError(t, err)
	assert.True(t, types.MustMoney("12.5").Equal(applied[0].UnitCost))
	assert.True(t, types.MustMoney("50").Equal(applied[0].Value))
}

func TestApplier_NegativeStockTolerated(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()
	require.NoError(t, store.Save(ctx, keyOf(itemX, locA1), pos("2", "10")))

	applied, err := a.Apply(ctx, store, []entity.StockMovement{move(entity.DirectionOut, itemX, locA1, 5, "0", entity.CostExplicit, 0)})
	require.NoError(t, err)
	require.NotNil(t, applied[0].Anomaly)
	assert.Equal(t, types.NewQuantity(-3), applied[0].Anomaly.ResultingQty)
	assert.Equal(t, entity.AnomalyFromTransition, applied[0].Anomaly.Source)
}

func TestApplier_ReceiveAfterShortageMatchesBookedValue(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{itemX: types.MustMoney("100")}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()

	out, err := a.Apply(ctx, store, []entity.StockMovement{move(entity.DirectionOut, itemX, locA1, 5, "0", entity.CostExplicit, 0)})
	require.NoError(t, err)
	assert.True(t, types.MustMoney("500").Equal(out[0].Value), "costed at standard cost")

	in, err := a.Apply(ctx, store, []entity.StockMovement{move(entity.DirectionIn, itemX, locA1, 10, "130", entity.CostExplicit, 0)})
	require.NoError(t, err)

	p, _ := store.Load(ctx, keyOf(itemX, locA1))
	assert.Equal(t, types.NewQuantity(5), p.Quantity)
	booked := in[0].Value.Sub(out[0].Value)
	assert.True(t, booked.Equal(types.RoundMoney(p.Value())), "ledger %s, booked %s", p.Value(), booked)
}

func TestApplier_RejectsQuantityOverflow(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()
	require.NoError(t, store.Save(ctx, keyOf(itemX, locA1), Position{Quantity: types.Quantity(math.MaxInt64 - 5)}))

	_, err := a.Apply(ctx, store, []entity.StockMovement{move(entity.DirectionIn, itemX, locA1, 1, "1", entity.CostExplicit, 0)})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	p, _ := store.Load(ctx, keyOf(itemX, locA1))
	assert.Equal(t, types.Quantity(math.MaxInt64-5), p.Quantity, "row untouched")
}

func TestApplier_NegativeStockRejected(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{}, denyAll{}, entity.AnomalyFromTransition)
	store := NewMemoryPositions()

	_, err := a.Apply(ctx, store, []entity.StockMovement{move(entity.DirectionOut, itemX, locA1, 1, "0", entity.CostExplicit, 0)})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
}

func TestApplier_Backdated(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()

	late := move(entity.DirectionIn, itemX, locA1, 1, "10", entity.CostExplicit, 0)
	late.DocDate = day.AddDate(0, 0, 5)
	_, err := a.Apply(ctx, store, []entity.StockMovement{late})
	require.NoError(t, err)

	early := move(entity.DirectionOut, itemX, locA1, 3, "0", entity.CostExplicit, 0)
	applied, err := a.Apply(ctx, store, []entity.StockMovement{early})
	require.NoError(t, err)
	assert.True(t, applied[0].Backdated())
	require.NotNil(t, applied[0].Anomaly)
	assert.True(t, applied[0].Anomaly.Backdated)
	assert.Equal(t, late.DocDate, applied[0].After.LastDocDate)
}

func TestApplier_ReverseRequiresStoredCost(t *testing.T) {
	a := NewApplier(fakeCatalog{}, nil, entity.AnomalyFromTransition)

	_, err := a.Reverse(context.Background(), NewMemoryPositions(), []entity.StockMovement{
		move(entity.DirectionIn, itemX, locA1, 1, "0", entity.CostCurrentAverage, 0),
	})
	require.Error(t, err)
}

func TestApplier_ApplyThenReverse(t *testing.T) {
	ctx := context.Background()
	a := NewApplier(fakeCatalog{}, nil, entity.AnomalyFromTransition)
	store := NewMemoryPositions()
	require.NoError(t, store.Save(ctx, keyOf(itemX, locA1), pos("10", "40")))
	require.NoError(t, store.Save(ctx, keyOf(itemX, locA2), pos("6", "10")))

	movements := []entity.StockMovement{
		move(entity.DirectionOut, itemX, locA1, 4, "0", entity.CostExplicit, 1),
		move(entity.DirectionIn, itemX, locA2, 4, "0", entity.CostFromOutflows, 1),
	}
	applied, err := a.Apply(ctx, store, movements)
	require.NoError(t, err)

	stored := make([]entity.StockMovement, len(applied))
	for i := range applied {
		stored[i] = applied[i].Movement
		stored[i].UnitCost = applied[i].UnitCost
		stored[i].CostMode = entity.CostExplicit
	}
	_, err = a.Reverse(ctx, store, stored)
	require.NoError(t, err)

	src, _ := store.Load(ctx, keyOf(itemX, locA1))
	dst, _ := store.Load(ctx, keyOf(itemX, locA2))
	assert.True(t, pos("10", "40").Equal(src))
	assert.True(t, pos("6", "10").Equal(dst))
}
