package documents_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/stock"
)

var (
	whB  = id.MustParse("00000000-0000-7000-8000-0000000000b0")
	locC = id.MustParse("00000000-0000-7000-8000-0000000000b1")
)

const blockedFor = 50 * time.Millisecond

func (f *fixture) addSecondWarehouse() {
	f.store.AddWarehouse(entity.Warehouse{ID: whB, Code: "B"}, locC)
}

// hold takes scope the way a concurrent worker would.
func (f *fixture) hold(t *testing.T, scopes ...entity.Scope) func(context.Context) {
	t.Helper()
	release, err := f.store.Locker().Acquire(context.Background(), scopes)
	require.NoError(t, err)
	return release
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish after the scope was released")
		return nil
	}
}

func assertBlocked(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		t.Fatalf("worker finished while its scope was held: %v", err)
	case <-time.After(blockedFor):
	}
}

func TestTransition_LocksEveryWarehouseOfTransfer(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	f.addSecondWarehouse()
	f.approve(t, f.receiving(day(1), "1000", line(itemX, locA, 10, "100")))
	f.store.Locker().Reset()

	move := line(itemX, locA, 4, "0")
	move.DestLocationID = ptr(locC)
	f.approve(t, f.store.AddDocument(entity.Document{
		Type:  entity.DocLocationTransfer,
		Date:  day(2),
		Lines: []entity.DocumentLine{move},
	}))

	acquired := f.store.Locker().Acquired()
	require.Len(t, acquired, 1)
	assert.Equal(t, []entity.Scope{
		{ItemID: itemX, WarehouseID: whA},
		{ItemID: itemX, WarehouseID: whB},
	}, acquired[0])
	assert.False(t, f.store.Locker().Held(entity.Scope{ItemID: itemX, WarehouseID: whA}), "released after commit")
	assert.False(t, f.store.Locker().Held(entity.Scope{ItemID: itemX, WarehouseID: whB}), "released after commit")

	e, ok := f.store.Entry(entity.LedgerKey{ItemID: itemX, WarehouseID: whB, LocationID: locC})
	require.True(t, ok)
	assert.Equal(t, types.NewQuantity(4), e.Quantity)
	assert.True(t, types.MustMoney("100").Equal(e.AverageCost))
}

func TestTransition_UnapproveLocksStockScopes(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	doc := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	f.approve(t, doc)
	f.store.Locker().Reset()

	_, err := f.transition(doc, entity.ActionUnapprove)
	require.NoError(t, err)

	assert.Equal(t, [][]entity.Scope{{{ItemID: itemX, WarehouseID: whA}}}, f.store.Locker().Acquired())
}

func TestTransition_WaitsForHeldScope(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	doc := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	release := f.hold(t, entity.Scope{ItemID: itemX, WarehouseID: whA})

	done := make(chan error, 1)
	go func() {
		_, err := f.transition(doc, entity.ActionApprove)
		done <- err
	}()

	assertBlocked(t, done)
	release(context.Background())
	require.NoError(t, wait(t, done))

	f.assertPosition(t, itemX, locA, 10, "100")
}

func TestTransition_OtherScopeDoesNotBlock(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	release := f.hold(t, entity.Scope{ItemID: itemY, WarehouseID: whA})
	defer release(context.Background())

	f.approve(t, f.receiving(day(1), "1000", line(itemX, locA, 10, "100")))
	f.assertPosition(t, itemX, locA, 10, "100")
}

func TestTransition_LockWaitHonoursContext(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	doc := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	release := f.hold(t, entity.Scope{ItemID: itemX, WarehouseID: whA})
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.tr.Transition(ctx, doc.Type, doc.ID, entity.ActionApprove)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stored, err := f.store.Documents().Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, stored.Status)
	assert.Empty(t, f.store.Ledger())
}

func TestRecalculate_LocksEveryWarehouseOfItem(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	f.addSecondWarehouse()
	f.approve(t, f.receiving(day(1), "1000", line(itemX, locA, 10, "100")))
	f.store.Locker().Reset()

	_, err := f.recalculator().Recalculate(context.Background(), stock.RecalcFilter{}, nil)
	require.NoError(t, err)

	var scopes []entity.Scope
	for _, set := range f.store.Locker().Acquired() {
		scopes = append(scopes, set...)
	}
	assert.Contains(t, scopes, entity.Scope{ItemID: itemX, WarehouseID: whA})
	assert.Contains(t, scopes, entity.Scope{ItemID: itemX, WarehouseID: whB})
}

func TestRecalculate_WaitsForTransitionScope(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	f.approve(t, f.receiving(day(1), "1000", line(itemX, locA, 10, "100")))
	release := f.hold(t, entity.Scope{ItemID: itemX, WarehouseID: whA})

	done := make(chan error, 1)
	go func() {
		_, err := f.recalculator().Recalculate(context.Background(), stock.RecalcFilter{}, nil)
		done <- err
	}()

	assertBlocked(t, done)
	release(context.Background())
	require.NoError(t, wait(t, done))

	f.assertPosition(t, itemX, locA, 10, "100")
}
