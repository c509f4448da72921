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
	"costledger/internal/domain/allocation"
	"costledger/internal/domain/documents"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/refdata"
	"costledger/internal/domain/registers/stock"
	"costledger/internal/testutil/memstore"
)

var (
	itemX = id.MustParse("00000000-0000-7000-8000-000000000001")
	itemY = id.MustParse("00000000-0000-7000-8000-000000000002")
	whA   = id.MustParse("00000000-0000-7000-8000-0000000000a0")
	locA  = id.MustParse("00000000-0000-7000-8000-0000000000a1")
	locB  = id.MustParse("00000000-0000-7000-8000-0000000000a2")
)

func day(n int) time.Time {
	return time.Date(2026, 3, n, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store       *memstore.Store
	readers     *documents.Readers
	stock       *stock.Service
	posting     *posting.Engine
	allocations *allocation.Engine
	tr          *documents.Transitioner
}

func newFixture(t *testing.T, policy stock.NegativeStockPolicy) *fixture {
	t.Helper()

	s := memstore.New()
	s.AddItem(entity.Item{ID: itemX, Code: "X", StandardCost: types.MustMoney("50")})
	s.AddItem(entity.Item{ID: itemY, Code: "Y"})
	s.AddWarehouse(entity.Warehouse{ID: whA, Code: "A"}, locA, locB)

	roles := []entity.AccountRole{
		entity.RoleInventory, entity.RoleAPTemp, entity.RoleCOGS, entity.RoleInventoryAdjustment,
		entity.RoleAccountsPayable, entity.RoleAccountsReceivable, entity.RoleSales, entity.RoleCash,
		entity.RoleAPAdjustment, entity.RoleARAdjustment,
	}
	for _, role := range roles {
		s.SetAccount(role, id.New())
	}

	f := &fixture{store: s}
	f.readers = documents.NewReaders(refdata.NewLocationResolver(s))
	f.stock = stock.NewService(s.Stock(), s, policy)
	f.allocations = allocation.NewEngine(s.Invoices(), s.Allocations())
	f.posting = posting.NewEngine(s.Journals(), s, f.allocations, s)
	f.tr = documents.NewTransitioner(documents.Deps{
		TxManager:   s,
		Documents:   s.Documents(),
		Readers:     f.readers,
		Stock:       f.stock,
		Locker:      s.Locker(),
		Posting:     f.posting,
		Allocations: f.allocations,
		Audit:       s,
	})
	return f
}

func (f *fixture) recalculator() *stock.Recalculator {
	history := documents.NewHistory(f.store.Documents(), f.readers)
	return stock.NewRecalculator(f.store.Stock(), history, f.store, f.store, f.store, f.store.Locker(), 2)
}

func (f *fixture) approve(t *testing.T, doc entity.Document) *documents.Result {
	t.Helper()
	res, err := f.tr.Transition(context.Background(), doc.Type, doc.ID, entity.ActionApprove)
	require.NoError(t, err)
	return res
}

func (f *fixture) transition(doc entity.Document, action entity.Action) (*documents.Result, error) {
	return f.tr.Transition(context.Background(), doc.Type, doc.ID, action)
}

func (f *fixture) position(item, loc id.ID) stock.Position {
	e, ok := f.store.Entry(entity.LedgerKey{ItemID: item, WarehouseID: whA, LocationID: loc})
	if !ok {
		return stock.Position{}
	}
	return stock.PositionOf(e)
}

func (f *fixture) assertPosition(t *testing.T, item, loc id.ID, qty int64, avg string) {
	t.Helper()
	p := f.position(item, loc)
	assert.Equal(t, types.NewQuantity(qty), p.Quantity, "quantity")
	assert.True(t, types.MustMoney(avg).Equal(p.AverageCost), "average cost %s, want %s", p.AverageCost, avg)
}

func (f *fixture) journal(t *testing.T, doc entity.Document) *entity.JournalVoucher {
	t.Helper()
	jv, err := f.posting.GetJournal(context.Background(), doc.Type, doc.ID)
	require.NoError(t, err)
	return jv
}

func ptr(v id.ID) *id.ID { return &v }

func line(item, loc id.ID, qty int64, unitCost string) entity.DocumentLine {
	return entity.DocumentLine{
		ItemID:     ptr(item),
		LocationID: ptr(loc),
		Quantity:   types.NewQuantity(qty),
		UnitCost:   types.MustMoney(unitCost),
	}
}

func (f *fixture) receiving(date time.Time, total string, lines ...entity.DocumentLine) entity.Document {
	return f.store.AddDocument(entity.Document{
		Type:        entity.DocReceiving,
		Number:      "RCV",
		Date:        date,
		TotalAmount: types.MustMoney(total),
		Lines:       lines,
	})
}

func (f *fixture) shipment(date time.Time, lines ...entity.DocumentLine) entity.Document {
	return f.store.AddDocument(entity.Document{
		Type:   entity.DocShipment,
		Number: "SHP",
		Date:   date,
		Lines:  lines,
	})
}
