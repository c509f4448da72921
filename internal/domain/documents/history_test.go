package documents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/stock"
)

// history approves a mixed run of stock documents in date order.
func (f *fixture) history(t *testing.T) {
	t.Helper()

	f.approve(t, f.receiving(day(1), "1000", line(itemX, locA, 10, "100")))
	f.approve(t, f.receiving(day(2), "650", line(itemX, locA, 5, "130")))

	move := line(itemX, locA, 5, "0")
	move.DestLocationID = ptr(locB)
	f.approve(t, f.store.AddDocument(entity.Document{
		Type:  entity.DocLocationTransfer,
		Date:  day(3),
		Lines: []entity.DocumentLine{move},
	}))

	in := line(itemX, locB, 2, "0")
	in.Role = entity.LineRoleInput
	out := line(itemY, locB, 4, "0")
	out.Role = entity.LineRoleOutput
	f.approve(t, f.store.AddDocument(entity.Document{
		Type:  entity.DocItemConversion,
		Date:  day(4),
		Lines: []entity.DocumentLine{in, out},
	}))

	f.approve(t, f.store.AddDocument(entity.Document{
		Type: entity.DocInventoryAdjustment,
		Date: day(5),
		Lines: []entity.DocumentLine{
			line(itemX, locA, 2, "0"),
			line(itemY, locB, -1, "0"),
		},
	}))

	f.approve(t, f.shipment(day(6), line(itemX, locA, 8, "0")))
}

func TestHistory_IncrementalMatchesRecalculated(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	f.history(t)

	f.assertPosition(t, itemX, locA, 4, "110")
	f.assertPosition(t, itemX, locB, 3, "110")
	f.assertPosition(t, itemY, locB, 3, "55")

	incremental := f.store.Ledger()

	snap, err := f.recalculator().Recalculate(context.Background(), stock.RecalcFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, snap.Drift)
	assert.Empty(t, snap.Anomalies)
	assert.Equal(t, 1, snap.Groups, "conversion links X and Y")
	assert.Equal(t, 6, snap.Documents)

	recalculated := f.store.Ledger()
	require.Len(t, recalculated, len(incremental))
	for i := range incremental {
		assert.Equal(t, incremental[i].Key(), recalculated[i].Key())
		assert.True(t, stock.PositionOf(incremental[i]).Equal(stock.PositionOf(recalculated[i])),
			"row %d differs", i)
		assert.Equal(t, incremental[i].UpdatedAt, recalculated[i].UpdatedAt, "unchanged rows keep updated_at")
	}
}

func TestHistory_RecalculationIsIdempotent(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	f.history(t)
	r := f.recalculator()

	first, err := r.Recalculate(context.Background(), stock.RecalcFilter{}, nil)
	require.NoError(t, err)
	second, err := r.Recalculate(context.Background(), stock.RecalcFilter{}, nil)
	require.NoError(t, err)

	assert.Empty(t, second.Drift)
	require.Len(t, second.Entries, len(first.Entries))
	for i := range first.Entries {
		assert.Equal(t, first.Entries[i].Key(), second.Entries[i].Key())
		assert.True(t, stock.PositionOf(first.Entries[i]).Equal(stock.PositionOf(second.Entries[i])))
		assert.Equal(t, first.Entries[i].UpdatedAt, second.Entries[i].UpdatedAt)
	}
}

func TestHistory_RecalculationRepairsDrift(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	f.history(t)
	ctx := context.Background()

	key := entity.LedgerKey{ItemID: itemX, WarehouseID: whA, LocationID: locA}
	broken, ok := f.store.Entry(key)
	require.True(t, ok)
	broken.AverageCost = types.MustMoney("999")
	require.NoError(t, f.store.Stock().Upsert(ctx, broken))

	var progress []stock.Progress
	snap, err := f.recalculator().Recalculate(ctx, stock.RecalcFilter{ItemIDs: []id.ID{itemX}}, func(p stock.Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	require.Len(t, snap.Drift, 1)
	assert.Equal(t, key, snap.Drift[0].Key)
	assert.True(t, types.MustMoney("999").Equal(snap.Drift[0].Stored.AverageCost))
	require.NotEmpty(t, progress)
	assert.Equal(t, progress[len(progress)-1].GroupsTotal, progress[len(progress)-1].GroupsDone)

	f.assertPosition(t, itemX, locA, 4, "110")
}

func TestHistory_UnapprovedDocumentsAreIgnored(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	f.approve(t, f.receiving(day(1), "1000", line(itemX, locA, 10, "100")))
	ship := f.shipment(day(2), line(itemX, locA, 4, "0"))
	f.approve(t, ship)
	_, err := f.transition(ship, entity.ActionUnapprove)
	require.NoError(t, err)

	snap, err := f.recalculator().Recalculate(context.Background(), stock.RecalcFilter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Documents)
	assert.Empty(t, snap.Drift)
	f.assertPosition(t, itemX, locA, 10, "100")
}
