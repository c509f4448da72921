package stock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
)

func TestGroupItems(t *testing.T) {
	a := id.MustParse("00000000-0000-7000-8000-000000000001")
	b := id.MustParse("00000000-0000-7000-8000-000000000002")
	c := id.MustParse("00000000-0000-7000-8000-000000000003")
	d := id.MustParse("00000000-0000-7000-8000-000000000004")

	// b is made from a, c stands alone, d is only reached through the link.
	groups := groupItems([]id.ID{b, c, a}, [][]id.ID{{a, b}, {b, d}})

	require.Len(t, groups, 2)
	assert.Equal(t, []id.ID{a, b, d}, groups[0].items)
	assert.ElementsMatch(t, []id.ID{a, b}, groups[0].targets)
	assert.Equal(t, []id.ID{c}, groups[1].items)
	assert.Equal(t, []id.ID{c}, groups[1].targets)
}

func TestDiffLedger(t *testing.T) {
	k1 := entity.LedgerKey{ItemID: itemX, WarehouseID: whA, LocationID: locA1}
	k2 := entity.LedgerKey{ItemID: itemX, WarehouseID: whA, LocationID: locA2}

	stored := []entity.StockLedgerEntry{
		EntryOf(k1, pos("10", "100"), day),
		EntryOf(k2, pos("0", "0"), day),
	}
	recalculated := []entity.StockLedgerEntry{
		EntryOf(k1, pos("10", "90"), day),
	}

	drift := diffLedger(stored, recalculated)

	require.Len(t, drift, 1)
	assert.Equal(t, k1, drift[0].Key)
}

func TestScopeFilterContains(t *testing.T) {
	f := ScopeFilter{ItemIDs: []id.ID{itemX}}
	assert.True(t, f.Contains(entity.LedgerKey{ItemID: itemX, WarehouseID: whA}))
	assert.False(t, f.Contains(entity.LedgerKey{ItemID: itemY, WarehouseID: whA}))

	f.WarehouseIDs = []id.ID{id.New()}
	assert.False(t, f.Contains(entity.LedgerKey{ItemID: itemX, WarehouseID: whA}))
}
