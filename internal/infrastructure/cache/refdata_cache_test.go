package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/testutil/memstore"
)

type countingProvider struct {
	*memstore.Store
	items    int
	accounts int
}

func (p *countingProvider) GetItem(ctx context.Context, itemID id.ID) (*entity.Item, error) {
	p.items++
	return p.Store.GetItem(ctx, itemID)
}

func (p *countingProvider) AccountFor(ctx context.Context, role entity.AccountRole) (id.ID, bool, error) {
	p.accounts++
	return p.Store.AccountFor(ctx, role)
}

func TestRefdataCache_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	itemID := id.New()
	s.AddItem(entity.Item{ID: itemID, Code: "X", StandardCost: types.MustMoney("5")})

	src := &countingProvider{Store: s}
	c := NewRefdataCache(src, nil)

	for range 3 {
		item, err := c.GetItem(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, "X", item.Code)
	}
	assert.Equal(t, 1, src.items)

	c.Invalidate("gl_settings")
	_, err := c.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, src.items, "other tables keep their entries")

	c.Invalidate("items")
	_, err = c.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 2, src.items)
}

func TestRefdataCache_MissingAccountIsNotCached(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	src := &countingProvider{Store: s}
	c := NewRefdataCache(src, nil)

	_, ok, err := c.AccountFor(ctx, entity.RoleCOGS)
	require.NoError(t, err)
	assert.False(t, ok)

	coa := id.New()
	s.SetAccount(entity.RoleCOGS, coa)

	got, ok, err := c.AccountFor(ctx, entity.RoleCOGS)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, coa, got)

	_, _, err = c.AccountFor(ctx, entity.RoleCOGS)
	require.NoError(t, err)
	assert.Equal(t, 2, src.accounts)
}

func TestRefdataCache_UnknownItem(t *testing.T) {
	c := NewRefdataCache(memstore.New(), nil)
	_, err := c.GetItem(context.Background(), id.New())
	assert.Error(t, err)
}
