package refdata

import (
	"context"
	"sync"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
)

// ItemMemo caches item lookups for the duration of one long-running batch.
type ItemMemo struct {
	catalog ItemCatalog

	mu    sync.Mutex
	items map[id.ID]*entity.Item
}

// NewItemMemo wraps a catalog with a per-run memo.
func NewItemMemo(catalog ItemCatalog) *ItemMemo {
	return &ItemMemo{catalog: catalog, items: make(map[id.ID]*entity.Item)}
}

// GetItem implements ItemCatalog.
func (m *ItemMemo) GetItem(ctx context.Context, itemID id.ID) (*entity.Item, error) {
	m.mu.Lock()
	item, ok := m.items[itemID]
	m.mu.Unlock()
	if ok {
		return item, nil
	}

	item, err := m.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.items[itemID] = item
	m.mu.Unlock()
	return item, nil
}
