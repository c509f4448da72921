package documents

import (
	"context"
	"fmt"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/registers/stock"
)

// History reads effective stock documents through the same readers the
// state machine uses. It is the recalculator's movement source.
type History struct {
	docs    Repository
	readers *Readers
}

var _ stock.MovementSource = (*History)(nil)

// NewHistory creates a movement source over the document store.
func NewHistory(docs Repository, readers *Readers) *History {
	return &History{docs: docs, readers: readers}
}

// EffectiveMovements implements stock.MovementSource.
func (h *History) EffectiveMovements(ctx context.Context, itemIDs []id.ID) ([][]entity.StockMovement, error) {
	docs, err := h.docs.ListEffectiveStock(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("list effective stock documents: %w", err)
	}

	out := make([][]entity.StockMovement, 0, len(docs))
	for _, doc := range docs {
		movements, err := h.readers.Movements(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("read %s %s: %w", doc.Type, doc.Number, err)
		}
		if len(movements) > 0 {
			out = append(out, movements)
		}
	}
	return out, nil
}

// ConversionLinks implements stock.MovementSource.
func (h *History) ConversionLinks(ctx context.Context) ([][]id.ID, error) {
	docs, err := h.docs.ListEffectiveConversions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list effective conversions: %w", err)
	}

	links := make([][]id.ID, 0, len(docs))
	for _, doc := range docs {
		var items []id.ID
		for _, line := range doc.Lines {
			if line.ItemID != nil {
				items = append(items, *line.ItemID)
			}
		}
		if items = id.SortedUnique(items); len(items) > 1 {
			links = append(links, items)
		}
	}
	return links, nil
}

// StockItems implements stock.MovementSource.
func (h *History) StockItems(ctx context.Context) ([]id.ID, error) {
	return h.docs.StockItems(ctx)
}
