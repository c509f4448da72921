// Package documents turns business documents into stock movements and journal
// drafts, and runs the document state machine over the ledger engines.
package documents

import (
	"context"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// Repository defines document persistence used by the state machine.
type Repository interface {
	// Get returns a document with its lines, or apperror NotFound.
	Get(ctx context.Context, docID id.ID) (*entity.Document, error)

	// GetForUpdate is Get with the header row locked.
	GetForUpdate(ctx context.Context, docID id.ID) (*entity.Document, error)

	// UpdateStatus sets the status when the stored version still equals
	// version, and bumps it. Fails with ConcurrentModification otherwise.
	UpdateStatus(ctx context.Context, docID id.ID, status entity.DocumentStatus, version int) error

	// SaveAppliedCosts stores the unit cost booked per line; nil clears every line.
	SaveAppliedCosts(ctx context.Context, docID id.ID, costs map[id.ID]types.Money) error

	// ListDependents returns effective documents whose base document is docID.
	ListDependents(ctx context.Context, docID id.ID) ([]entity.Ref, error)

	// ListEffectiveStock returns effective stock documents with at least one
	// line for one of itemIDs, ordered by (doc_date, seq). Lines are loaded.
	ListEffectiveStock(ctx context.Context, itemIDs []id.ID) ([]*entity.Document, error)

	// ListEffectiveConversions returns effective item conversions with their lines.
	ListEffectiveConversions(ctx context.Context) ([]*entity.Document, error)

	// StockItems returns the distinct items on effective stock documents.
	StockItems(ctx context.Context) ([]id.ID, error)
}
