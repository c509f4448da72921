package allocation

import (
	"context"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// InvoiceRepository persists invoice balances.
type InvoiceRepository interface {
	// Get returns an invoice or apperror NotFound.
	Get(ctx context.Context, invoiceID id.ID) (*entity.Invoice, error)

	// GetForUpdate returns an invoice with a row lock or apperror NotFound.
	GetForUpdate(ctx context.Context, invoiceID id.ID) (*entity.Invoice, error)

	// Upsert creates or replaces an invoice row.
	Upsert(ctx context.Context, inv *entity.Invoice) error

	// UpdateBalance writes paid_amount and status.
	UpdateBalance(ctx context.Context, invoiceID id.ID, paid types.Money, status entity.InvoiceStatus) error
}

// Repository persists allocations.
type Repository interface {
	Insert(ctx context.Context, a entity.Allocation) error
	Delete(ctx context.Context, allocationID id.ID) error

	// ListByVoucher returns the allocations made by a voucher's lines.
	ListByVoucher(ctx context.Context, jvID id.ID) ([]entity.Allocation, error)

	// ListByInvoice returns an invoice's allocations, oldest first.
	ListByInvoice(ctx context.Context, invoiceID id.ID) ([]entity.Allocation, error)
}
