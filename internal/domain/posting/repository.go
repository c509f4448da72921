package posting

import (
	"context"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
)

// Repository defines persistence for journal vouchers.
type Repository interface {
	// GetBySource returns the voucher of a source document with a row lock,
	// or apperror NotFound. Details are not loaded.
	GetBySource(ctx context.Context, sourceType entity.DocumentType, refID id.ID) (*entity.JournalVoucher, error)

	// GetByID returns a voucher header or apperror NotFound.
	GetByID(ctx context.Context, jvID id.ID) (*entity.JournalVoucher, error)

	// Create inserts a voucher header.
	Create(ctx context.Context, jv *entity.JournalVoucher) error

	// UpdateHeader rewrites date, description, status and updated_at.
	UpdateHeader(ctx context.Context, jv *entity.JournalVoucher) error

	// DeleteDetails removes every detail line of a voucher.
	DeleteDetails(ctx context.Context, jvID id.ID) error

	// InsertDetails inserts detail lines.
	InsertDetails(ctx context.Context, details []entity.JournalVoucherDetail) error

	// Delete removes a voucher header. Details must be gone.
	Delete(ctx context.Context, jvID id.ID) error

	// GetDetails returns detail lines ordered by line_no.
	GetDetails(ctx context.Context, jvID id.ID) ([]entity.JournalVoucherDetail, error)
}

// Allocator applies journal lines to invoices.
// Implemented by the allocation engine.
type Allocator interface {
	Allocate(ctx context.Context, a entity.Allocation) error

	// ReleaseVoucher deallocates every allocation made by a voucher's lines.
	ReleaseVoucher(ctx context.Context, jvID id.ID) error
}
