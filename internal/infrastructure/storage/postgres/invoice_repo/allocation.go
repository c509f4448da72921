package invoice_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/allocation"
	"costledger/internal/infrastructure/storage/postgres"
)

const allocationsTable = "invoice_allocations"

var allocationColumns = []string{
	"id", "journal_line_id", "jv_id", "invoice_id", "allocated_amount", "created_at",
}

// AllocationRepo implements allocation.Repository.
type AllocationRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ allocation.Repository = (*AllocationRepo)(nil)

// NewAllocationRepo creates the allocation repository.
func NewAllocationRepo(txManager *postgres.TxManager) *AllocationRepo {
	return &AllocationRepo{txManager: txManager, builder: postgres.Builder()}
}

// Insert stores one allocation.
func (r *AllocationRepo) Insert(ctx context.Context, a entity.Allocation) error {
	sql, args, err := r.builder.Insert(allocationsTable).
		Columns(allocationColumns...).
		Values(a.ID, a.JournalLineID, a.JVID, a.InvoiceID, a.AllocatedAmount, a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("allocation", "id", a.ID.String()).WithCause(err)
		}
		return postgres.TranslateError(fmt.Errorf("insert allocation: %w", err), "allocation", a.ID)
	}
	return nil
}

// Delete removes one allocation.
func (r *AllocationRepo) Delete(ctx context.Context, allocationID id.ID) error {
	sql, args, err := r.builder.Delete(allocationsTable).Where(squirrel.Eq{"id": allocationID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("delete allocation: %w", err), "allocation", allocationID)
	}
	return nil
}

// ListByVoucher returns the allocations made by a voucher's lines.
func (r *AllocationRepo) ListByVoucher(ctx context.Context, jvID id.ID) ([]entity.Allocation, error) {
	return r.list(ctx, squirrel.Eq{"jv_id": jvID})
}

// ListByInvoice returns an invoice's allocations, oldest first.
func (r *AllocationRepo) ListByInvoice(ctx context.Context, invoiceID id.ID) ([]entity.Allocation, error) {
	return r.list(ctx, squirrel.Eq{"invoice_id": invoiceID})
}

func (r *AllocationRepo) list(ctx context.Context, where squirrel.Eq) ([]entity.Allocation, error) {
	sql, args, err := r.builder.Select(allocationColumns...).
		From(allocationsTable).
		Where(where).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []entity.Allocation
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return out, nil
}
