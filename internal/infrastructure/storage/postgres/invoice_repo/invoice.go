// Package invoice_repo stores invoice balances and the allocations against them.
package invoice_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/allocation"
	"costledger/internal/infrastructure/storage/postgres"
)

const invoicesTable = "invoices"

var invoiceColumns = []string{
	"id", "invoice_type", "doc_number", "total_amount", "paid_amount", "status", "updated_at",
}

// InvoiceRepo implements allocation.InvoiceRepository.
type InvoiceRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ allocation.InvoiceRepository = (*InvoiceRepo)(nil)

// NewInvoiceRepo creates the invoice repository.
func NewInvoiceRepo(txManager *postgres.TxManager) *InvoiceRepo {
	return &InvoiceRepo{txManager: txManager, builder: postgres.Builder()}
}

// Get returns an invoice.
func (r *InvoiceRepo) Get(ctx context.Context, invoiceID id.ID) (*entity.Invoice, error) {
	return r.get(ctx, invoiceID, false)
}

// GetForUpdate returns an invoice with its row locked.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*entity.Invoice, error) {
	return r.get(ctx, invoiceID, true)
}

func (r *InvoiceRepo) get(ctx context.Context, invoiceID id.ID, lock bool) (*entity.Invoice, error) {
	q := r.builder.Select(invoiceColumns...).
		From(invoicesTable).
		Where(squirrel.Eq{"id": invoiceID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var inv entity.Invoice
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &inv, sql, args...); err != nil {
		return nil, postgres.TranslateError(err, "invoice", invoiceID)
	}
	return &inv, nil
}

// Upsert creates or replaces an invoice row.
func (r *InvoiceRepo) Upsert(ctx context.Context, inv *entity.Invoice) error {
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = time.Now().UTC()
	}

	sql, args, err := r.builder.Insert(invoicesTable).
		Columns(invoiceColumns...).
		Values(inv.ID, inv.Type, inv.DocNumber, inv.TotalAmount, inv.PaidAmount, inv.Status, inv.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			invoice_type = EXCLUDED.invoice_type,
			doc_number = EXCLUDED.doc_number,
			total_amount = EXCLUDED.total_amount,
			paid_amount = EXCLUDED.paid_amount,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("upsert invoice: %w", err), "invoice", inv.ID)
	}
	return nil
}

// UpdateBalance writes paid_amount and status.
func (r *InvoiceRepo) UpdateBalance(ctx context.Context, invoiceID id.ID, paid types.Money, status entity.InvoiceStatus) error {
	sql, args, err := r.builder.Update(invoicesTable).
		Set("paid_amount", paid).
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": invoiceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("update invoice balance: %w", err), "invoice", invoiceID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("invoice", invoiceID)
	}
	return nil
}
