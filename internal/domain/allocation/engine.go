// Package allocation applies journal lines to AP/AR invoices and keeps
// invoice paid amounts and statuses consistent with their allocations.
package allocation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/pkg/logger"
)

// Engine is the allocation engine. Every method runs in the caller's
// transaction, next to the journal line change that caused it.
type Engine struct {
	invoices    InvoiceRepository
	allocations Repository
	now         func() time.Time
}

// NewEngine creates an allocation engine.
func NewEngine(invoices InvoiceRepository, allocations Repository) *Engine {
	return &Engine{
		invoices:    invoices,
		allocations: allocations,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Allocate applies a.AllocatedAmount to the invoice.
// Fails with OverAllocation when the amount exceeds the outstanding balance.
func (e *Engine) Allocate(ctx context.Context, a entity.Allocation) error {
	amount := types.RoundMoney(a.AllocatedAmount)
	if !amount.IsPositive() {
		return apperror.NewValidation("allocation amount must be positive").
			WithDetail("invoiceId", a.InvoiceID.String())
	}

	inv, err := e.invoices.GetForUpdate(ctx, a.InvoiceID)
	if err != nil {
		return fmt.Errorf("lock invoice %s: %w", a.InvoiceID, err)
	}
	if !inv.IsOpen() {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "invoice is not posted").
			WithDetail("invoice_id", inv.ID.String()).
			WithDetail("doc_number", inv.DocNumber)
	}
	if outstanding := inv.Outstanding(); amount.GreaterThan(outstanding) {
		return apperror.NewOverAllocation(inv.ID.String(), amount, outstanding).
			WithDetail("doc_number", inv.DocNumber)
	}

	if id.IsNil(a.ID) {
		a.ID = id.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = e.now()
	}
	a.AllocatedAmount = amount
	if err := e.allocations.Insert(ctx, a); err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}

	paid := inv.PaidAmount.Add(amount)
	status := entity.DeriveInvoiceStatus(paid, inv.TotalAmount)
	if err := e.invoices.UpdateBalance(ctx, inv.ID, paid, status); err != nil {
		return fmt.Errorf("update invoice balance: %w", err)
	}

	logger.Debug(ctx, "invoice allocated",
		"invoice_id", inv.ID,
		"jv_id", a.JVID,
		"amount", amount.String(),
		"paid", paid.String(),
		"status", status,
	)
	return nil
}

// Deallocate removes one allocation and gives its amount back to the invoice.
// paid_amount never goes below zero.
func (e *Engine) Deallocate(ctx context.Context, a entity.Allocation) error {
	inv, err := e.invoices.GetForUpdate(ctx, a.InvoiceID)
	if err != nil {
		return fmt.Errorf("lock invoice %s: %w", a.InvoiceID, err)
	}
	if err := e.allocations.Delete(ctx, a.ID); err != nil {
		return fmt.Errorf("delete allocation: %w", err)
	}

	paid := inv.PaidAmount.Sub(a.AllocatedAmount)
	if paid.IsNegative() {
		logger.Warn(ctx, "invoice paid amount clamped at zero",
			"invoice_id", inv.ID,
			"paid", inv.PaidAmount.String(),
			"deallocated", a.AllocatedAmount.String(),
		)
		paid = types.Zero()
	}

	status := inv.Status
	if inv.IsOpen() {
		status = entity.DeriveInvoiceStatus(paid, inv.TotalAmount)
	}
	if err := e.invoices.UpdateBalance(ctx, inv.ID, paid, status); err != nil {
		return fmt.Errorf("update invoice balance: %w", err)
	}
	return nil
}

// ReleaseVoucher deallocates everything a voucher allocated. Invoices are
// locked in id order.
func (e *Engine) ReleaseVoucher(ctx context.Context, jvID id.ID) error {
	allocs, err := e.allocations.ListByVoucher(ctx, jvID)
	if err != nil {
		return fmt.Errorf("list allocations: %w", err)
	}
	slices.SortStableFunc(allocs, func(a, b entity.Allocation) int {
		return id.Compare(a.InvoiceID, b.InvoiceID)
	})

	for _, a := range allocs {
		if err := e.Deallocate(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// OpenInvoice makes an invoice document available for allocation.
// It keeps any paid amount already on the row.
func (e *Engine) OpenInvoice(ctx context.Context, doc *entity.Document) error {
	total := types.RoundMoney(doc.TotalAmount)
	if !total.IsPositive() {
		return apperror.NewValidation("invoice total must be positive").
			WithDetail("field", "totalAmount")
	}

	paid := types.Zero()
	existing, err := e.invoices.GetForUpdate(ctx, doc.ID)
	switch {
	case err == nil:
		paid = existing.PaidAmount
	case !apperror.IsNotFound(err):
		return fmt.Errorf("lock invoice %s: %w", doc.ID, err)
	}
	if paid.GreaterThan(total) {
		return apperror.NewOverAllocation(doc.ID.String(), paid, total)
	}

	return e.invoices.Upsert(ctx, &entity.Invoice{
		ID:          doc.ID,
		Type:        entity.InvoiceTypeFor(doc.Type),
		DocNumber:   doc.Number,
		TotalAmount: total,
		PaidAmount:  paid,
		Status:      entity.DeriveInvoiceStatus(paid, total),
		UpdatedAt:   e.now(),
	})
}

// CloseInvoice returns an invoice to draft. Allocated invoices cannot be
// closed; the error lists the vouchers holding allocations.
func (e *Engine) CloseInvoice(ctx context.Context, invoiceID id.ID) error {
	inv, err := e.invoices.GetForUpdate(ctx, invoiceID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("lock invoice %s: %w", invoiceID, err)
	}

	if inv.PaidAmount.IsPositive() {
		allocs, err := e.allocations.ListByInvoice(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("list allocations: %w", err)
		}
		vouchers := make([]string, 0, len(allocs))
		for _, a := range allocs {
			vouchers = append(vouchers, a.JVID.String())
		}
		slices.Sort(vouchers)
		return apperror.NewDependentDocuments(invoiceID.String(), slices.Compact(vouchers)).
			WithDetail("paid_amount", inv.PaidAmount.String())
	}

	return e.invoices.UpdateBalance(ctx, invoiceID, types.Zero(), entity.InvoiceDraft)
}

// GetInvoice returns an invoice balance.
func (e *Engine) GetInvoice(ctx context.Context, invoiceID id.ID) (*entity.Invoice, error) {
	return e.invoices.Get(ctx, invoiceID)
}

// ListAllocations returns an invoice's allocations.
func (e *Engine) ListAllocations(ctx context.Context, invoiceID id.ID) ([]entity.Allocation, error) {
	return e.allocations.ListByInvoice(ctx, invoiceID)
}
