package entity

import (
	"time"

	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// InvoiceType distinguishes payables from receivables.
type InvoiceType string

const (
	InvoiceAP InvoiceType = "AP"
	InvoiceAR InvoiceType = "AR"
)

// InvoiceTypeFor maps an invoice document type to its invoice type.
func InvoiceTypeFor(t DocumentType) InvoiceType {
	if t == DocARInvoice {
		return InvoiceAR
	}
	return InvoiceAP
}

// InvoiceStatus is derived from paid_amount once the invoice is posted.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoicePosted  InvoiceStatus = "posted"
	InvoicePartial InvoiceStatus = "partial"
	InvoicePaid    InvoiceStatus = "paid"
)

// Invoice carries the open balance of an AP or AR invoice document.
// Its ID is the invoice document's id.
type Invoice struct {
	ID          id.ID         `db:"id" json:"id"`
	Type        InvoiceType   `db:"invoice_type" json:"type"`
	DocNumber   string        `db:"doc_number" json:"docNumber"`
	TotalAmount types.Money   `db:"total_amount" json:"totalAmount"`
	PaidAmount  types.Money   `db:"paid_amount" json:"paidAmount"`
	Status      InvoiceStatus `db:"status" json:"status"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`
}

// Outstanding returns total minus paid.
func (i *Invoice) Outstanding() types.Money {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// IsOpen reports whether allocations may be applied.
func (i *Invoice) IsOpen() bool {
	return i.Status != InvoiceDraft
}

// DeriveInvoiceStatus computes the posted-invoice status from paid and total.
func DeriveInvoiceStatus(paid, total types.Money) InvoiceStatus {
	switch {
	case paid.Sign() <= 0:
		return InvoicePosted
	case paid.GreaterThanOrEqual(total):
		return InvoicePaid
	default:
		return InvoicePartial
	}
}

// Allocation applies part of a journal line to an invoice.
type Allocation struct {
	ID              id.ID       `db:"id" json:"id"`
	JournalLineID   id.ID       `db:"journal_line_id" json:"journalLineId"`
	JVID            id.ID       `db:"jv_id" json:"jvId"`
	InvoiceID       id.ID       `db:"invoice_id" json:"invoiceId"`
	AllocatedAmount types.Money `db:"allocated_amount" json:"allocatedAmount"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
}
