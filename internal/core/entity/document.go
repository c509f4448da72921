package entity

import (
	"context"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// DocumentType names a business document kind. The value doubles as the
// journal source_type and the audit entity type.
type DocumentType string

const (
	DocReceiving           DocumentType = "Receiving"
	DocShipment            DocumentType = "Shipment"
	DocInventoryAdjustment DocumentType = "InventoryAdjustment"
	DocItemConversion      DocumentType = "ItemConversion"
	DocLocationTransfer    DocumentType = "LocationTransfer"
	DocAPInvoice           DocumentType = "APInvoice"
	DocARInvoice           DocumentType = "ARInvoice"
	DocPayment             DocumentType = "Payment"
	DocPurchaseOrder       DocumentType = "PurchaseOrder"
	DocSalesOrder          DocumentType = "SalesOrder"
)

// StockDocumentTypes lists the document kinds that move stock, in no particular order.
var StockDocumentTypes = []DocumentType{
	DocReceiving,
	DocShipment,
	DocInventoryAdjustment,
	DocItemConversion,
	DocLocationTransfer,
}

// IsStock reports whether documents of this type produce stock movements.
func (t DocumentType) IsStock() bool {
	for _, st := range StockDocumentTypes {
		if st == t {
			return true
		}
	}
	return false
}

// IsInvoice reports whether documents of this type carry an invoice balance.
func (t DocumentType) IsInvoice() bool {
	return t == DocAPInvoice || t == DocARInvoice
}

// ParseDocumentType validates a document type name.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(s)
	switch t {
	case DocReceiving, DocShipment, DocInventoryAdjustment, DocItemConversion, DocLocationTransfer,
		DocAPInvoice, DocARInvoice, DocPayment, DocPurchaseOrder, DocSalesOrder:
		return t, nil
	}
	return "", apperror.NewValidation("unknown document type").WithDetail("type", s)
}

// DocumentStatus is the lifecycle state of a document.
// Invoices call the approved state "posted"; it is the same state.
type DocumentStatus string

const (
	StatusDraft    DocumentStatus = "draft"
	StatusApproved DocumentStatus = "approved"
	StatusClosed   DocumentStatus = "closed"
)

// IsEffective reports whether the document's side effects are in the books.
func (s DocumentStatus) IsEffective() bool {
	return s == StatusApproved || s == StatusClosed
}

// Action is a state machine edge requested by the caller.
type Action string

const (
	ActionApprove   Action = "approve"
	ActionUnapprove Action = "unapprove"
	ActionClose     Action = "close"
	ActionRepost    Action = "repost"
)

// ParseAction accepts the canonical names plus the post/unpost aliases used for invoices.
func ParseAction(s string) (Action, error) {
	switch s {
	case "approve", "post":
		return ActionApprove, nil
	case "unapprove", "unpost":
		return ActionUnapprove, nil
	case "close":
		return ActionClose, nil
	case "repost":
		return ActionRepost, nil
	}
	return "", apperror.NewValidation("unknown action").WithDetail("action", s)
}

// Target returns the status an action leads to from the given status.
func (a Action) Target(from DocumentStatus) (DocumentStatus, bool) {
	switch {
	case a == ActionApprove && from == StatusDraft:
		return StatusApproved, true
	case a == ActionUnapprove && from == StatusApproved:
		return StatusDraft, true
	case a == ActionClose && from == StatusApproved:
		return StatusClosed, true
	case a == ActionRepost && from == StatusApproved:
		return StatusApproved, true
	}
	return from, false
}

// PaymentKind distinguishes what a Payment document settles.
type PaymentKind string

const (
	PaymentAP           PaymentKind = "ap_payment"
	PaymentAR           PaymentKind = "ar_receipt"
	PaymentAPAdjustment PaymentKind = "ap_adjustment"
	PaymentARAdjustment PaymentKind = "ar_adjustment"
)

// LineRole marks conversion lines as consumed inputs or produced outputs.
type LineRole string

const (
	LineRoleNone   LineRole = ""
	LineRoleInput  LineRole = "input"
	LineRoleOutput LineRole = "output"
)

// Document is the header shared by every business document kind.
// Kind specific fields are nil or zero for kinds that do not use them.
type Document struct {
	ID     id.ID          `db:"id" json:"id"`
	Seq    int64          `db:"seq" json:"seq"`
	Type   DocumentType   `db:"doc_type" json:"type"`
	Number string         `db:"doc_number" json:"number"`
	Date   time.Time      `db:"doc_date" json:"date"`
	Status DocumentStatus `db:"status" json:"status"`

	// LocationID is the header location used by lines without their own.
	LocationID *id.ID `db:"location_id" json:"locationId,omitempty"`
	// WarehouseID, when set, constrains every resolved line location.
	WarehouseID *id.ID `db:"warehouse_id" json:"warehouseId,omitempty"`
	// DestLocationID is the transfer destination at header level.
	DestLocationID *id.ID `db:"dest_location_id" json:"destLocationId,omitempty"`

	// BaseDocumentID links to the upstream document (order, receiving, shipment).
	BaseDocumentID *id.ID `db:"base_document_id" json:"baseDocumentId,omitempty"`
	CounterpartyID *id.ID `db:"counterparty_id" json:"counterpartyId,omitempty"`

	PaymentKind PaymentKind `db:"payment_kind" json:"paymentKind,omitempty"`
	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`
	Description string      `db:"description" json:"description,omitempty"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	Lines []DocumentLine `db:"-" json:"lines"`
}

// DocumentLine is one row of a document's table part.
type DocumentLine struct {
	ID         id.ID `db:"id" json:"id"`
	DocumentID id.ID `db:"document_id" json:"documentId"`
	LineNo     int   `db:"line_no" json:"lineNo"`

	ItemID         *id.ID `db:"item_id" json:"itemId,omitempty"`
	LocationID     *id.ID `db:"location_id" json:"locationId,omitempty"`
	DestLocationID *id.ID `db:"dest_location_id" json:"destLocationId,omitempty"`

	// Quantity is signed only for inventory adjustments (negative = write-off).
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	UnitCost types.Money    `db:"unit_cost" json:"unitCost"`
	Amount   types.Money    `db:"amount" json:"amount"`
	Role     LineRole       `db:"role" json:"role,omitempty"`

	// InvoiceID is the invoice a payment line settles.
	InvoiceID *id.ID `db:"invoice_id" json:"invoiceId,omitempty"`

	// AppliedCost is the unit cost booked when the document was approved.
	// Reversal and re-posting use it instead of the current average.
	AppliedCost *types.Money `db:"applied_cost" json:"appliedCost,omitempty"`
}

// Validate checks header invariants that do not need reference data.
// Errors are apperror Validation values naming the offending field.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}

	for _, line := range d.Lines {
		if line.Quantity.IsZero() && d.Type.IsStock() {
			return apperror.NewValidation("quantity must not be zero").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
		if line.Quantity.IsNegative() && d.Type != DocInventoryAdjustment {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
	}

	return nil
}

// Line returns the line with the given id.
func (d *Document) Line(lineID id.ID) (*DocumentLine, bool) {
	for i := range d.Lines {
		if d.Lines[i].ID == lineID {
			return &d.Lines[i], true
		}
	}
	return nil, false
}

// Ref is a short reference to a document, used in error details and anomalies.
type Ref struct {
	Type   DocumentType   `db:"doc_type" json:"type"`
	ID     id.ID          `db:"id" json:"id"`
	Number string         `db:"doc_number" json:"number"`
	Status DocumentStatus `db:"status" json:"status"`
}

// Ref returns the document's short reference.
func (d *Document) Ref() Ref {
	return Ref{Type: d.Type, ID: d.ID, Number: d.Number, Status: d.Status}
}
