package documents

import (
	"context"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/numerator"
	"costledger/internal/core/tx"
)

// DraftStore persists new documents.
type DraftStore interface {
	// Create inserts the header and lines and fills doc.Seq.
	Create(ctx context.Context, doc *entity.Document) error
}

// numberPrefixes are the document number prefixes per type.
var numberPrefixes = map[entity.DocumentType]string{
	entity.DocReceiving:           "RCV",
	entity.DocShipment:            "SHP",
	entity.DocInventoryAdjustment: "ADJ",
	entity.DocItemConversion:      "CNV",
	entity.DocLocationTransfer:    "TRF",
	entity.DocAPInvoice:           "API",
	entity.DocARInvoice:           "ARI",
	entity.DocPayment:             "PAY",
	entity.DocPurchaseOrder:       "PO",
	entity.DocSalesOrder:          "SO",
}

// Drafts registers new documents in the draft state. Documents are inputs to
// the ledger; editing them after creation is outside this service.
type Drafts struct {
	txm     tx.Manager
	store   DraftStore
	numbers numerator.Generator
	now     func() time.Time
}

// NewDrafts creates the draft registry.
func NewDrafts(txm tx.Manager, store DraftStore, numbers numerator.Generator) *Drafts {
	return &Drafts{txm: txm, store: store, numbers: numbers, now: time.Now}
}

// Create validates doc and stores it as a draft. Ids, line numbers and a
// missing document number are assigned here.
func (d *Drafts) Create(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	if _, err := entity.ParseDocumentType(string(doc.Type)); err != nil {
		return nil, err
	}
	if doc.Status != "" && doc.Status != entity.StatusDraft {
		return nil, apperror.NewValidation("new documents start as draft").
			WithDetail("status", doc.Status)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}

	now := d.now().UTC()
	if id.IsNil(doc.ID) {
		doc.ID = id.New()
	}
	doc.Status = entity.StatusDraft
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if id.IsNil(line.ID) {
			line.ID = id.New()
		}
		line.DocumentID = doc.ID
		line.LineNo = i + 1
		line.AppliedCost = nil
	}

	err := d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if doc.Number == "" {
			number, err := d.numbers.GetNextNumber(ctx, numerator.DefaultConfig(numberPrefixes[doc.Type]), doc.Date)
			if err != nil {
				return err
			}
			doc.Number = number
		}
		return d.store.Create(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
