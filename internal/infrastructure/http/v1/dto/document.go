package dto

import (
	"time"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// CreateDocumentRequest creates a draft. Type and header fields are validated
// again by the domain; binding tags only reject malformed input early.
type CreateDocumentRequest struct {
	Type           string              `json:"type" binding:"required"`
	Number         string              `json:"number" binding:"max=64"`
	Date           time.Time           `json:"date" binding:"required"`
	LocationID     *id.ID              `json:"locationId"`
	WarehouseID    *id.ID              `json:"warehouseId"`
	DestLocationID *id.ID              `json:"destLocationId"`
	BaseDocumentID *id.ID              `json:"baseDocumentId"`
	CounterpartyID *id.ID              `json:"counterpartyId"`
	PaymentKind    string              `json:"paymentKind" binding:"omitempty,oneof=ap_payment ar_receipt ap_adjustment ar_adjustment"`
	TotalAmount    types.Money         `json:"totalAmount"`
	Description    string              `json:"description" binding:"max=1024"`
	Lines          []DocumentLineInput `json:"lines" binding:"dive"`
}

// DocumentLineInput is one line of CreateDocumentRequest.
type DocumentLineInput struct {
	ItemID         *id.ID         `json:"itemId"`
	LocationID     *id.ID         `json:"locationId"`
	DestLocationID *id.ID         `json:"destLocationId"`
	Quantity       types.Quantity `json:"quantity"`
	UnitCost       types.Money    `json:"unitCost"`
	Amount         types.Money    `json:"amount"`
	Role           string         `json:"role" binding:"omitempty,oneof=input output"`
	InvoiceID      *id.ID         `json:"invoiceId"`
}

// ToEntity maps the request onto a draft document.
func (r CreateDocumentRequest) ToEntity() (*entity.Document, error) {
	docType, err := entity.ParseDocumentType(r.Type)
	if err != nil {
		return nil, err
	}

	doc := &entity.Document{
		Type:           docType,
		Number:         r.Number,
		Date:           r.Date,
		Status:         entity.StatusDraft,
		LocationID:     r.LocationID,
		WarehouseID:    r.WarehouseID,
		DestLocationID: r.DestLocationID,
		BaseDocumentID: r.BaseDocumentID,
		CounterpartyID: r.CounterpartyID,
		PaymentKind:    entity.PaymentKind(r.PaymentKind),
		TotalAmount:    r.TotalAmount,
		Description:    r.Description,
		Lines:          make([]entity.DocumentLine, len(r.Lines)),
	}
	for i, l := range r.Lines {
		doc.Lines[i] = entity.DocumentLine{
			ItemID:         l.ItemID,
			LocationID:     l.LocationID,
			DestLocationID: l.DestLocationID,
			Quantity:       l.Quantity,
			UnitCost:       l.UnitCost,
			Amount:         l.Amount,
			Role:           entity.LineRole(l.Role),
			InvoiceID:      l.InvoiceID,
		}
	}
	return doc, nil
}
