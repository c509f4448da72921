package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/infrastructure/http/v1/dto"
	"costledger/internal/infrastructure/storage/postgres"
)

// JournalReader finds the voucher a document posted.
type JournalReader interface {
	GetJournal(ctx context.Context, sourceType entity.DocumentType, refID id.ID) (*entity.JournalVoucher, error)
}

// InvoiceReader reads invoice balances and their allocations.
type InvoiceReader interface {
	GetInvoice(ctx context.Context, invoiceID id.ID) (*entity.Invoice, error)
	ListAllocations(ctx context.Context, invoiceID id.ID) ([]entity.Allocation, error)
}

// AuditReader reads transition history.
type AuditReader interface {
	History(ctx context.Context, entityID id.ID, limit int) ([]postgres.AuditRow, error)
}

// LedgerHandler serves journal, invoice and audit reads.
type LedgerHandler struct {
	*BaseHandler
	journals JournalReader
	invoices InvoiceReader
	audit    AuditReader
}

// NewLedgerHandler creates the handler.
func NewLedgerHandler(base *BaseHandler, journals JournalReader, invoices InvoiceReader, audit AuditReader) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, journals: journals, invoices: invoices, audit: audit}
}

// GetJournal handles GET /journals/:type/:id
func (h *LedgerHandler) GetJournal(c *gin.Context) {
	docType, err := entity.ParseDocumentType(c.Param("type"))
	if err != nil {
		h.Error(c, err)
		return
	}
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	jv, err := h.journals.GetJournal(c.Request.Context(), docType, docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, jv)
}

// GetInvoice handles GET /invoices/:id
func (h *LedgerHandler) GetInvoice(c *gin.Context) {
	invoiceID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	inv, err := h.invoices.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, inv)
}

// ListAllocations handles GET /invoices/:id/allocations
func (h *LedgerHandler) ListAllocations(c *gin.Context) {
	invoiceID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	rows, err := h.invoices.ListAllocations(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows))
}

// GetHistory handles GET /documents/:id/history
func (h *LedgerHandler) GetHistory(c *gin.Context) {
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	rows, err := h.audit.History(c.Request.Context(), docID, h.ParseIntQuery(c, "limit", 50))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows))
}
