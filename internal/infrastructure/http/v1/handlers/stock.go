package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"costledger/internal/core/entity"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/stock"
	"costledger/internal/infrastructure/http/v1/dto"
)

// StockReader is the read side of the stock ledger.
type StockReader interface {
	ListLedger(ctx context.Context, filter stock.LedgerFilter) ([]entity.StockLedgerEntry, error)
	ListAnomalies(ctx context.Context, filter stock.AnomalyFilter) ([]entity.StockAnomaly, error)
	Valuation(ctx context.Context, filter stock.LedgerFilter) (types.Quantity, types.Money, error)
}

// LedgerRecalculator rebuilds ledger scopes from document history.
type LedgerRecalculator interface {
	Recalculate(ctx context.Context, filter stock.RecalcFilter, progress stock.ProgressFunc) (*stock.Snapshot, error)
}

// StockHandler handles HTTP requests for the stock ledger.
type StockHandler struct {
	*BaseHandler
	reader   StockReader
	recalc   LedgerRecalculator
	progress stock.ProgressFunc
}

// NewStockHandler creates a stock ledger handler. progress may be nil.
func NewStockHandler(base *BaseHandler, reader StockReader, recalc LedgerRecalculator, progress stock.ProgressFunc) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		reader:      reader,
		recalc:      recalc,
		progress:    progress,
	}
}

// GetLedger handles GET /stock/ledger
func (h *StockHandler) GetLedger(c *gin.Context) {
	var q dto.LedgerQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.Filter()
	if err != nil {
		h.Error(c, err)
		return
	}

	rows, err := h.reader.ListLedger(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromLedgerEntries(rows)))
}

// GetValuation handles GET /stock/valuation
func (h *StockHandler) GetValuation(c *gin.Context) {
	var q dto.LedgerQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.Filter()
	if err != nil {
		h.Error(c, err)
		return
	}

	qty, value, err := h.reader.Valuation(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ValuationResponse{Quantity: qty, Value: value})
}

// GetAnomalies handles GET /stock/anomalies
func (h *StockHandler) GetAnomalies(c *gin.Context) {
	var q dto.AnomalyQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.Filter()
	if err != nil {
		h.Error(c, err)
		return
	}

	rows, err := h.reader.ListAnomalies(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows))
}

// Recalculate handles POST /stock/recalculate
func (h *StockHandler) Recalculate(c *gin.Context) {
	var req dto.RecalcRequest
	if !h.BindJSON(c, &req) {
		return
	}
	filter, err := req.Filter()
	if err != nil {
		h.Error(c, err)
		return
	}

	snap, err := h.recalc.Recalculate(c.Request.Context(), filter, h.progress)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSnapshot(snap, req.IncludeEntries))
}
