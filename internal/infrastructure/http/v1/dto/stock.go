package dto

import (
	"costledger/internal/core/entity"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/stock"
)

// LedgerQuery filters ledger and valuation reads.
type LedgerQuery struct {
	ItemIDs      []string `form:"itemId"`
	WarehouseIDs []string `form:"warehouseId"`
	LocationIDs  []string `form:"locationId"`
	ExcludeZero  bool     `form:"excludeZero"`
}

// Filter converts the query into a stock.LedgerFilter.
func (q LedgerQuery) Filter() (stock.LedgerFilter, error) {
	var (
		f   = stock.LedgerFilter{ExcludeZero: q.ExcludeZero}
		err error
	)
	if f.ItemIDs, err = parseIDs("itemId", q.ItemIDs); err != nil {
		return f, err
	}
	if f.WarehouseIDs, err = parseIDs("warehouseId", q.WarehouseIDs); err != nil {
		return f, err
	}
	if f.LocationIDs, err = parseIDs("locationId", q.LocationIDs); err != nil {
		return f, err
	}
	return f, nil
}

// LedgerEntryResponse adds the row value to a ledger entry.
type LedgerEntryResponse struct {
	entity.StockLedgerEntry
	Value types.Money `json:"value"`
}

// FromLedgerEntries converts ledger rows.
func FromLedgerEntries(rows []entity.StockLedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, len(rows))
	for i := range rows {
		out[i] = LedgerEntryResponse{StockLedgerEntry: rows[i], Value: rows[i].Value()}
	}
	return out
}

// ValuationResponse is the total quantity and value of the matching rows.
type ValuationResponse struct {
	Quantity types.Quantity `json:"quantity"`
	Value    types.Money    `json:"value"`
}

// AnomalyQuery filters anomaly reads.
type AnomalyQuery struct {
	ItemID      string `form:"itemId"`
	WarehouseID string `form:"warehouseId"`
	DocumentID  string `form:"documentId"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// Filter converts the query into a stock.AnomalyFilter.
func (q AnomalyQuery) Filter() (stock.AnomalyFilter, error) {
	var (
		f   = stock.AnomalyFilter{Limit: q.Limit}
		err error
	)
	if f.ItemID, err = parseOptionalID("itemId", q.ItemID); err != nil {
		return f, err
	}
	if f.WarehouseID, err = parseOptionalID("warehouseId", q.WarehouseID); err != nil {
		return f, err
	}
	if f.DocumentID, err = parseOptionalID("documentId", q.DocumentID); err != nil {
		return f, err
	}
	return f, nil
}

// RecalcRequest limits a recalculation. Empty lists rebuild everything.
type RecalcRequest struct {
	ItemIDs      []string `json:"itemIds"`
	WarehouseIDs []string `json:"warehouseIds"`
	// IncludeEntries returns the rebuilt rows, which can be large.
	IncludeEntries bool `json:"includeEntries"`
}

// Filter converts the request into a stock.RecalcFilter.
func (r RecalcRequest) Filter() (stock.RecalcFilter, error) {
	var (
		f   stock.RecalcFilter
		err error
	)
	if f.ItemIDs, err = parseIDs("itemIds", r.ItemIDs); err != nil {
		return f, err
	}
	if f.WarehouseIDs, err = parseIDs("warehouseIds", r.WarehouseIDs); err != nil {
		return f, err
	}
	return f, nil
}

// RecalcResponse summarizes a recalculation.
type RecalcResponse struct {
	Groups    int                       `json:"groups"`
	Scopes    int                       `json:"scopes"`
	Documents int                       `json:"documents"`
	Movements int                       `json:"movements"`
	Rows      int                       `json:"rows"`
	Drift     []stock.Drift             `json:"drift"`
	Anomalies []entity.StockAnomaly     `json:"anomalies"`
	ElapsedMS int64                     `json:"elapsedMs"`
	Entries   []entity.StockLedgerEntry `json:"entries,omitempty"`
}

// FromSnapshot summarizes a snapshot.
func FromSnapshot(s *stock.Snapshot, includeEntries bool) RecalcResponse {
	resp := RecalcResponse{
		Groups:    s.Groups,
		Scopes:    s.Scopes,
		Documents: s.Documents,
		Movements: s.Movements,
		Rows:      len(s.Entries),
		Drift:     s.Drift,
		Anomalies: s.Anomalies,
		ElapsedMS: s.Elapsed.Milliseconds(),
	}
	if resp.Drift == nil {
		resp.Drift = []stock.Drift{}
	}
	if resp.Anomalies == nil {
		resp.Anomalies = []entity.StockAnomaly{}
	}
	if includeEntries {
		resp.Entries = s.Entries
	}
	return resp
}
