// Package entity provides core domain entities.
package entity

import (
	"time"

	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// Direction defines movement direction for the stock ledger.
type Direction string

const (
	// DirectionIn increases quantity and re-weights the average cost.
	DirectionIn Direction = "IN"
	// DirectionOut decreases quantity at the current average cost.
	DirectionOut Direction = "OUT"
)

// CostMode tells the applier where an inbound movement's unit cost comes from.
type CostMode string

const (
	// CostExplicit uses Movement.UnitCost (receivings, stored historical costs).
	CostExplicit CostMode = "explicit"
	// CostCurrentAverage uses the destination's current average, then the item's standard cost.
	CostCurrentAverage CostMode = "current_average"
	// CostFromOutflows spreads the value consumed by the same Group's OUT movements.
	CostFromOutflows CostMode = "from_outflows"
)

// ResolvedLocation is a document line location after header fallback and
// warehouse lookup. It is never partially filled.
type ResolvedLocation struct {
	LocationID  id.ID `json:"locationId"`
	WarehouseID id.ID `json:"warehouseId"`
}

// LedgerKey identifies one stock ledger row.
type LedgerKey struct {
	ItemID      id.ID `db:"item_id" json:"itemId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	LocationID  id.ID `db:"location_id" json:"locationId"`
}

// Scope is the (item, warehouse) pair that serializes transitions and recalculation.
func (k LedgerKey) Scope() Scope {
	return Scope{ItemID: k.ItemID, WarehouseID: k.WarehouseID}
}

// Scope is the unit of locking and recalculation.
type Scope struct {
	ItemID      id.ID `json:"itemId"`
	WarehouseID id.ID `json:"warehouseId"`
}

// String formats the scope as "item:warehouse", used for lock keys.
func (s Scope) String() string {
	return s.ItemID.String() + ":" + s.WarehouseID.String()
}

// StockMovement is the canonical shape every transaction source reader produces.
// All fields are populated; a zero UnitCost means "no explicit cost".
type StockMovement struct {
	SourceType DocumentType `json:"sourceType"`
	DocumentID id.ID        `json:"documentId"`
	DocSeq     int64        `json:"docSeq"`
	DocDate    time.Time    `json:"docDate"`
	LineID     id.ID        `json:"lineId"`
	LineNo     int          `json:"lineNo"`

	Direction Direction        `json:"direction"`
	ItemID    id.ID            `json:"itemId"`
	Location  ResolvedLocation `json:"location"`

	// Quantity is always positive.
	Quantity types.Quantity `json:"quantity"`
	UnitCost types.Money    `json:"unitCost"`
	CostMode CostMode       `json:"costMode"`

	// Group ties OUT movements to the IN movements whose cost they fund
	// (a transfer line pair, or a conversion's inputs and outputs).
	Group int `json:"group"`
}

// Key returns the ledger row the movement affects.
func (m *StockMovement) Key() LedgerKey {
	return LedgerKey{ItemID: m.ItemID, WarehouseID: m.Location.WarehouseID, LocationID: m.Location.LocationID}
}

// SignedQuantity returns quantity with sign based on direction.
func (m *StockMovement) SignedQuantity() types.Quantity {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// StockLedgerEntry is the valued stock position of an item at one location.
type StockLedgerEntry struct {
	ItemID      id.ID          `db:"item_id" json:"itemId"`
	WarehouseID id.ID          `db:"warehouse_id" json:"warehouseId"`
	LocationID  id.ID          `db:"location_id" json:"locationId"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	AverageCost types.Money    `db:"average_cost" json:"averageCost"`

	// LastDocDate is the latest document date applied to the row.
	LastDocDate *time.Time `db:"last_doc_date" json:"lastDocDate,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// Key returns the entry's ledger key.
func (e *StockLedgerEntry) Key() LedgerKey {
	return LedgerKey{ItemID: e.ItemID, WarehouseID: e.WarehouseID, LocationID: e.LocationID}
}

// Value returns quantity multiplied by average cost, rounded to money scale.
func (e *StockLedgerEntry) Value() types.Money {
	return types.RoundMoney(e.Quantity.Decimal().Mul(e.AverageCost))
}

// AnomalySource tells where a negative stock position was detected.
type AnomalySource string

const (
	AnomalyFromTransition    AnomalySource = "transition"
	AnomalyFromRecalculation AnomalySource = "recalculation"
)

// StockAnomaly records a movement that drove a ledger row below zero.
type StockAnomaly struct {
	ID           id.ID          `db:"id" json:"id"`
	ItemID       id.ID          `db:"item_id" json:"itemId"`
	WarehouseID  id.ID          `db:"warehouse_id" json:"warehouseId"`
	LocationID   id.ID          `db:"location_id" json:"locationId"`
	DocumentType DocumentType   `db:"document_type" json:"documentType"`
	DocumentID   id.ID          `db:"document_id" json:"documentId"`
	LineID       id.ID          `db:"line_id" json:"lineId"`
	ResultingQty types.Quantity `db:"resulting_qty" json:"resultingQty"`
	Backdated    bool           `db:"backdated" json:"backdated"`
	Source       AnomalySource  `db:"source" json:"source"`
	DetectedAt   time.Time      `db:"detected_at" json:"detectedAt"`
}
