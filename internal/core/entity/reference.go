package entity

import (
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// Item is read-only item master data.
type Item struct {
	ID           id.ID       `db:"id" json:"id"`
	Code         string      `db:"code" json:"code"`
	Name         string      `db:"name" json:"name"`
	StandardCost types.Money `db:"standard_cost" json:"standardCost"`
}

// Warehouse groups locations.
type Warehouse struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// Location is a storage place that belongs to exactly one warehouse.
type Location struct {
	ID          id.ID  `db:"id" json:"id"`
	WarehouseID id.ID  `db:"warehouse_id" json:"warehouseId"`
	Code        string `db:"code" json:"code"`
	Name        string `db:"name" json:"name"`
}

// Account is a chart-of-accounts entry.
type Account struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// GLSetting maps a logical account role to a chart-of-accounts id.
type GLSetting struct {
	Role  AccountRole `db:"role" json:"role"`
	COAID id.ID       `db:"coa_id" json:"coaId"`
}
