package model

import "time"

// CellOccupancy is the hot table of occupied cells. A row exists only while a unit sits in the cell.
type CellOccupancy struct {
	WarehouseID int64     `gorm:"primaryKey;autoIncrement:false"`
	Block       int       `gorm:"primaryKey;autoIncrement:false"`
	Shelf       int       `gorm:"primaryKey;autoIncrement:false"`
	Cell        int       `gorm:"primaryKey;autoIncrement:false"`
	UnitNumber  string    `gorm:"uniqueIndex;size:64;not null"`
	OccupiedAt  time.Time `gorm:"not null"`
}

// Address returns the cell this row occupies.
func (o CellOccupancy) Address() CellAddress {
	return CellAddress{WarehouseID: o.WarehouseID, Block: o.Block, Shelf: o.Shelf, Cell: o.Cell}
}

// PlacementRecord is the append-only log of allocations. A reversal stamps RevokedAt
// instead of deleting the row.
type PlacementRecord struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	UnitNumber  string     `gorm:"index;size:64;not null" json:"unit_number"`
	CargoID     string     `gorm:"index;size:36;not null" json:"cargo_id"`
	WarehouseID int64      `gorm:"not null" json:"warehouse_id"`
	Block       int        `gorm:"not null" json:"block"`
	Shelf       int        `gorm:"not null" json:"shelf"`
	Cell        int        `gorm:"not null" json:"cell"`
	OperatorID  string     `gorm:"index;size:64;not null" json:"operator_id"`
	SessionID   string     `gorm:"index;size:64;not null" json:"session_id"`
	PlacedAt    time.Time  `gorm:"index;not null" json:"placed_at"`
	RevokedAt   *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedBy   *string    `gorm:"size:64" json:"revoked_by,omitempty"`
}

// Address returns the cell the unit was placed into.
func (r PlacementRecord) Address() CellAddress {
	return CellAddress{WarehouseID: r.WarehouseID, Block: r.Block, Shelf: r.Shelf, Cell: r.Cell}
}

// Active reports whether the record has not been reversed.
func (r PlacementRecord) Active() bool {
	return r.RevokedAt == nil
}
