package model

import (
	"fmt"
	"time"
)

// Warehouse is a storage site with a fixed blocks × shelves × cells topology.
type Warehouse struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	ShortNumber     int       `gorm:"uniqueIndex;not null" json:"short_number"`
	Name            string    `gorm:"size:256;not null" json:"name"`
	Blocks          int       `gorm:"not null" json:"blocks"`
	ShelvesPerBlock int       `gorm:"not null" json:"shelves_per_block"`
	CellsPerShelf   int       `gorm:"not null" json:"cells_per_shelf"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// Contains reports whether addr lies inside this warehouse's topology.
func (w Warehouse) Contains(addr CellAddress) bool {
	return addr.WarehouseID == w.ID &&
		addr.Block >= 1 && addr.Block <= w.Blocks &&
		addr.Shelf >= 1 && addr.Shelf <= w.ShelvesPerBlock &&
		addr.Cell >= 1 && addr.Cell <= w.CellsPerShelf
}

// Capacity is the total number of cells.
func (w Warehouse) Capacity() int {
	return w.Blocks * w.ShelvesPerBlock * w.CellsPerShelf
}

// CellAddress identifies one cell. All coordinates are 1-based.
type CellAddress struct {
	WarehouseID int64 `json:"warehouse_id"`
	Block       int   `json:"block"`
	Shelf       int   `json:"shelf"`
	Cell        int   `json:"cell"`
}

func (a CellAddress) String() string {
	return fmt.Sprintf("w%d:%d-%d-%d", a.WarehouseID, a.Block, a.Shelf, a.Cell)
}
