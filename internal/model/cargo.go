package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlacementState is the cargo-level rollup of how many of its units are placed.
type PlacementState string

const (
	StateNotPlaced       PlacementState = "not_placed"
	StatePartiallyPlaced PlacementState = "partially_placed"
	StateFullyPlaced     PlacementState = "fully_placed"
)

// DerivePlacementState is the only rule for a cargo's aggregate state.
func DerivePlacementState(placed, total int) PlacementState {
	switch {
	case placed <= 0:
		return StateNotPlaced
	case placed >= total:
		return StateFullyPlaced
	default:
		return StatePartiallyPlaced
	}
}

// CargoStatus tracks whether a cargo is still live. Cargos are never deleted.
type CargoStatus string

const (
	CargoActive    CargoStatus = "active"
	CargoWithdrawn CargoStatus = "withdrawn"
)

// Cargo is a shipment accepted at a warehouse.
type Cargo struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	DisplayNumber    string         `gorm:"uniqueIndex;size:32;not null" json:"display_number"`
	WarehouseID      int64          `gorm:"index;not null" json:"warehouse_id"`
	SenderName       string         `gorm:"size:256" json:"sender_name"`
	SenderPhone      string         `gorm:"size:64" json:"sender_phone"`
	SenderAddress    string         `gorm:"size:512" json:"sender_address"`
	RecipientName    string         `gorm:"size:256" json:"recipient_name"`
	RecipientPhone   string         `gorm:"size:64" json:"recipient_phone"`
	RecipientAddress string         `gorm:"size:512" json:"recipient_address"`
	Description      string         `gorm:"size:1024" json:"description"`
	PlacementState   PlacementState `gorm:"size:32;index;not null" json:"placement_state"`
	Status           CargoStatus    `gorm:"size:16;index;not null" json:"status"`
	TotalUnits       int            `gorm:"not null" json:"total_units"`
	PlacedUnits      int            `gorm:"not null" json:"placed_units"`
	AcceptedBy       string         `gorm:"size:64;not null" json:"accepted_by"`
	WithdrawnAt      *time.Time     `json:"withdrawn_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`

	// Associations
	LineItems []CargoLineItem `gorm:"foreignKey:CargoID" json:"line_items,omitempty"`
}

// CargoLineItem is one line of a cargo. Quantity is the number of physical units it expands into.
type CargoLineItem struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	CargoID   string          `gorm:"index;size:36;not null" json:"cargo_id"`
	Position  int             `gorm:"not null" json:"position"` // 1-based
	Name      string          `gorm:"size:256;not null" json:"name"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Weight    decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"weight"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unit_price"`

	Units []CargoUnit `gorm:"foreignKey:LineItemID" json:"units,omitempty"`
}

func (CargoLineItem) TableName() string { return "cargo_line_items" }

// CargoUnit is one individually placeable piece of a line item.
// The Location* columns are either all set or all nil.
type CargoUnit struct {
	Number              string     `gorm:"primaryKey;size:64" json:"number"`
	CargoID             string     `gorm:"index;size:36;not null" json:"cargo_id"`
	LineItemID          int64      `gorm:"index;not null" json:"line_item_id"`
	LineIndex           int        `gorm:"not null" json:"line_index"`
	UnitIndex           int        `gorm:"not null" json:"unit_index"`
	IsPlaced            bool       `gorm:"index;not null" json:"is_placed"`
	LocationWarehouseID *int64     `json:"-"`
	LocationBlock       *int       `json:"-"`
	LocationShelf       *int       `json:"-"`
	LocationCell        *int       `json:"-"`
	PlacedBy            *string    `gorm:"size:64" json:"placed_by,omitempty"`
	PlacedAt            *time.Time `json:"placed_at,omitempty"`
	CreatedAt           time.Time  `gorm:"not null" json:"created_at"`
}

func (CargoUnit) TableName() string { return "cargo_units" }

// Location returns the cell the unit is placed in, or nil.
func (u CargoUnit) Location() *CellAddress {
	if u.LocationWarehouseID == nil || u.LocationBlock == nil || u.LocationShelf == nil || u.LocationCell == nil {
		return nil
	}
	return &CellAddress{
		WarehouseID: *u.LocationWarehouseID,
		Block:       *u.LocationBlock,
		Shelf:       *u.LocationShelf,
		Cell:        *u.LocationCell,
	}
}
