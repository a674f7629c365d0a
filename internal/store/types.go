package store

import (
	"time"

	"github.com/shopspring/decimal"

	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

// Party is a sender or recipient as supplied by the intake service.
type Party struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// LineItemDraft is one line of a cargo draft.
type LineItemDraft struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Weight    decimal.Decimal `json:"weight"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CargoDraft is the validated shipment handed over by the intake service.
type CargoDraft struct {
	WarehouseID int64           `json:"warehouse_id"`
	Sender      Party           `json:"sender"`
	Recipient   Party           `json:"recipient"`
	Description string          `json:"description"`
	LineItems   []LineItemDraft `json:"line_items"`
}

// PlaceRequest asks the allocator to put one unit into one cell.
type PlaceRequest struct {
	Operator   scope.Operator
	Scope      scope.Scope
	UnitNumber string
	Cell       model.CellAddress
	SessionID  string
}

// PlaceResult is the committed outcome of a placement.
type PlaceResult struct {
	Unit          model.CargoUnit
	Cargo         model.Cargo
	Record        model.PlacementRecord
	PreviousState model.PlacementState
}

// UnplaceRequest asks the allocator to reverse a unit's active placement.
type UnplaceRequest struct {
	Operator   scope.Operator
	Scope      scope.Scope
	UnitNumber string
}

// UnplaceResult is the committed outcome of a reversal.
type UnplaceResult struct {
	Unit          model.CargoUnit
	Cargo         model.Cargo
	Record        model.PlacementRecord
	PreviousState model.PlacementState
}

// CellState reports a cell as free or occupied by one unit.
type CellState struct {
	Address    model.CellAddress `json:"address"`
	Free       bool              `json:"free"`
	UnitNumber string            `json:"unit_number,omitempty"`
	OccupiedAt *time.Time        `json:"occupied_at,omitempty"`
}

// CargoUnits groups a cargo with a subset of its units.
type CargoUnits struct {
	Cargo model.Cargo       `json:"cargo"`
	Units []model.CargoUnit `json:"units"`
}

// Progress feeds the operator UI badges.
type Progress struct {
	AvailableCargos   int64 `json:"available_cargos"`
	FullyPlacedCargos int64 `json:"fully_placed_cargos"`
	TotalUnits        int64 `json:"total_units"`
	PlacedUnits       int64 `json:"placed_units"`
	PendingUnits      int64 `json:"pending_units"`
	PlacedByOperator  int64 `json:"placed_by_operator"`
}

// DiscrepancyKind classifies a divergence between the unit flags and the placement log.
type DiscrepancyKind string

const (
	MissingRecord   DiscrepancyKind = "missing_record"   // unit flagged placed, no active record
	OrphanRecord    DiscrepancyKind = "orphan_record"    // active record, unit not flagged
	DuplicateRecord DiscrepancyKind = "duplicate_record" // more than one active record
	CellMismatch    DiscrepancyKind = "cell_mismatch"    // occupancy or record disagrees with the unit's location
	CountMismatch   DiscrepancyKind = "count_mismatch"   // cargo rollup disagrees with unit flags
)

// Discrepancy is one integrity alarm. It is reported, never repaired automatically.
type Discrepancy struct {
	CargoID    string          `json:"cargo_id"`
	UnitNumber string          `json:"unit_number,omitempty"`
	Kind       DiscrepancyKind `json:"kind"`
	Detail     string          `json:"detail"`
}
