package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

// lockCargo loads a cargo for update. Placements of one cargo serialize on this
// row so the placed_units rollup is never lost. sqlite ignores the locking clause
// and serializes writers on its own.
func lockCargo(tx *gorm.DB, id string) (model.Cargo, error) {
	var cargo model.Cargo
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&cargo).Error
	if err != nil {
		if isNotFound(err) {
			return model.Cargo{}, apperr.NotFound("cargo %s not found", id)
		}
		return model.Cargo{}, fmt.Errorf("failed to lock cargo %s: %w", id, err)
	}
	return cargo, nil
}

// recomputeCargo derives the aggregate state from the unit flags and stores it.
func recomputeCargo(tx *gorm.DB, cargo model.Cargo, now time.Time) (model.Cargo, error) {
	var placed int64
	if err := tx.Model(&model.CargoUnit{}).
		Where("cargo_id = ? AND is_placed = ?", cargo.ID, true).
		Count(&placed).Error; err != nil {
		return model.Cargo{}, fmt.Errorf("failed to count placed units of cargo %s: %w", cargo.ID, err)
	}

	cargo.PlacedUnits = int(placed)
	cargo.PlacementState = model.DerivePlacementState(cargo.PlacedUnits, cargo.TotalUnits)
	cargo.UpdatedAt = now
	if err := tx.Model(&model.Cargo{}).Where("id = ?", cargo.ID).Updates(map[string]any{
		"placed_units":    cargo.PlacedUnits,
		"placement_state": cargo.PlacementState,
		"updated_at":      now,
	}).Error; err != nil {
		return model.Cargo{}, fmt.Errorf("failed to update state of cargo %s: %w", cargo.ID, err)
	}
	return cargo, nil
}

func clearedLocation() map[string]any {
	return map[string]any{
		"is_placed":             false,
		"location_warehouse_id": nil,
		"location_block":        nil,
		"location_shelf":        nil,
		"location_cell":         nil,
		"placed_by":             nil,
		"placed_at":             nil,
	}
}

func alreadyPlaced(unit model.CargoUnit) *apperr.Error {
	e := apperr.Conflict("unit %s is already placed", unit.Number).With("unit_number", unit.Number)
	if loc := unit.Location(); loc != nil {
		e.With("location", *loc)
	}
	if unit.PlacedBy != nil {
		e.With("placed_by", *unit.PlacedBy)
	}
	if unit.PlacedAt != nil {
		e.With("placed_at", *unit.PlacedAt)
	}
	return e
}

// Place puts one unit into one free cell.
//
// The cell claim is a single INSERT ... ON CONFLICT DO NOTHING on the occupancy
// table keyed by the cell address: of N concurrent callers exactly one inserts
// the row, the rest see zero affected rows and get Conflict. The unit flags, the
// placement record and the cargo rollup are written in the same transaction.
func (s *gormStore) Place(ctx context.Context, req PlaceRequest) (PlaceResult, error) {
	number := strings.TrimSpace(req.UnitNumber)
	if number == "" {
		return PlaceResult{}, apperr.InvalidArgument("unit number is required")
	}
	if strings.TrimSpace(req.Operator.ID) == "" {
		return PlaceResult{}, apperr.InvalidArgument("operator id is required")
	}
	if err := req.Scope.RequireWrite(req.Cell.WarehouseID); err != nil {
		return PlaceResult{}, err
	}

	unit, err := s.Unit(ctx, req.Scope, number)
	if err != nil {
		return PlaceResult{}, err
	}
	if unit.IsPlaced {
		return PlaceResult{}, alreadyPlaced(unit)
	}

	if _, err := s.validateAddress(ctx, req.Cell); err != nil {
		return PlaceResult{}, err
	}

	var result PlaceResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cargo, err := lockCargo(tx, unit.CargoID)
		if err != nil {
			return err
		}
		if cargo.Status == model.CargoWithdrawn {
			return apperr.Conflict("cargo %s is withdrawn", cargo.ID).With("cargo_id", cargo.ID)
		}
		if cargo.WarehouseID != req.Cell.WarehouseID {
			return apperr.InvalidArgument("unit %s belongs to warehouse %d, cell is in warehouse %d",
				number, cargo.WarehouseID, req.Cell.WarehouseID)
		}
		result.PreviousState = cargo.PlacementState

		now := s.now()
		occ := model.CellOccupancy{
			WarehouseID: req.Cell.WarehouseID,
			Block:       req.Cell.Block,
			Shelf:       req.Cell.Shelf,
			Cell:        req.Cell.Cell,
			UnitNumber:  number,
			OccupiedAt:  now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&occ)
		if res.Error != nil {
			return fmt.Errorf("failed to claim cell %s: %w", req.Cell, res.Error)
		}
		if res.RowsAffected == 0 {
			return claimConflict(tx, req.Cell, number)
		}

		upd := tx.Model(&model.CargoUnit{}).
			Where("number = ? AND is_placed = ?", number, false).
			Updates(map[string]any{
				"is_placed":             true,
				"location_warehouse_id": req.Cell.WarehouseID,
				"location_block":        req.Cell.Block,
				"location_shelf":        req.Cell.Shelf,
				"location_cell":         req.Cell.Cell,
				"placed_by":             req.Operator.ID,
				"placed_at":             now,
			})
		if upd.Error != nil {
			return fmt.Errorf("failed to mark unit %s placed: %w", number, upd.Error)
		}
		if upd.RowsAffected == 0 {
			return apperr.Conflict("unit %s is already placed", number).With("unit_number", number)
		}

		record := model.PlacementRecord{
			UnitNumber:  number,
			CargoID:     cargo.ID,
			WarehouseID: req.Cell.WarehouseID,
			Block:       req.Cell.Block,
			Shelf:       req.Cell.Shelf,
			Cell:        req.Cell.Cell,
			OperatorID:  req.Operator.ID,
			SessionID:   req.SessionID,
			PlacedAt:    now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to append placement record for unit %s: %w", number, err)
		}

		if err := tx.Where("number = ?", number).First(&result.Unit).Error; err != nil {
			return fmt.Errorf("failed to reload unit %s: %w", number, err)
		}
		result.Record = record
		result.Cargo, err = recomputeCargo(tx, cargo, now)
		return err
	})
	if err != nil {
		return PlaceResult{}, err
	}
	return result, nil
}

// claimConflict explains a lost cell claim: either the cell is taken or the unit
// already holds another cell.
func claimConflict(tx *gorm.DB, addr model.CellAddress, number string) error {
	var occupant model.CellOccupancy
	err := tx.Where("warehouse_id = ? AND block = ? AND shelf = ? AND cell = ?",
		addr.WarehouseID, addr.Block, addr.Shelf, addr.Cell).First(&occupant).Error
	switch {
	case err == nil:
		return apperr.Conflict("cell %d-%d-%d is occupied by unit %s", addr.Block, addr.Shelf, addr.Cell, occupant.UnitNumber).
			With("cell", addr).
			With("occupied_by", occupant.UnitNumber)
	case !isNotFound(err):
		return fmt.Errorf("failed to read occupant of %s: %w", addr, err)
	}

	var held model.CellOccupancy
	if err := tx.Where("unit_number = ?", number).First(&held).Error; err == nil {
		return apperr.Conflict("unit %s is already placed", number).
			With("unit_number", number).
			With("location", held.Address())
	}
	return apperr.Conflict("unit %s is already placed", number).With("unit_number", number)
}

// Unplace reverses a unit's active placement: the cell is released, the unit's
// placement fields are cleared and the record is revoked, all in one transaction.
// A missing occupancy row or record is an Integrity error and nothing is changed.
func (s *gormStore) Unplace(ctx context.Context, req UnplaceRequest) (UnplaceResult, error) {
	number := strings.TrimSpace(req.UnitNumber)
	if number == "" {
		return UnplaceResult{}, apperr.InvalidArgument("unit number is required")
	}

	unit, err := s.Unit(ctx, req.Scope, number)
	if err != nil {
		return UnplaceResult{}, err
	}
	loc := unit.Location()
	if !unit.IsPlaced || loc == nil {
		return UnplaceResult{}, apperr.Conflict("unit %s is not placed", number).With("unit_number", number)
	}
	if err := req.Scope.RequireWrite(loc.WarehouseID); err != nil {
		return UnplaceResult{}, err
	}

	var result UnplaceResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cargo, err := lockCargo(tx, unit.CargoID)
		if err != nil {
			return err
		}
		result.PreviousState = cargo.PlacementState
		now := s.now()

		upd := tx.Model(&model.CargoUnit{}).
			Where("number = ? AND is_placed = ?", number, true).
			Updates(clearedLocation())
		if upd.Error != nil {
			return fmt.Errorf("failed to reset unit %s: %w", number, upd.Error)
		}
		if upd.RowsAffected == 0 {
			return apperr.Conflict("unit %s is not placed", number).With("unit_number", number)
		}

		del := tx.Where("warehouse_id = ? AND block = ? AND shelf = ? AND cell = ? AND unit_number = ?",
			loc.WarehouseID, loc.Block, loc.Shelf, loc.Cell, number).Delete(&model.CellOccupancy{})
		if del.Error != nil {
			return fmt.Errorf("failed to release cell %s: %w", loc, del.Error)
		}
		if del.RowsAffected == 0 {
			return apperr.Integrity("unit %s is placed at %s but the cell holds no occupancy for it", number, loc).
				With("unit_number", number).
				With("cell", *loc)
		}

		var active []model.PlacementRecord
		if err := tx.Where("unit_number = ? AND revoked_at IS NULL", number).Find(&active).Error; err != nil {
			return fmt.Errorf("failed to load placement records for unit %s: %w", number, err)
		}
		if len(active) != 1 {
			return apperr.Integrity("unit %s has %d active placement records, expected 1", number, len(active)).
				With("unit_number", number)
		}
		record := active[0]
		if record.Address() != *loc {
			return apperr.Integrity("placement record of unit %s points at %s, unit is at %s", number, record.Address(), loc).
				With("unit_number", number)
		}

		revokedBy := req.Operator.ID
		if err := tx.Model(&model.PlacementRecord{}).Where("id = ?", record.ID).Updates(map[string]any{
			"revoked_at": now,
			"revoked_by": revokedBy,
		}).Error; err != nil {
			return fmt.Errorf("failed to revoke placement record %d: %w", record.ID, err)
		}
		record.RevokedAt = &now
		record.RevokedBy = &revokedBy

		if err := tx.Where("number = ?", number).First(&result.Unit).Error; err != nil {
			return fmt.Errorf("failed to reload unit %s: %w", number, err)
		}
		result.Record = record
		result.Cargo, err = recomputeCargo(tx, cargo, now)
		return err
	})
	if err != nil {
		return UnplaceResult{}, err
	}
	return result, nil
}

// SessionHistory lists a session's placements in the order they were made, revoked ones included.
func (s *gormStore) SessionHistory(ctx context.Context, sc scope.Scope, sessionID string) ([]model.PlacementRecord, error) {
	var records []model.PlacementRecord
	if err := s.db.WithContext(ctx).
		Scopes(sc.Filter("warehouse_id")).
		Where("session_id = ?", sessionID).
		Order("placed_at, id").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load history of session %s: %w", sessionID, err)
	}
	return records, nil
}

// LastActiveInSession returns the most recent placement of a session that has not been reversed.
func (s *gormStore) LastActiveInSession(ctx context.Context, sc scope.Scope, sessionID string) (model.PlacementRecord, error) {
	var record model.PlacementRecord
	err := s.db.WithContext(ctx).
		Scopes(sc.Filter("warehouse_id")).
		Where("session_id = ? AND revoked_at IS NULL", sessionID).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		if isNotFound(err) {
			return model.PlacementRecord{}, apperr.NotFound("nothing to undo in session %s", sessionID)
		}
		return model.PlacementRecord{}, fmt.Errorf("failed to load last placement of session %s: %w", sessionID, err)
	}
	return record, nil
}
