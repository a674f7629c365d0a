package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

// Audit compares a cargo's unit flags with the placement log and the occupancy
// table. Findings are returned, never repaired.
func (s *gormStore) Audit(ctx context.Context, sc scope.Scope, cargoID string) ([]Discrepancy, error) {
	db := s.db.WithContext(ctx)
	cargo, err := loadCargo(db, sc, cargoID)
	if err != nil {
		return nil, err
	}
	return auditCargo(db, cargo)
}

// AuditAll audits every cargo in scope.
func (s *gormStore) AuditAll(ctx context.Context, sc scope.Scope) ([]Discrepancy, error) {
	db := s.db.WithContext(ctx)
	var cargos []model.Cargo
	if err := db.Scopes(sc.Filter("warehouse_id")).Order("created_at, id").Find(&cargos).Error; err != nil {
		return nil, fmt.Errorf("failed to list cargos for audit: %w", err)
	}

	found := []Discrepancy{}
	for _, c := range cargos {
		d, err := auditCargo(db, c)
		if err != nil {
			return nil, err
		}
		found = append(found, d...)
	}
	return found, nil
}

func auditCargo(db *gorm.DB, cargo model.Cargo) ([]Discrepancy, error) {
	var units []model.CargoUnit
	if err := db.Where("cargo_id = ?", cargo.ID).Order("line_index, unit_index").Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to load units of cargo %s: %w", cargo.ID, err)
	}
	var records []model.PlacementRecord
	if err := db.Where("cargo_id = ? AND revoked_at IS NULL", cargo.ID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load placement records of cargo %s: %w", cargo.ID, err)
	}
	var occupancies []model.CellOccupancy
	if len(units) > 0 {
		numbers := make([]string, 0, len(units))
		for _, u := range units {
			numbers = append(numbers, u.Number)
		}
		if err := db.Where("unit_number IN ?", numbers).Find(&occupancies).Error; err != nil {
			return nil, fmt.Errorf("failed to load occupancy of cargo %s: %w", cargo.ID, err)
		}
	}

	recordsByUnit := make(map[string][]model.PlacementRecord)
	for _, r := range records {
		recordsByUnit[r.UnitNumber] = append(recordsByUnit[r.UnitNumber], r)
	}
	occByUnit := make(map[string]model.CellOccupancy, len(occupancies))
	for _, o := range occupancies {
		occByUnit[o.UnitNumber] = o
	}

	found := []Discrepancy{}
	report := func(unit string, kind DiscrepancyKind, format string, args ...any) {
		found = append(found, Discrepancy{
			CargoID:    cargo.ID,
			UnitNumber: unit,
			Kind:       kind,
			Detail:     fmt.Sprintf(format, args...),
		})
	}

	placed := 0
	for _, u := range units {
		recs := recordsByUnit[u.Number]
		occ, hasOcc := occByUnit[u.Number]

		if !u.IsPlaced {
			if len(recs) > 0 {
				report(u.Number, OrphanRecord, "unit is not placed but has %d active placement record(s)", len(recs))
			}
			if hasOcc {
				report(u.Number, CellMismatch, "unit is not placed but occupies cell %s", occ.Address())
			}
			continue
		}

		placed++
		loc := u.Location()
		switch {
		case len(recs) == 0:
			report(u.Number, MissingRecord, "unit is flagged placed but has no active placement record")
			continue
		case len(recs) > 1:
			report(u.Number, DuplicateRecord, "unit has %d active placement records", len(recs))
			continue
		}
		if loc == nil {
			report(u.Number, CellMismatch, "unit is flagged placed without a location")
			continue
		}
		if recs[0].Address() != *loc {
			report(u.Number, CellMismatch, "placement record points at %s, unit is at %s", recs[0].Address(), *loc)
			continue
		}
		if !hasOcc {
			report(u.Number, CellMismatch, "unit is at %s but the cell has no occupancy row", *loc)
		} else if occ.Address() != *loc {
			report(u.Number, CellMismatch, "unit is at %s but occupies %s", *loc, occ.Address())
		}
	}

	if placed != cargo.PlacedUnits {
		report("", CountMismatch, "cargo counts %d placed units, unit flags count %d", cargo.PlacedUnits, placed)
	}
	if len(units) != cargo.TotalUnits {
		report("", CountMismatch, "cargo counts %d units, %d exist", cargo.TotalUnits, len(units))
	}
	return found, nil
}
