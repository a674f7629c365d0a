package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

var pendingStates = []model.PlacementState{model.StateNotPlaced, model.StatePartiallyPlaced}

// placeableCargos matches live cargos with at least one unit. Only these take
// part in the available / fully placed partition.
func placeableCargos(sc scope.Scope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Scopes(sc.Filter("warehouse_id")).
			Where("status = ? AND total_units > 0", model.CargoActive)
	}
}

// AvailableForPlacement returns cargos that still have units awaiting placement.
func (s *gormStore) AvailableForPlacement(ctx context.Context, sc scope.Scope) ([]model.Cargo, error) {
	var cargos []model.Cargo
	if err := s.db.WithContext(ctx).
		Scopes(placeableCargos(sc)).
		Where("placement_state IN ?", pendingStates).
		Order("created_at, id").
		Find(&cargos).Error; err != nil {
		return nil, fmt.Errorf("failed to list cargos available for placement: %w", err)
	}
	return cargos, nil
}

// FullyPlaced returns cargos whose units are all placed.
func (s *gormStore) FullyPlaced(ctx context.Context, sc scope.Scope) ([]model.Cargo, error) {
	var cargos []model.Cargo
	if err := s.db.WithContext(ctx).
		Scopes(placeableCargos(sc)).
		Where("placement_state = ?", model.StateFullyPlaced).
		Order("updated_at DESC, id").
		Find(&cargos).Error; err != nil {
		return nil, fmt.Errorf("failed to list fully placed cargos: %w", err)
	}
	return cargos, nil
}

// AwaitingUnits lists the units still awaiting placement, grouped by cargo.
func (s *gormStore) AwaitingUnits(ctx context.Context, sc scope.Scope) ([]CargoUnits, error) {
	cargos, err := s.AvailableForPlacement(ctx, sc)
	if err != nil {
		return nil, err
	}
	if len(cargos) == 0 {
		return []CargoUnits{}, nil
	}

	ids := make([]string, 0, len(cargos))
	for _, c := range cargos {
		ids = append(ids, c.ID)
	}
	var units []model.CargoUnit
	if err := s.db.WithContext(ctx).
		Where("cargo_id IN ? AND is_placed = ?", ids, false).
		Order("line_index, unit_index").
		Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to list units awaiting placement: %w", err)
	}

	byCargo := make(map[string][]model.CargoUnit, len(cargos))
	for _, u := range units {
		byCargo[u.CargoID] = append(byCargo[u.CargoID], u)
	}
	groups := make([]CargoUnits, 0, len(cargos))
	for _, c := range cargos {
		if pending := byCargo[c.ID]; len(pending) > 0 {
			groups = append(groups, CargoUnits{Cargo: c, Units: pending})
		}
	}
	return groups, nil
}

type stateCount struct {
	PlacementState model.PlacementState
	Cargos         int64
	Total          int64
	Placed         int64
}

// Progress computes the badge counters for an operator's scope.
func (s *gormStore) Progress(ctx context.Context, sc scope.Scope, operatorID string) (Progress, error) {
	db := s.db.WithContext(ctx)

	var rows []stateCount
	if err := db.Model(&model.Cargo{}).
		Select("placement_state, COUNT(*) AS cargos, COALESCE(SUM(total_units), 0) AS total, COALESCE(SUM(placed_units), 0) AS placed").
		Scopes(placeableCargos(sc)).
		Group("placement_state").
		Scan(&rows).Error; err != nil {
		return Progress{}, fmt.Errorf("failed to aggregate cargo progress: %w", err)
	}

	var p Progress
	for _, r := range rows {
		if r.PlacementState == model.StateFullyPlaced {
			p.FullyPlacedCargos += r.Cargos
		} else {
			p.AvailableCargos += r.Cargos
		}
		p.TotalUnits += r.Total
		p.PlacedUnits += r.Placed
	}
	p.PendingUnits = p.TotalUnits - p.PlacedUnits

	if operatorID != "" {
		if err := db.Model(&model.PlacementRecord{}).
			Scopes(sc.Filter("warehouse_id")).
			Where("operator_id = ? AND revoked_at IS NULL", operatorID).
			Count(&p.PlacedByOperator).Error; err != nil {
			return Progress{}, fmt.Errorf("failed to count placements of operator %s: %w", operatorID, err)
		}
	}
	return p, nil
}
