package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm/clause"

	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

func warehouseKey(id int64) string    { return fmt.Sprintf("wh:%d", id) }
func shortNumberKey(short int) string { return fmt.Sprintf("whs:%d", short) }
func (s *gormStore) remember(w model.Warehouse) {
	s.topology.Set(warehouseKey(w.ID), w, cache.NoExpiration)
	s.topology.Set(shortNumberKey(w.ShortNumber), w, cache.NoExpiration)
}

// CreateWarehouse validates the topology and inserts the warehouse.
func (s *gormStore) CreateWarehouse(ctx context.Context, w *model.Warehouse) error {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return apperr.InvalidArgument("warehouse name is required")
	}
	if w.ShortNumber < 1 {
		return apperr.InvalidArgument("warehouse short number must be positive")
	}
	if w.Blocks < 1 || w.ShelvesPerBlock < 1 || w.CellsPerShelf < 1 {
		return apperr.InvalidArgument("warehouse topology must have at least one block, shelf and cell")
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(w)
	if res.Error != nil {
		return fmt.Errorf("failed to create warehouse: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("warehouse short number %d is already taken", w.ShortNumber)
	}
	s.remember(*w)
	return nil
}

// Warehouse returns a warehouse by ID, served from the topology cache when possible.
func (s *gormStore) Warehouse(ctx context.Context, id int64) (model.Warehouse, error) {
	if v, ok := s.topology.Get(warehouseKey(id)); ok {
		return v.(model.Warehouse), nil
	}
	var w model.Warehouse
	if err := s.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return model.Warehouse{}, apperr.NotFound("warehouse %d not found", id)
		}
		return model.Warehouse{}, fmt.Errorf("failed to load warehouse %d: %w", id, err)
	}
	s.remember(w)
	return w, nil
}

// WarehouseByShortNumber resolves the short number used in printed cell codes.
func (s *gormStore) WarehouseByShortNumber(ctx context.Context, shortNumber int) (model.Warehouse, error) {
	if v, ok := s.topology.Get(shortNumberKey(shortNumber)); ok {
		return v.(model.Warehouse), nil
	}
	var w model.Warehouse
	if err := s.db.WithContext(ctx).First(&w, "short_number = ?", shortNumber).Error; err != nil {
		if isNotFound(err) {
			return model.Warehouse{}, apperr.NotFound("warehouse with short number %d not found", shortNumber)
		}
		return model.Warehouse{}, fmt.Errorf("failed to load warehouse by short number %d: %w", shortNumber, err)
	}
	s.remember(w)
	return w, nil
}

// Warehouses lists the warehouses visible in sc.
func (s *gormStore) Warehouses(ctx context.Context, sc scope.Scope) ([]model.Warehouse, error) {
	var warehouses []model.Warehouse
	if err := s.db.WithContext(ctx).Scopes(sc.Filter("id")).Order("short_number").Find(&warehouses).Error; err != nil {
		return nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	return warehouses, nil
}

// IsValidAddress checks addr against its warehouse's configured counts.
func (s *gormStore) IsValidAddress(ctx context.Context, addr model.CellAddress) (bool, error) {
	w, err := s.Warehouse(ctx, addr.WarehouseID)
	if err != nil {
		return false, err
	}
	return w.Contains(addr), nil
}

// validateAddress is IsValidAddress as a typed error.
func (s *gormStore) validateAddress(ctx context.Context, addr model.CellAddress) (model.Warehouse, error) {
	w, err := s.Warehouse(ctx, addr.WarehouseID)
	if err != nil {
		return model.Warehouse{}, err
	}
	if !w.Contains(addr) {
		return model.Warehouse{}, apperr.InvalidArgument(
			"cell %d-%d-%d is outside warehouse %d (%d blocks × %d shelves × %d cells)",
			addr.Block, addr.Shelf, addr.Cell, w.ShortNumber, w.Blocks, w.ShelvesPerBlock, w.CellsPerShelf)
	}
	return w, nil
}

// CellState reports whether a cell is free. A free cell that still has an active
// placement record is a divergence and is reported as Integrity, never as free.
func (s *gormStore) CellState(ctx context.Context, sc scope.Scope, addr model.CellAddress) (CellState, error) {
	if !sc.Allows(addr.WarehouseID) {
		return CellState{}, apperr.Forbidden("warehouse %d is outside the operator's scope", addr.WarehouseID)
	}
	if _, err := s.validateAddress(ctx, addr); err != nil {
		return CellState{}, err
	}

	db := s.db.WithContext(ctx)
	var occ model.CellOccupancy
	err := db.Where("warehouse_id = ? AND block = ? AND shelf = ? AND cell = ?",
		addr.WarehouseID, addr.Block, addr.Shelf, addr.Cell).First(&occ).Error
	if err == nil {
		occupiedAt := occ.OccupiedAt
		return CellState{Address: addr, UnitNumber: occ.UnitNumber, OccupiedAt: &occupiedAt}, nil
	}
	if !isNotFound(err) {
		return CellState{}, fmt.Errorf("failed to read occupancy of %s: %w", addr, err)
	}

	var active int64
	if err := db.Model(&model.PlacementRecord{}).
		Where("warehouse_id = ? AND block = ? AND shelf = ? AND cell = ? AND revoked_at IS NULL",
			addr.WarehouseID, addr.Block, addr.Shelf, addr.Cell).
		Count(&active).Error; err != nil {
		return CellState{}, fmt.Errorf("failed to read placement records of %s: %w", addr, err)
	}
	if active > 0 {
		return CellState{}, apperr.Integrity("cell %s has no occupant but %d active placement record(s)", addr, active)
	}
	return CellState{Address: addr, Free: true}, nil
}
