package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

// ReplaceBindings syncs an operator's warehouse set with the identity collaborator.
func (s *gormStore) ReplaceBindings(ctx context.Context, operatorID string, warehouseIDs []int64) error {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return apperr.InvalidArgument("operator id is required")
	}

	unique := make(map[int64]struct{}, len(warehouseIDs))
	for _, id := range warehouseIDs {
		unique[id] = struct{}{}
	}
	ids := make([]int64, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(ids) > 0 {
			var found int64
			if err := tx.Model(&model.Warehouse{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
				return fmt.Errorf("failed to check warehouses: %w", err)
			}
			if found != int64(len(ids)) {
				return apperr.NotFound("one or more warehouses in %v do not exist", ids)
			}
		}

		if err := tx.Where("operator_id = ?", operatorID).Delete(&model.OperatorBinding{}).Error; err != nil {
			return fmt.Errorf("failed to clear bindings for operator %s: %w", operatorID, err)
		}
		if len(ids) == 0 {
			return nil
		}

		now := s.now()
		rows := make([]model.OperatorBinding, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, model.OperatorBinding{OperatorID: operatorID, WarehouseID: id, CreatedAt: now})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to bind operator %s: %w", operatorID, err)
		}
		return nil
	})
}

// ScopeFor computes the effective scope of op. Admins are never looked up.
func (s *gormStore) ScopeFor(ctx context.Context, op scope.Operator) (scope.Scope, error) {
	if op.Role.IsAdmin() {
		return scope.All(), nil
	}
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&model.OperatorBinding{}).
		Where("operator_id = ?", op.ID).
		Pluck("warehouse_id", &ids).Error; err != nil {
		return scope.Scope{}, fmt.Errorf("failed to load bindings for operator %s: %w", op.ID, err)
	}
	return scope.For(op, ids), nil
}
