package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/ident"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

// displayNumberAttempts bounds retries when two random IDs share a display prefix.
const displayNumberAttempts = 3

// unitBatchSize is the chunk size for inserting expanded units.
const unitBatchSize = 200

func validateDraft(draft CargoDraft) error {
	if len(draft.LineItems) == 0 {
		return apperr.InvalidArgument("cargo must have at least one line item")
	}
	if len(draft.LineItems) > ident.MaxIndex {
		return apperr.InvalidArgument("cargo may have at most %d line items, got %d", ident.MaxIndex, len(draft.LineItems))
	}
	for i, item := range draft.LineItems {
		pos := i + 1
		if strings.TrimSpace(item.Name) == "" {
			return apperr.InvalidArgument("line item %d: name is required", pos).With("line", pos)
		}
		if item.Quantity < 1 {
			return apperr.InvalidArgument("line item %d: quantity must be at least 1, got %d", pos, item.Quantity).With("line", pos)
		}
		if item.Quantity > ident.MaxIndex {
			return apperr.InvalidArgument("line item %d: quantity must be at most %d, got %d", pos, ident.MaxIndex, item.Quantity).With("line", pos)
		}
		if item.Weight.IsNegative() {
			return apperr.InvalidArgument("line item %d: weight must not be negative", pos).With("line", pos)
		}
		if item.UnitPrice.IsNegative() {
			return apperr.InvalidArgument("line item %d: unit price must not be negative", pos).With("line", pos)
		}
	}
	return nil
}

// AcceptCargo stores a cargo and expands its line items into individual units.
// Everything is written in one transaction: either all units exist or none do.
func (s *gormStore) AcceptCargo(ctx context.Context, op scope.Operator, sc scope.Scope, draft CargoDraft) (model.Cargo, error) {
	if err := validateDraft(draft); err != nil {
		return model.Cargo{}, err
	}
	if err := sc.RequireWrite(draft.WarehouseID); err != nil {
		return model.Cargo{}, err
	}
	if _, err := s.Warehouse(ctx, draft.WarehouseID); err != nil {
		return model.Cargo{}, err
	}

	total := 0
	for _, item := range draft.LineItems {
		total += item.Quantity
	}

	var cargo model.Cargo
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		inserted := false
		for attempt := 0; attempt < displayNumberAttempts; attempt++ {
			id := ident.NewCargoID()
			display, err := ident.DisplayNumber(id)
			if err != nil {
				return err
			}
			cargo = model.Cargo{
				ID:               id,
				DisplayNumber:    display,
				WarehouseID:      draft.WarehouseID,
				SenderName:       draft.Sender.Name,
				SenderPhone:      draft.Sender.Phone,
				SenderAddress:    draft.Sender.Address,
				RecipientName:    draft.Recipient.Name,
				RecipientPhone:   draft.Recipient.Phone,
				RecipientAddress: draft.Recipient.Address,
				Description:      draft.Description,
				PlacementState:   model.DerivePlacementState(0, total),
				Status:           model.CargoActive,
				TotalUnits:       total,
				AcceptedBy:       op.ID,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&cargo)
			if res.Error != nil {
				return fmt.Errorf("failed to create cargo: %w", res.Error)
			}
			if res.RowsAffected == 1 {
				inserted = true
				break
			}
		}
		if !inserted {
			return fmt.Errorf("failed to allocate a unique display number after %d attempts", displayNumberAttempts)
		}

		var units []model.CargoUnit
		for i, draftItem := range draft.LineItems {
			item := model.CargoLineItem{
				CargoID:   cargo.ID,
				Position:  i + 1,
				Name:      strings.TrimSpace(draftItem.Name),
				Quantity:  draftItem.Quantity,
				Weight:    draftItem.Weight,
				UnitPrice: draftItem.UnitPrice,
			}
			if err := tx.Omit(clause.Associations).Create(&item).Error; err != nil {
				return fmt.Errorf("failed to create line item %d of cargo %s: %w", item.Position, cargo.ID, err)
			}
			cargo.LineItems = append(cargo.LineItems, item)

			for u := 1; u <= draftItem.Quantity; u++ {
				number, err := ident.UnitNumber(cargo.DisplayNumber, item.Position, u)
				if err != nil {
					return err
				}
				units = append(units, model.CargoUnit{
					Number:     number,
					CargoID:    cargo.ID,
					LineItemID: item.ID,
					LineIndex:  item.Position,
					UnitIndex:  u,
					CreatedAt:  now,
				})
			}
		}

		if len(units) != total {
			return apperr.Integrity("expanded %d units for cargo %s, expected %d", len(units), cargo.ID, total)
		}
		if err := tx.CreateInBatches(&units, unitBatchSize).Error; err != nil {
			return fmt.Errorf("failed to create units of cargo %s: %w", cargo.ID, err)
		}
		return nil
	})
	if err != nil {
		return model.Cargo{}, err
	}
	return cargo, nil
}

// loadCargo fetches a cargo without associations. Out-of-scope cargos are NotFound.
func loadCargo(db *gorm.DB, sc scope.Scope, id string) (model.Cargo, error) {
	var cargo model.Cargo
	err := db.Scopes(sc.Filter("warehouse_id")).Where("id = ?", id).First(&cargo).Error
	if err != nil {
		if isNotFound(err) {
			return model.Cargo{}, apperr.NotFound("cargo %s not found", id)
		}
		return model.Cargo{}, fmt.Errorf("failed to load cargo %s: %w", id, err)
	}
	return cargo, nil
}

// Cargo returns a cargo with its line items.
func (s *gormStore) Cargo(ctx context.Context, sc scope.Scope, id string) (model.Cargo, error) {
	var cargo model.Cargo
	err := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Scopes(sc.Filter("warehouse_id")).
		Where("id = ?", id).
		First(&cargo).Error
	if err != nil {
		if isNotFound(err) {
			return model.Cargo{}, apperr.NotFound("cargo %s not found", id)
		}
		return model.Cargo{}, fmt.Errorf("failed to load cargo %s: %w", id, err)
	}
	return cargo, nil
}

// UnitsOf returns every unit of a cargo regardless of placement state.
func (s *gormStore) UnitsOf(ctx context.Context, sc scope.Scope, cargoID string) ([]model.CargoUnit, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadCargo(db, sc, cargoID); err != nil {
		return nil, err
	}
	var units []model.CargoUnit
	if err := db.Where("cargo_id = ?", cargoID).Order("line_index, unit_index").Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to list units of cargo %s: %w", cargoID, err)
	}
	return units, nil
}

// unitsInScope restricts a cargo_units query to cargos accepted in the scope's warehouses.
func (s *gormStore) unitsInScope(sc scope.Scope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if sc.IsAll() {
			return db
		}
		sub := s.db.Model(&model.Cargo{}).Select("id").Scopes(sc.Filter("warehouse_id"))
		return db.Where("cargo_id IN (?)", sub)
	}
}

// Unit looks up one unit by its number.
func (s *gormStore) Unit(ctx context.Context, sc scope.Scope, number string) (model.CargoUnit, error) {
	var unit model.CargoUnit
	err := s.db.WithContext(ctx).Scopes(s.unitsInScope(sc)).Where("number = ?", number).First(&unit).Error
	if err != nil {
		if isNotFound(err) {
			return model.CargoUnit{}, apperr.NotFound("unit %s not found", number)
		}
		return model.CargoUnit{}, fmt.Errorf("failed to load unit %s: %w", number, err)
	}
	return unit, nil
}

// WithdrawCargo marks a cargo removed. Any cells its units hold are released and
// their placement records revoked, so the cargo leaves no trace in the cell grid.
func (s *gormStore) WithdrawCargo(ctx context.Context, op scope.Operator, sc scope.Scope, id string) (model.Cargo, error) {
	cargo, err := loadCargo(s.db.WithContext(ctx), sc, id)
	if err != nil {
		return model.Cargo{}, err
	}
	if err := sc.RequireWrite(cargo.WarehouseID); err != nil {
		return model.Cargo{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockCargo(tx, id)
		if err != nil {
			return err
		}
		if locked.Status == model.CargoWithdrawn {
			return apperr.Conflict("cargo %s is already withdrawn", id)
		}

		now := s.now()
		placed := tx.Model(&model.CargoUnit{}).Select("number").Where("cargo_id = ? AND is_placed = ?", id, true)
		if err := tx.Where("unit_number IN (?)", placed).Delete(&model.CellOccupancy{}).Error; err != nil {
			return fmt.Errorf("failed to release cells of cargo %s: %w", id, err)
		}
		if err := tx.Model(&model.PlacementRecord{}).
			Where("cargo_id = ? AND revoked_at IS NULL", id).
			Updates(map[string]any{"revoked_at": now, "revoked_by": op.ID}).Error; err != nil {
			return fmt.Errorf("failed to revoke placements of cargo %s: %w", id, err)
		}
		if err := tx.Model(&model.CargoUnit{}).
			Where("cargo_id = ? AND is_placed = ?", id, true).
			Updates(clearedLocation()).Error; err != nil {
			return fmt.Errorf("failed to reset units of cargo %s: %w", id, err)
		}

		locked.Status = model.CargoWithdrawn
		locked.WithdrawnAt = &now
		if err := tx.Model(&locked).Updates(map[string]any{
			"status":       model.CargoWithdrawn,
			"withdrawn_at": now,
			"updated_at":   now,
		}).Error; err != nil {
			return fmt.Errorf("failed to withdraw cargo %s: %w", id, err)
		}
		cargo, err = recomputeCargo(tx, locked, now)
		return err
	})
	if err != nil {
		return model.Cargo{}, err
	}
	return cargo, nil
}
