package store

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	CreateWarehouse(ctx context.Context, w *model.Warehouse) error
	Warehouse(ctx context.Context, id int64) (model.Warehouse, error)
	WarehouseByShortNumber(ctx context.Context, shortNumber int) (model.Warehouse, error)
	Warehouses(ctx context.Context, sc scope.Scope) ([]model.Warehouse, error)
	IsValidAddress(ctx context.Context, addr model.CellAddress) (bool, error)
	CellState(ctx context.Context, sc scope.Scope, addr model.CellAddress) (CellState, error)

	ReplaceBindings(ctx context.Context, operatorID string, warehouseIDs []int64) error
	ScopeFor(ctx context.Context, op scope.Operator) (scope.Scope, error)

	AcceptCargo(ctx context.Context, op scope.Operator, sc scope.Scope, draft CargoDraft) (model.Cargo, error)
	Cargo(ctx context.Context, sc scope.Scope, id string) (model.Cargo, error)
	UnitsOf(ctx context.Context, sc scope.Scope, cargoID string) ([]model.CargoUnit, error)
	Unit(ctx context.Context, sc scope.Scope, number string) (model.CargoUnit, error)
	WithdrawCargo(ctx context.Context, op scope.Operator, sc scope.Scope, id string) (model.Cargo, error)

	Place(ctx context.Context, req PlaceRequest) (PlaceResult, error)
	Unplace(ctx context.Context, req UnplaceRequest) (UnplaceResult, error)
	SessionHistory(ctx context.Context, sc scope.Scope, sessionID string) ([]model.PlacementRecord, error)
	LastActiveInSession(ctx context.Context, sc scope.Scope, sessionID string) (model.PlacementRecord, error)

	AvailableForPlacement(ctx context.Context, sc scope.Scope) ([]model.Cargo, error)
	FullyPlaced(ctx context.Context, sc scope.Scope) ([]model.Cargo, error)
	AwaitingUnits(ctx context.Context, sc scope.Scope) ([]CargoUnits, error)
	Progress(ctx context.Context, sc scope.Scope, operatorID string) (Progress, error)

	Audit(ctx context.Context, sc scope.Scope, cargoID string) ([]Discrepancy, error)
	AuditAll(ctx context.Context, sc scope.Scope) ([]Discrepancy, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db       *gorm.DB
	topology *cache.Cache
	now      func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{
		db: db,
		// warehouses are static after creation
		topology: cache.New(cache.NoExpiration, 0),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
