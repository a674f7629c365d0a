package placement

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cargo-placement-backend/config"
	"cargo-placement-backend/internal/db"
	"cargo-placement-backend/internal/events"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
	"cargo-placement-backend/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	cargos []string
}

func (n *recordingNotifier) NotifyFullyPlaced(cargo model.Cargo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cargos = append(n.cargos, cargo.ID)
}

type env struct {
	db       *gorm.DB
	store    store.Store
	svc      *Service
	events   *recordingPublisher
	notifier *recordingNotifier
	whA      model.Warehouse
	whB      model.Warehouse
	alice    Caller
	admin    Caller
}

func newEnv(t *testing.T, codes config.CodesConfig) *env {
	t.Helper()
	ctx := context.Background()

	gormDB, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	s := store.NewGormStore(gormDB)
	whA := model.Warehouse{ShortNumber: 1, Name: "North", Blocks: 2, ShelvesPerBlock: 2, CellsPerShelf: 3}
	whB := model.Warehouse{ShortNumber: 2, Name: "South", Blocks: 2, ShelvesPerBlock: 2, CellsPerShelf: 3}
	require.NoError(t, s.CreateWarehouse(ctx, &whA))
	require.NoError(t, s.CreateWarehouse(ctx, &whB))
	require.NoError(t, s.ReplaceBindings(ctx, "alice", []int64{whA.ID}))

	log := logrus.New()
	log.SetOutput(io.Discard)
	pub := &recordingPublisher{}
	notifier := &recordingNotifier{}

	return &env{
		db:       gormDB,
		store:    s,
		svc:      NewService(s, pub, notifier, codes, log),
		events:   pub,
		notifier: notifier,
		whA:      whA,
		whB:      whB,
		alice:    Caller{Operator: scope.Operator{ID: "alice", Role: scope.RoleOperator}, Scope: scope.Of(whA.ID)},
		admin:    Caller{Operator: scope.Operator{ID: "root", Role: scope.RoleAdmin}, Scope: scope.All()},
	}
}

func (e *env) accept(t *testing.T, warehouseID int64, quantities ...int) (model.Cargo, []model.CargoUnit) {
	t.Helper()
	ctx := context.Background()
	d := store.CargoDraft{WarehouseID: warehouseID}
	for _, q := range quantities {
		d.LineItems = append(d.LineItems, store.LineItemDraft{Name: "box", Quantity: q, Weight: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5)})
	}
	cargo, err := e.store.AcceptCargo(ctx, e.admin.Operator, e.admin.Scope, d)
	require.NoError(t, err)
	units, err := e.store.UnitsOf(ctx, e.admin.Scope, cargo.ID)
	require.NoError(t, err)
	return cargo, units
}
