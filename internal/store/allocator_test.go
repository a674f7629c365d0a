package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
)

func cargoIDs(cargos []model.Cargo) []string {
	ids := make([]string, 0, len(cargos))
	for _, c := range cargos {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestGormStore_Place_MovesCargoBetweenLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cargo, units := f.accept(t, f.whA.ID, 2, 3)
	require.Len(t, units, 5)

	for i, u := range units {
		available, err := f.store.AvailableForPlacement(ctx, f.aliceS)
		require.NoError(t, err)
		full, err := f.store.FullyPlaced(ctx, f.aliceS)
		require.NoError(t, err)
		assert.Contains(t, cargoIDs(available), cargo.ID, "before placement %d", i+1)
		assert.NotContains(t, cargoIDs(full), cargo.ID, "before placement %d", i+1)

		res := f.place(t, u.Number, cell(f.whA, 1, 1+i/3, 1+i%3))
		assert.True(t, res.Unit.IsPlaced)
		assert.Equal(t, i+1, res.Cargo.PlacedUnits)
		assert.Equal(t, model.DerivePlacementState(i+1, 5), res.Cargo.PlacementState)
	}

	available, err := f.store.AvailableForPlacement(ctx, f.aliceS)
	require.NoError(t, err)
	full, err := f.store.FullyPlaced(ctx, f.aliceS)
	require.NoError(t, err)
	assert.NotContains(t, cargoIDs(available), cargo.ID)
	assert.Contains(t, cargoIDs(full), cargo.ID)
}

func TestGormStore_Place_RecordsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cargo, units := f.accept(t, f.whA.ID, 1)
	addr := cell(f.whA, 2, 1, 3)

	res := f.place(t, units[0].Number, addr)
	assert.Equal(t, model.StateNotPlaced, res.PreviousState)
	assert.Equal(t, model.StateFullyPlaced, res.Cargo.PlacementState)
	require.NotNil(t, res.Unit.Location())
	assert.Equal(t, addr, *res.Unit.Location())
	require.NotNil(t, res.Unit.PlacedBy)
	assert.Equal(t, "alice", *res.Unit.PlacedBy)
	assert.NotNil(t, res.Unit.PlacedAt)

	assert.NotZero(t, res.Record.ID)
	assert.Equal(t, addr, res.Record.Address())
	assert.Equal(t, cargo.ID, res.Record.CargoID)
	assert.Equal(t, "session-1", res.Record.SessionID)
	assert.True(t, res.Record.Active())

	state, err := f.store.CellState(ctx, f.aliceS, addr)
	require.NoError(t, err)
	assert.False(t, state.Free)
	assert.Equal(t, units[0].Number, state.UnitNumber)
}

func TestGormStore_Place_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, unitsA := f.accept(t, f.whA.ID, 3)
	_, unitsB := f.accept(t, f.whB.ID, 1)
	f.place(t, unitsA[0].Number, cell(f.whA, 1, 1, 1))

	testCases := []struct {
		name    string
		sc      scope.Scope
		unit    string
		addr    model.CellAddress
		wantErr error
		detail  string
	}{
		{"cell outside scope", f.aliceS, unitsA[1].Number, cell(f.whB, 1, 1, 1), apperr.ErrForbidden, ""},
		{"empty scope", scope.Of(), unitsA[1].Number, cell(f.whA, 1, 1, 2), apperr.ErrForbidden, ""},
		{"unknown unit", f.aliceS, "FFFFFFFFFFFF/01/01", cell(f.whA, 1, 1, 2), apperr.ErrNotFound, ""},
		{"unit of another warehouse is invisible", f.aliceS, unitsB[0].Number, cell(f.whA, 1, 1, 2), apperr.ErrNotFound, ""},
		{"blank unit", f.aliceS, " ", cell(f.whA, 1, 1, 2), apperr.ErrInvalidArgument, ""},
		{"out of bounds", f.aliceS, unitsA[1].Number, cell(f.whA, 1, 3, 1), apperr.ErrInvalidArgument, ""},
		{"cell in another warehouse than the cargo", scope.All(), unitsB[0].Number, cell(f.whA, 1, 1, 2), apperr.ErrInvalidArgument, ""},
		{"cell occupied", f.aliceS, unitsA[1].Number, cell(f.whA, 1, 1, 1), apperr.ErrConflict, "occupied_by"},
		{"unit already placed", f.aliceS, unitsA[0].Number, cell(f.whA, 1, 1, 2), apperr.ErrConflict, "location"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.store.Place(ctx, PlaceRequest{Operator: f.alice, Scope: tc.sc, UnitNumber: tc.unit, Cell: tc.addr})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.detail != "" {
				assert.Contains(t, apperr.DetailsOf(err), tc.detail)
			}
		})
	}

	var occupied int64
	require.NoError(t, f.db.Model(&model.CellOccupancy{}).Count(&occupied).Error)
	assert.EqualValues(t, 1, occupied)
}

func TestGormStore_Place_ConcurrentSameCell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const contenders = 8
	_, units := f.accept(t, f.whA.ID, contenders)
	target := cell(f.whA, 2, 2, 2)

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			op := scope.Operator{ID: fmt.Sprintf("op-%d", i), Role: scope.RoleOperator}
			_, errs[i] = f.store.Place(ctx, PlaceRequest{Operator: op, Scope: f.aliceS, UnitNumber: units[i].Number, Cell: target})
		}(i)
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case assert.ErrorIs(t, err, apperr.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, contenders-1, conflicts)

	var placed []model.CargoUnit
	require.NoError(t, f.db.Where("is_placed = ?", true).Find(&placed).Error)
	require.Len(t, placed, 1)
	state, err := f.store.CellState(ctx, f.aliceS, target)
	require.NoError(t, err)
	assert.Equal(t, placed[0].Number, state.UnitNumber)
}

func TestGormStore_Place_ConcurrentSameCargo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cargo, units := f.accept(t, f.whA.ID, 6)

	var wg sync.WaitGroup
	for i, u := range units {
		wg.Add(1)
		go func(i int, number string) {
			defer wg.Done()
			_, err := f.store.Place(ctx, PlaceRequest{Operator: f.alice, Scope: f.aliceS, UnitNumber: number, Cell: cell(f.whA, 1+i/3, 1, 1+i%3)})
			assert.NoError(t, err)
		}(i, u.Number)
	}
	wg.Wait()

	loaded, err := f.store.Cargo(ctx, f.aliceS, cargo.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.PlacedUnits)
	assert.Equal(t, model.StateFullyPlaced, loaded.PlacementState)
}

func TestGormStore_Unplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cargo, units := f.accept(t, f.whA.ID, 2)
	addr := cell(f.whA, 1, 2, 1)
	f.place(t, units[0].Number, addr)

	res, err := f.store.Unplace(ctx, UnplaceRequest{Operator: f.alice, Scope: f.aliceS, UnitNumber: units[0].Number})
	require.NoError(t, err)
	assert.Equal(t, model.StatePartiallyPlaced, res.PreviousState)
	assert.Equal(t, model.StateNotPlaced, res.Cargo.PlacementState)
	assert.False(t, res.Unit.IsPlaced)
	assert.Nil(t, res.Unit.Location())
	assert.Nil(t, res.Unit.PlacedBy)
	assert.False(t, res.Record.Active())
	require.NotNil(t, res.Record.RevokedBy)
	assert.Equal(t, "alice", *res.Record.RevokedBy)

	state, err := f.store.CellState(ctx, f.aliceS, addr)
	require.NoError(t, err)
	assert.True(t, state.Free)

	_, err = f.store.Unplace(ctx, UnplaceRequest{Operator: f.alice, Scope: f.aliceS, UnitNumber: units[0].Number})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// the unit can be placed again, elsewhere
	f.place(t, units[0].Number, cell(f.whA, 2, 2, 2))
	found, err := f.store.Audit(ctx, f.aliceS, cargo.ID)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestGormStore_Unplace_IntegrityLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, units := f.accept(t, f.whA.ID, 1)
	f.place(t, units[0].Number, cell(f.whA, 1, 1, 1))

	require.NoError(t, f.db.Where("unit_number = ?", units[0].Number).Delete(&model.CellOccupancy{}).Error)

	_, err := f.store.Unplace(ctx, UnplaceRequest{Operator: f.alice, Scope: f.aliceS, UnitNumber: units[0].Number})
	assert.ErrorIs(t, err, apperr.ErrIntegrity)

	u, err := f.store.Unit(ctx, f.aliceS, units[0].Number)
	require.NoError(t, err)
	assert.True(t, u.IsPlaced, "unit must not be reset when the rollback fails")
}

func TestGormStore_SessionHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, units := f.accept(t, f.whA.ID, 3)
	for i, u := range units {
		f.place(t, u.Number, cell(f.whA, 1, 1, i+1))
	}

	last, err := f.store.LastActiveInSession(ctx, f.aliceS, "session-1")
	require.NoError(t, err)
	assert.Equal(t, units[2].Number, last.UnitNumber)

	_, err = f.store.Unplace(ctx, UnplaceRequest{Operator: f.alice, Scope: f.aliceS, UnitNumber: last.UnitNumber})
	require.NoError(t, err)

	last, err = f.store.LastActiveInSession(ctx, f.aliceS, "session-1")
	require.NoError(t, err)
	assert.Equal(t, units[1].Number, last.UnitNumber)

	history, err := f.store.SessionHistory(ctx, f.aliceS, "session-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, units[0].Number, history[0].UnitNumber)
	assert.False(t, history[2].Active())

	_, err = f.store.LastActiveInSession(ctx, f.aliceS, "no-such-session")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	history, err = f.store.SessionHistory(ctx, scope.Of(f.whB.ID), "session-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGormStore_CellState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, units := f.accept(t, f.whA.ID, 1)
	addr := cell(f.whA, 1, 1, 1)

	state, err := f.store.CellState(ctx, f.aliceS, addr)
	require.NoError(t, err)
	assert.True(t, state.Free)

	f.place(t, units[0].Number, addr)
	state, err = f.store.CellState(ctx, f.aliceS, addr)
	require.NoError(t, err)
	assert.False(t, state.Free)
	assert.NotNil(t, state.OccupiedAt)

	_, err = f.store.CellState(ctx, f.aliceS, cell(f.whB, 1, 1, 1))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.store.CellState(ctx, f.aliceS, cell(f.whA, 9, 1, 1))
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	// a cell is never reported free while a record still points at it
	require.NoError(t, f.db.Where("unit_number = ?", units[0].Number).Delete(&model.CellOccupancy{}).Error)
	_, err = f.store.CellState(ctx, f.aliceS, addr)
	assert.ErrorIs(t, err, apperr.ErrIntegrity)
}
