package placement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargo-placement-backend/config"
	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/parse"
	"cargo-placement-backend/internal/scope"
)

func TestResolver_UnitCodes(t *testing.T) {
	e := newEnv(t, config.CodesConfig{UnitCodeMaxAge: 10 * time.Minute})
	_, units := e.accept(t, e.whA.ID, 2)
	_, unitsB := e.accept(t, e.whB.ID, 1)
	number := units[1].Number
	now := time.Now()

	testCases := []struct {
		name    string
		code    string
		wantErr error
	}{
		{"prefixed code", fmt.Sprintf("UNIT:%s:%d", number, now.Unix()), nil},
		{"json code in millis", fmt.Sprintf(`{"type":"unit","number":"%s","ts":%d}`, number, now.UnixMilli()), nil},
		{"bare number", number, nil},
		{"expired code", fmt.Sprintf("UNIT:%s:%d", number, now.Add(-time.Hour).Unix()), apperr.ErrInvalidArgument},
		{"future dated code", fmt.Sprintf("UNIT:%s:%d", number, now.Add(time.Hour).Unix()), apperr.ErrInvalidArgument},
		{"overflowing timestamp", fmt.Sprintf("UNIT:%s:99999999999999999999999", number), apperr.ErrInvalidArgument},
		{"malformed", "UNIT::", apperr.ErrInvalidArgument},
		{"unknown unit", "ABCDEF012345/01/01", apperr.ErrNotFound},
		{"unit of a foreign warehouse", unitsB[0].Number, apperr.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.svc.Resolver().Resolve(context.Background(), e.alice.Scope, tc.code, nil)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.True(t, res.IsUnit())
			assert.Equal(t, parse.KindUnit, res.Kind)
			assert.Equal(t, number, res.Unit.Number)
			assert.Nil(t, res.Location)
		})
	}
}

func TestResolver_CellCodes(t *testing.T) {
	e := newEnv(t, config.CodesConfig{})
	ctx := context.Background()
	hintB := e.whB.ID

	testCases := []struct {
		name    string
		sc      scope.Scope
		code    string
		hint    *int64
		want    int64
		wantErr error
	}{
		{"full form", e.alice.Scope, "1-2-1-3", nil, e.whA.ID, nil},
		{"full form with prefix", e.alice.Scope, "cell:1-1-1-1", nil, e.whA.ID, nil},
		{"full form of a foreign warehouse", e.alice.Scope, "2-1-1-1", nil, 0, apperr.ErrForbidden},
		{"unknown warehouse", e.alice.Scope, "9-1-1-1", nil, 0, apperr.ErrNotFound},
		{"out of bounds", e.alice.Scope, "1-3-1-1", nil, 0, apperr.ErrInvalidArgument},
		{"zero coordinate", e.alice.Scope, "1-0-1-1", nil, 0, apperr.ErrInvalidArgument},
		{"short form with a single warehouse", e.alice.Scope, "B2-S1-C3", nil, e.whA.ID, nil},
		{"short form lower case", e.alice.Scope, "b1-s2-c1", nil, e.whA.ID, nil},
		{"short form is ambiguous for admins", scope.All(), "B1-S1-C1", nil, 0, apperr.ErrInvalidArgument},
		{"short form with a hint", scope.All(), "B1-S1-C1", &hintB, e.whB.ID, nil},
		{"hint outside scope", e.alice.Scope, "B1-S1-C1", &hintB, 0, apperr.ErrForbidden},
		{"short form without warehouses", scope.Of(), "B1-S1-C1", nil, 0, apperr.ErrForbidden},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.svc.Resolver().Resolve(ctx, tc.sc, tc.code, tc.hint)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.False(t, res.IsUnit())
			require.NotNil(t, res.Cell)
			assert.Equal(t, tc.want, res.Cell.Address.WarehouseID)
			assert.True(t, res.Cell.Free)
			assert.Equal(t, tc.want, res.Warehouse.ID)
		})
	}
}

func TestResolver_BothCellFormsAgree(t *testing.T) {
	e := newEnv(t, config.CodesConfig{})
	ctx := context.Background()

	full, err := e.svc.Resolver().Resolve(ctx, e.alice.Scope, "1-2-2-3", nil)
	require.NoError(t, err)
	short, err := e.svc.Resolver().Resolve(ctx, e.alice.Scope, "B2-S2-C3", nil)
	require.NoError(t, err)
	assert.Equal(t, full.Cell.Address, short.Cell.Address)
}

func TestResolver_Batch(t *testing.T) {
	e := newEnv(t, config.CodesConfig{})
	_, units := e.accept(t, e.whA.ID, 1)

	items := e.svc.Resolver().ResolveBatch(context.Background(), e.alice.Scope,
		[]string{units[0].Number, "1-1-1-1", "garbage!", "2-1-1-1"}, nil)
	require.Len(t, items, 4)

	assert.NotNil(t, items[0].Result)
	assert.Empty(t, items[0].Error)
	assert.NotNil(t, items[1].Result)
	assert.Nil(t, items[2].Result)
	assert.Equal(t, "invalid_argument", items[2].Kind)
	assert.Equal(t, "forbidden", items[3].Kind)
	assert.Equal(t, "2-1-1-1", items[3].Code)
}
