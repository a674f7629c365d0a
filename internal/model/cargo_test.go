package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePlacementState(t *testing.T) {
	testCases := []struct {
		placed, total int
		want          PlacementState
	}{
		{0, 5, StateNotPlaced},
		{1, 5, StatePartiallyPlaced},
		{4, 5, StatePartiallyPlaced},
		{5, 5, StateFullyPlaced},
		{1, 1, StateFullyPlaced},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, DerivePlacementState(tc.placed, tc.total), "placed=%d total=%d", tc.placed, tc.total)
	}
}

func TestWarehouseContains(t *testing.T) {
	w := Warehouse{ID: 7, Blocks: 2, ShelvesPerBlock: 3, CellsPerShelf: 4}

	assert.True(t, w.Contains(CellAddress{WarehouseID: 7, Block: 1, Shelf: 1, Cell: 1}))
	assert.True(t, w.Contains(CellAddress{WarehouseID: 7, Block: 2, Shelf: 3, Cell: 4}))
	assert.False(t, w.Contains(CellAddress{WarehouseID: 7, Block: 3, Shelf: 1, Cell: 1}))
	assert.False(t, w.Contains(CellAddress{WarehouseID: 7, Block: 1, Shelf: 0, Cell: 1}))
	assert.False(t, w.Contains(CellAddress{WarehouseID: 7, Block: 1, Shelf: 1, Cell: 5}))
	assert.False(t, w.Contains(CellAddress{WarehouseID: 8, Block: 1, Shelf: 1, Cell: 1}))
	assert.Equal(t, 24, w.Capacity())
}

func TestCargoUnitLocation(t *testing.T) {
	var u CargoUnit
	assert.Nil(t, u.Location())

	wh, b, s, c := int64(3), 1, 2, 3
	u.LocationWarehouseID, u.LocationBlock, u.LocationShelf, u.LocationCell = &wh, &b, &s, &c
	assert.Equal(t, &CellAddress{WarehouseID: 3, Block: 1, Shelf: 2, Cell: 3}, u.Location())
}
