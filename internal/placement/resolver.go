package placement

import (
	"context"
	"time"

	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/parse"
	"cargo-placement-backend/internal/scope"
	"cargo-placement-backend/internal/store"
)

// Resolution is a scanned code turned into exactly one unit or one cell.
type Resolution struct {
	Kind      parse.Kind         `json:"kind"`
	Unit      *model.CargoUnit   `json:"unit,omitempty"`
	Location  *model.CellAddress `json:"location,omitempty"`
	Cell      *store.CellState   `json:"cell,omitempty"`
	Warehouse *model.Warehouse   `json:"warehouse,omitempty"`
}

// IsUnit reports whether the code named a unit.
func (r Resolution) IsUnit() bool { return r.Unit != nil }

// BatchItem is the outcome of one payload in a batch. Exactly one of Result and Error is set.
type BatchItem struct {
	Code    string         `json:"code"`
	Result  *Resolution    `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Resolver maps raw scanner payloads to units and cells.
type Resolver struct {
	store  store.Store
	maxAge time.Duration
	now    func() time.Time
}

// NewResolver creates a resolver. A zero maxAge accepts unit codes of any age.
func NewResolver(s store.Store, maxAge time.Duration) *Resolver {
	return &Resolver{store: s, maxAge: maxAge, now: time.Now}
}

// Resolve parses raw and looks it up inside sc. hint optionally names the
// warehouse the caller is working in, used for the compact cell form.
func (r *Resolver) Resolve(ctx context.Context, sc scope.Scope, raw string, hint *int64) (Resolution, error) {
	scanned, err := parse.Scan(raw)
	if err != nil {
		return Resolution{}, err
	}

	if code, ok := scanned.(parse.UnitCode); ok {
		return r.resolveUnit(ctx, sc, code)
	}
	addr, w, err := r.cellAddress(ctx, sc, scanned, hint)
	if err != nil {
		return Resolution{}, err
	}
	state, err := r.store.CellState(ctx, sc, addr)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Kind: scanned.Kind(), Cell: &state, Warehouse: &w}, nil
}

// Address resolves a cell code to its address and checks the warehouse against sc.
// Bounds and occupancy are left to the allocator.
func (r *Resolver) Address(ctx context.Context, sc scope.Scope, raw string, hint *int64) (model.CellAddress, error) {
	scanned, err := parse.Scan(raw)
	if err != nil {
		return model.CellAddress{}, err
	}
	addr, _, err := r.cellAddress(ctx, sc, scanned, hint)
	return addr, err
}

func (r *Resolver) cellAddress(ctx context.Context, sc scope.Scope, scanned parse.Scanned, hint *int64) (model.CellAddress, model.Warehouse, error) {
	var (
		w                  model.Warehouse
		err                error
		block, shelf, cell int
	)
	switch code := scanned.(type) {
	case parse.CellCodeFull:
		w, err = r.store.WarehouseByShortNumber(ctx, code.ShortNumber)
		if err == nil && !sc.Allows(w.ID) {
			err = apperr.Forbidden("warehouse %d is outside the operator's scope", w.ShortNumber)
		}
		block, shelf, cell = code.Block, code.Shelf, code.Cell
	case parse.CellCodeShort:
		w, err = r.warehouseFor(ctx, sc, hint)
		block, shelf, cell = code.Block, code.Shelf, code.Cell
	default:
		err = apperr.InvalidArgument("expected a cell code, got a %s code", scanned.Kind())
	}
	if err != nil {
		return model.CellAddress{}, model.Warehouse{}, err
	}
	return model.CellAddress{WarehouseID: w.ID, Block: block, Shelf: shelf, Cell: cell}, w, nil
}

// ResolveBatch resolves every payload independently.
func (r *Resolver) ResolveBatch(ctx context.Context, sc scope.Scope, raws []string, hint *int64) []BatchItem {
	items := make([]BatchItem, 0, len(raws))
	for _, raw := range raws {
		item := BatchItem{Code: raw}
		res, err := r.Resolve(ctx, sc, raw, hint)
		if err != nil {
			item.Error = err.Error()
			item.Kind = apperr.KindName(err)
			item.Details = apperr.DetailsOf(err)
		} else {
			item.Result = &res
		}
		items = append(items, item)
	}
	return items
}

func (r *Resolver) resolveUnit(ctx context.Context, sc scope.Scope, code parse.UnitCode) (Resolution, error) {
	if code.Expired(r.now(), r.maxAge) {
		return Resolution{}, apperr.InvalidArgument("code for unit %s has expired; reprint the label", code.Number).
			With("unit_number", code.Number)
	}
	unit, err := r.store.Unit(ctx, sc, code.Number)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Kind: parse.KindUnit, Unit: &unit, Location: unit.Location()}, nil
}

// warehouseFor picks the warehouse for a compact cell code. An explicit hint
// wins; otherwise the scope must narrow down to exactly one warehouse.
func (r *Resolver) warehouseFor(ctx context.Context, sc scope.Scope, hint *int64) (model.Warehouse, error) {
	if hint != nil {
		if !sc.Allows(*hint) {
			return model.Warehouse{}, apperr.Forbidden("warehouse %d is outside the operator's scope", *hint)
		}
		return r.store.Warehouse(ctx, *hint)
	}
	if sc.IsEmpty() {
		return model.Warehouse{}, apperr.Forbidden("no warehouses assigned")
	}

	candidates, err := r.store.Warehouses(ctx, sc)
	if err != nil {
		return model.Warehouse{}, err
	}
	switch len(candidates) {
	case 0:
		return model.Warehouse{}, apperr.NotFound("no warehouse available to resolve the cell code")
	case 1:
		return candidates[0], nil
	default:
		shorts := make([]int, 0, len(candidates))
		for _, w := range candidates {
			shorts = append(shorts, w.ShortNumber)
		}
		return model.Warehouse{}, apperr.InvalidArgument("cell code is ambiguous across %d warehouses; scan the full code or pick a warehouse", len(candidates)).
			With("warehouses", shorts)
	}
}
