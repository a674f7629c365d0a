package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/mw"
	"cargo-placement-backend/internal/placement"
	"cargo-placement-backend/internal/store"
)

// GetAvailable handles GET /api/placement/available.
func (h *Handler) GetAvailable(c *gin.Context) {
	cargos, err := h.store.AvailableForPlacement(c.Request.Context(), mw.Scope(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cargos)
}

// GetFullyPlaced handles GET /api/placement/fully-placed.
func (h *Handler) GetFullyPlaced(c *gin.Context) {
	cargos, err := h.store.FullyPlaced(c.Request.Context(), mw.Scope(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cargos)
}

type awaitingGroup struct {
	Cargo model.Cargo    `json:"cargo"`
	Units []unitResponse `json:"units"`
}

// GetAwaitingUnits handles GET /api/placement/units.
func (h *Handler) GetAwaitingUnits(c *gin.Context) {
	groups, err := h.store.AwaitingUnits(c.Request.Context(), mw.Scope(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := make([]awaitingGroup, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, awaitingGroup{Cargo: g.Cargo, Units: toUnitResponses(g.Units)})
	}
	c.JSON(http.StatusOK, resp)
}

// GetProgress handles GET /api/placement/progress.
func (h *Handler) GetProgress(c *gin.Context) {
	p, err := h.store.Progress(c.Request.Context(), mw.Scope(c), mw.Operator(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// AuditAll handles GET /api/audit.
func (h *Handler) AuditAll(c *gin.Context) {
	found, err := h.placement.AuditAll(c.Request.Context(), caller(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discrepancies": found})
}

type scanRequest struct {
	Code        string `json:"code" binding:"required"`
	WarehouseID *int64 `json:"warehouse_id"`
}

// Scan handles POST /api/scan.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.placement.Resolver().Resolve(c.Request.Context(), mw.Scope(c), req.Code, req.WarehouseID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type scanBatchRequest struct {
	Codes       []string `json:"codes" binding:"required"`
	WarehouseID *int64   `json:"warehouse_id"`
}

const maxBatchCodes = 200

// ScanBatch handles POST /api/scan/batch. Each code gets its own outcome.
func (h *Handler) ScanBatch(c *gin.Context) {
	var req scanBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(req.Codes) > maxBatchCodes {
		h.respondError(c, apperr.InvalidArgument("at most %d codes per batch", maxBatchCodes))
		return
	}
	items := h.placement.Resolver().ResolveBatch(c.Request.Context(), mw.Scope(c), req.Codes, req.WarehouseID)
	c.JSON(http.StatusOK, gin.H{"results": items})
}

type placeRequest struct {
	Unit        string             `json:"unit" binding:"required"`
	Cell        string             `json:"cell"`
	Address     *model.CellAddress `json:"address"`
	WarehouseID *int64             `json:"warehouse_id"`
	SessionID   string             `json:"session_id"`
}

type placeResponse struct {
	Unit          unitResponse          `json:"unit"`
	Cargo         model.Cargo           `json:"cargo"`
	Record        model.PlacementRecord `json:"record"`
	Discrepancies []store.Discrepancy   `json:"discrepancies,omitempty"`
}

// Place handles POST /api/placements.
func (h *Handler) Place(c *gin.Context) {
	var req placeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	out, err := h.placement.Place(c.Request.Context(), caller(c), placement.PlaceCommand{
		UnitCode:      req.Unit,
		CellCode:      req.Cell,
		Cell:          req.Address,
		WarehouseHint: req.WarehouseID,
		SessionID:     req.SessionID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, placeResponse{
		Unit:          unitResponse{CargoUnit: out.Unit, Location: out.Unit.Location()},
		Cargo:         out.Cargo,
		Record:        out.Record,
		Discrepancies: out.Discrepancies,
	})
}

type unplaceRequest struct {
	Unit string `json:"unit" binding:"required"`
}

type unplaceResponse struct {
	Unit   unitResponse          `json:"unit"`
	Cargo  model.Cargo           `json:"cargo"`
	Record model.PlacementRecord `json:"record"`
}

func toUnplaceResponse(res store.UnplaceResult) unplaceResponse {
	return unplaceResponse{
		Unit:   unitResponse{CargoUnit: res.Unit, Location: res.Unit.Location()},
		Cargo:  res.Cargo,
		Record: res.Record,
	}
}

// Unplace handles POST /api/placements/unplace. Unit numbers contain slashes,
// so the number travels in the body rather than the path.
func (h *Handler) Unplace(c *gin.Context) {
	var req unplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.placement.Unplace(c.Request.Context(), caller(c), req.Unit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUnplaceResponse(res))
}

// GetSessionHistory handles GET /api/sessions/:id/history.
func (h *Handler) GetSessionHistory(c *gin.Context) {
	records, err := h.store.SessionHistory(c.Request.Context(), mw.Scope(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// UndoLast handles POST /api/sessions/:id/undo.
func (h *Handler) UndoLast(c *gin.Context) {
	res, err := h.placement.UndoLast(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUnplaceResponse(res))
}
