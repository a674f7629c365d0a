package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/mw"
)

type createWarehouseRequest struct {
	ShortNumber     int    `json:"short_number" binding:"required"`
	Name            string `json:"name" binding:"required"`
	Blocks          int    `json:"blocks" binding:"required"`
	ShelvesPerBlock int    `json:"shelves_per_block" binding:"required"`
	CellsPerShelf   int    `json:"cells_per_shelf" binding:"required"`
}

// CreateWarehouse handles POST /api/warehouses.
func (h *Handler) CreateWarehouse(c *gin.Context) {
	var req createWarehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	w := model.Warehouse{
		ShortNumber:     req.ShortNumber,
		Name:            req.Name,
		Blocks:          req.Blocks,
		ShelvesPerBlock: req.ShelvesPerBlock,
		CellsPerShelf:   req.CellsPerShelf,
	}
	if err := h.store.CreateWarehouse(c.Request.Context(), &w); err != nil {
		h.respondError(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{"operator": mw.Operator(c).ID, "warehouse": w.ID}).Info("warehouse created")
	c.JSON(http.StatusCreated, w)
}

// ListWarehouses handles GET /api/warehouses.
func (h *Handler) ListWarehouses(c *gin.Context) {
	warehouses, err := h.store.Warehouses(c.Request.Context(), mw.Scope(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, warehouses)
}

// GetCell handles GET /api/warehouses/:id/cells/:block/:shelf/:cell.
func (h *Handler) GetCell(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	block, ok := intParam(c, "block")
	if !ok {
		return
	}
	shelf, ok := intParam(c, "shelf")
	if !ok {
		return
	}
	cell, ok := intParam(c, "cell")
	if !ok {
		return
	}

	addr := model.CellAddress{WarehouseID: id, Block: block, Shelf: shelf, Cell: cell}
	state, err := h.store.CellState(c.Request.Context(), mw.Scope(c), addr)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
