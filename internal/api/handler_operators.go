package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cargo-placement-backend/internal/mw"
)

type putBindingsRequest struct {
	WarehouseIDs []int64 `json:"warehouse_ids"`
}

// PutBindings handles PUT /api/operators/:id/bindings. The identity service
// pushes the full set; an empty list unbinds the operator.
func (h *Handler) PutBindings(c *gin.Context) {
	var req putBindingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	operatorID := c.Param("id")
	if err := h.store.ReplaceBindings(c.Request.Context(), operatorID, req.WarehouseIDs); err != nil {
		h.respondError(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"operator":   mw.Operator(c).ID,
		"target":     operatorID,
		"warehouses": req.WarehouseIDs,
	}).Info("operator bindings replaced")
	c.Status(http.StatusNoContent)
}

type scopeResponse struct {
	OperatorID   string  `json:"operator_id"`
	Role         string  `json:"role"`
	AllWarehouse bool    `json:"all_warehouses"`
	WarehouseIDs []int64 `json:"warehouse_ids"`
	Message      string  `json:"message,omitempty"`
}

// GetMyScope handles GET /api/me/scope.
func (h *Handler) GetMyScope(c *gin.Context) {
	op, sc := mw.Operator(c), mw.Scope(c)
	resp := scopeResponse{
		OperatorID:   op.ID,
		Role:         string(op.Role),
		AllWarehouse: sc.IsAll(),
		WarehouseIDs: sc.IDs(),
	}
	if resp.WarehouseIDs == nil {
		resp.WarehouseIDs = []int64{}
	}
	if sc.IsEmpty() {
		resp.Message = "no warehouses assigned"
	}
	c.JSON(http.StatusOK, resp)
}
