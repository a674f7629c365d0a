package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/mw"
	"cargo-placement-backend/internal/store"
)

// unitResponse exposes a unit with its location flattened into one object.
type unitResponse struct {
	model.CargoUnit
	Location *model.CellAddress `json:"location"`
}

func toUnitResponses(units []model.CargoUnit) []unitResponse {
	out := make([]unitResponse, 0, len(units))
	for _, u := range units {
		out = append(out, unitResponse{CargoUnit: u, Location: u.Location()})
	}
	return out
}

// CreateCargo handles POST /api/cargos.
func (h *Handler) CreateCargo(c *gin.Context) {
	var draft store.CargoDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, err.Error())
		return
	}

	op := mw.Operator(c)
	cargo, err := h.store.AcceptCargo(c.Request.Context(), op, mw.Scope(c), draft)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"operator": op.ID,
		"cargo":    cargo.ID,
		"units":    cargo.TotalUnits,
	}).Info("cargo accepted")
	c.JSON(http.StatusCreated, cargo)
}

// GetCargo handles GET /api/cargos/:id.
func (h *Handler) GetCargo(c *gin.Context) {
	cargo, err := h.store.Cargo(c.Request.Context(), mw.Scope(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cargo)
}

// GetCargoUnits handles GET /api/cargos/:id/units.
func (h *Handler) GetCargoUnits(c *gin.Context) {
	units, err := h.store.UnitsOf(c.Request.Context(), mw.Scope(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUnitResponses(units))
}

// WithdrawCargo handles POST /api/cargos/:id/withdraw.
func (h *Handler) WithdrawCargo(c *gin.Context) {
	op := mw.Operator(c)
	cargo, err := h.store.WithdrawCargo(c.Request.Context(), op, mw.Scope(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{"operator": op.ID, "cargo": cargo.ID}).Info("cargo withdrawn")
	c.JSON(http.StatusOK, cargo)
}

// AuditCargo handles GET /api/cargos/:id/audit.
func (h *Handler) AuditCargo(c *gin.Context) {
	found, err := h.placement.Audit(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discrepancies": found})
}
