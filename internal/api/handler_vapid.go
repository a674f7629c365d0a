package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cargo-placement-backend/internal/apperr"
)

// GetVAPIDPublicKey returns the key clients subscribe with. Push is optional,
// so a missing key is NotFound rather than a server fault.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		h.respondError(c, apperr.NotFound("push notifications are disabled"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
