package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/mw"
	"cargo-placement-backend/internal/placement"
	"cargo-placement-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	placement *placement.Service
	webpush   *webpush.Options
	log       logrus.FieldLogger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, svc *placement.Service, webpushOptions *webpush.Options, log logrus.FieldLogger) *Handler {
	return &Handler{
		store:     s,
		placement: svc,
		webpush:   webpushOptions,
		log:       log,
	}
}

func caller(c *gin.Context) placement.Caller {
	return placement.Caller{Operator: mw.Operator(c), Scope: mw.Scope(c)}
}

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the typed error body scanning clients switch on.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusOf(err)
	kind := apperr.KindName(err)
	body := gin.H{"error": err.Error(), "kind": kind}
	if details := apperr.DetailsOf(err); len(details) > 0 {
		body["details"] = details
	}
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{"path": c.FullPath(), "kind": kind}).Error("request failed")
	}
	if kind == "internal" {
		// don't leak driver messages
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": apperr.KindName(apperr.ErrInvalidArgument)})
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
