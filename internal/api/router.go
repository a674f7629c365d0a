package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"cargo-placement-backend/config"
	"cargo-placement-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log))

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSAllowOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AddAllowHeaders(mw.OperatorIDHeader, mw.OperatorRoleHeader)
	r.Use(cors.New(corsCfg))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Only warehouse topology is cached: placement views must never be stale.
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Identity(h.store, h.log))
	{
		api.POST("/warehouses", mw.RequireAdmin(), mw.Invalidate(cacheStore), h.CreateWarehouse)
		api.GET("/warehouses", caching, h.ListWarehouses)
		api.GET("/warehouses/:id/cells/:block/:shelf/:cell", h.GetCell)

		api.PUT("/operators/:id/bindings", mw.RequireAdmin(), mw.Invalidate(cacheStore), h.PutBindings)
		api.GET("/me/scope", h.GetMyScope)

		api.POST("/cargos", h.CreateCargo)
		api.GET("/cargos/:id", h.GetCargo)
		api.GET("/cargos/:id/units", h.GetCargoUnits)
		api.POST("/cargos/:id/withdraw", h.WithdrawCargo)
		api.GET("/cargos/:id/audit", h.AuditCargo)

		api.GET("/placement/available", h.GetAvailable)
		api.GET("/placement/fully-placed", h.GetFullyPlaced)
		api.GET("/placement/units", h.GetAwaitingUnits)
		api.GET("/placement/progress", h.GetProgress)
		api.GET("/audit", h.AuditAll)

		api.POST("/scan", h.Scan)
		api.POST("/scan/batch", h.ScanBatch)

		api.POST("/placements", h.Place)
		api.POST("/placements/unplace", h.Unplace)

		api.GET("/sessions/:id/history", h.GetSessionHistory)
		api.POST("/sessions/:id/undo", h.UndoLast)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", caching, h.GetVAPIDPublicKey)
	}

	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"operator": c.GetHeader(mw.OperatorIDHeader),
		})
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
		} else {
			entry.Debug("request")
		}
	}
}
