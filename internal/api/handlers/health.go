package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jstittsworth/lineup-engine/internal/cache"
	"github.com/jstittsworth/lineup-engine/internal/services"
	"github.com/jstittsworth/lineup-engine/internal/websocket"
	"github.com/jstittsworth/lineup-engine/pkg/database"
)

type HealthHandler struct {
	db          *database.DB
	cache       *cache.ResultCache
	maintenance *services.MaintenanceService
	hub         *websocket.Hub
}

func NewHealthHandler(db *database.DB, resultCache *cache.ResultCache, maintenance *services.MaintenanceService, hub *websocket.Hub) *HealthHandler {
	return &HealthHandler{
		db:          db,
		cache:       resultCache,
		maintenance: maintenance,
		hub:         hub,
	}
}

// GetHealth returns basic health status - always returns 200 if server is running
// This is used for basic liveness probes
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "lineup-engine",
		"time":    time.Now().UTC(),
	})
}

// GetReady returns readiness status - only returns 200 when the database
// (and cache, when configured) respond to pings
func (h *HealthHandler) GetReady(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if err := h.db.Health(); err != nil {
		checks["database"] = err.Error()
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Health(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "disabled"
	}

	status := gin.H{
		"status":     "ready",
		"checks":     checks,
		"websockets": h.hub.GetConnectionCount(),
	}
	if h.maintenance != nil {
		status["jobs"] = h.maintenance.Jobs()
	}

	if !ready {
		status["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
