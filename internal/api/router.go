package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/lineup-engine/internal/api/handlers"
	"github.com/jstittsworth/lineup-engine/internal/api/middleware"
	"github.com/jstittsworth/lineup-engine/internal/cache"
	"github.com/jstittsworth/lineup-engine/internal/services"
	"github.com/jstittsworth/lineup-engine/internal/websocket"
	"github.com/jstittsworth/lineup-engine/pkg/config"
	"github.com/jstittsworth/lineup-engine/pkg/database"
)

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, db *database.DB, resultCache *cache.ResultCache, hub *websocket.Hub, alerts *services.AlertService, cfg *config.Config, logger *logrus.Logger) {
	slateHandler := handlers.NewSlateHandler(db, alerts, hub, cfg, logger)
	optimizerHandler := handlers.NewOptimizerHandler(db, resultCache, hub, alerts, cfg, logger)
	runHandler := handlers.NewRunHandler(db)

	// Slate endpoints
	group.GET("/slates", slateHandler.ListSlates)
	group.GET("/slates/:id", slateHandler.GetSlate)
	group.GET("/slates/:id/players", slateHandler.GetSlatePlayers)

	// Run endpoints
	group.GET("/runs", runHandler.ListRuns)
	group.GET("/runs/:id", runHandler.GetRun)
	group.GET("/runs/:id/export", runHandler.ExportRun)

	// Mutating routes take bearer auth when enabled
	mutating := group.Group("")
	if cfg.AuthEnabled {
		mutating.Use(middleware.AuthRequired(cfg.JWTSecret))
	}
	mutating.POST("/slates/import", slateHandler.ImportSlate)
	mutating.DELETE("/slates/:id", slateHandler.DeleteSlate)

	// Optimization endpoints are rate limited per client
	optimize := mutating.Group("")
	optimize.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	{
		optimize.POST("/optimize", optimizerHandler.Optimize)
		optimize.POST("/optimize/generate", optimizerHandler.GenerateLineups)
		optimize.POST("/optimize/validate", optimizerHandler.ValidateLineup)
	}
}
