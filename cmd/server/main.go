package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/lineup-engine/internal/api"
	"github.com/jstittsworth/lineup-engine/internal/api/handlers"
	"github.com/jstittsworth/lineup-engine/internal/api/middleware"
	"github.com/jstittsworth/lineup-engine/internal/cache"
	"github.com/jstittsworth/lineup-engine/internal/models"
	"github.com/jstittsworth/lineup-engine/internal/services"
	"github.com/jstittsworth/lineup-engine/internal/websocket"
	"github.com/jstittsworth/lineup-engine/pkg/config"
	"github.com/jstittsworth/lineup-engine/pkg/database"
	"github.com/jstittsworth/lineup-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	log := logger.InitLogger("", cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(
		&models.Slate{},
		&models.SlatePlayer{},
		&models.OptimizationRun{},
		&models.SavedLineup{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Connect to Redis; the engine degrades to uncached operation without it
	resultCache, err := cache.NewResultCache(cfg.RedisURL, time.Duration(cfg.CacheTTL)*time.Second, log)
	if err != nil {
		log.Warnf("Redis unavailable, running without result cache: %v", err)
		resultCache = nil
	} else {
		defer resultCache.Close()
	}

	// Start the websocket hub
	hub := websocket.NewHub(log)
	go hub.Run()

	// Start scheduled maintenance
	maintenance := services.NewMaintenanceService(db, resultCache, cfg.CleanupSchedule, cfg.ResultRetentionDays, log)
	if err := maintenance.Start(); err != nil {
		log.Errorf("Failed to start maintenance scheduler: %v", err)
	}
	defer maintenance.Stop()

	// SMS alerts (no-op unless configured)
	alerts := services.NewAlertService(cfg, log)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg.CorsOrigins))

	// Health endpoints outside the versioned API
	healthHandler := handlers.NewHealthHandler(db, resultCache, maintenance, hub)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	// Setup API routes under /api/v1
	apiV1 := router.Group("/api/v1")
	api.SetupRoutes(apiV1, db, resultCache, hub, alerts, cfg, log)

	// Run-scoped websocket endpoint at root level (not under /api/v1)
	router.GET("/ws/runs/:id", hub.HandleWebSocket)

	for _, route := range router.Routes() {
		log.Debugf("%s %s", route.Method, route.Path)
	}

	// Setup server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
