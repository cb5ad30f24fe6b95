package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/twalsh/matchup-edge/internal/api"
	"github.com/twalsh/matchup-edge/internal/api/handlers"
	"github.com/twalsh/matchup-edge/internal/api/middleware"
	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/database"
	"github.com/twalsh/matchup-edge/pkg/logger"
	"github.com/twalsh/matchup-edge/pkg/metrics"
)

func main() {
	// Load .env before viper reads the environment
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger("", cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// The database is optional. Without one the glossary and sheet routes
	// report unavailable and uploads live only in memory.
	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
	} else {
		log.Warn("DATABASE_URL not set; running without persistence")
	}

	// Cache falls back to in-process memory when redis is unreachable
	cache := services.NewCache(cfg.CacheBackend, cfg.RedisURL, cfg.CacheTTL())
	if closer, ok := cache.(io.Closer); ok {
		defer closer.Close()
	}

	// WebSocket hub for refresh progress events
	hub := services.NewWebSocketHub(log)
	go hub.Run()

	// Pipeline services
	datasets := services.NewDatasetService(cfg.ScheduleURL, cfg.PBPReleaseURL, cache, log, cfg.ExternalAPITimeout, cfg.CacheTTL())
	uploads := services.NewUploadService(db, log)
	breaker := services.NewCircuitBreakerService(cfg.ProviderOrder, 60*time.Second, log)
	enrichment, err := services.NewEnrichmentService(cfg, cache, breaker, log)
	if err != nil {
		log.Fatalf("Failed to build provider adapters: %v", err)
	}

	refresher := services.NewRefresherService(cfg, datasets, uploads, enrichment, cache, hub, log)
	if err := refresher.Start(); err != nil {
		log.Errorf("Failed to start scheduled refresh: %v", err)
	}
	defer refresher.Stop()

	// Per-IP limiter for the routes that trigger upstream work
	limiter := services.NewRequestRateLimiter(cfg.RefreshRatePerMinute, time.Minute)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS(cfg.CorsOrigins))

	// Health and metrics sit outside the API group
	healthHandler := handlers.NewHealthHandler(db, refresher, hub)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})))

	// Setup API routes under /api/v1
	apiV1 := router.Group("/api/v1")
	api.SetupRoutes(apiV1, db, cfg, datasets, uploads, enrichment, refresher, limiter)

	// WebSocket endpoint at root level (not under /api/v1)
	wsHandler := handlers.NewWebSocketHandler(hub)
	router.GET("/ws/refresh", wsHandler.HandleRefreshStream)

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
