package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm-duet/backend/pkg/config"
	"llm-duet/backend/pkg/di"
	"llm-duet/backend/pkg/logger"
	"llm-duet/backend/pkg/router"
	"llm-duet/backend/pkg/secrets"
	"llm-duet/backend/shared/observability"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"))

	// Initialize secrets backend (Vault when configured, env fallback)
	if err := secrets.Init(log); err != nil {
		log.Warn("Secrets backend unavailable, using environment variables", "error", err.Error())
	}

	// Observability: traces to stdout, metrics via Prometheus scrape
	shutdownTracing := observability.SetupTracing("llm-duet")
	defer shutdownTracing()
	meterProvider, metricsHandler := observability.SetupPrometheusMetrics()
	defer meterProvider.Shutdown(context.Background())

	// Initialize database
	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	// Initialize dependency injection container
	container, err := di.New(db, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	// Initialize and setup router
	r := router.New(container)
	r.SetupRoutes(metricsHandler)

	// Add OpenAPI validation if schema file is available
	r.AddOpenAPIValidation(cfg.OpenAPI.SchemaPath)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a signal
	<-quit
	log.Info("Shutting down server...")

	// In-flight streams get the shutdown window to reach a turn
	// boundary and persist before the listener closes.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}
