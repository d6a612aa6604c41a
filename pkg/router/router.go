package router

import (
	"net/http"
	"time"

	"llm-duet/backend/pkg/config"
	"llm-duet/backend/pkg/di"
	"llm-duet/backend/pkg/errors"
	"llm-duet/backend/pkg/logger"
	"llm-duet/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	// Use the container's logger
	logger.SetGlobal(container.Logger)

	cfg := container.Config

	// Configure Gin mode based on environment
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))

	// Add custom error handler middleware
	engine.Use(errors.ErrorHandler())

	// Add custom recovery middleware with structured logging instead of default
	engine.Use(errors.RecoveryWithLogger())

	engine.Use(middleware.RequestIDMiddleware())

	// Apply rate limiting to all routes
	rateLimiter := middleware.NewRateLimiter(container.Logger)
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes. metricsHandler serves
// the Prometheus scrape endpoint; pass nil to skip mounting it.
func (r *Router) SetupRoutes(metricsHandler http.Handler) {
	r.Engine.Use(corsMiddleware())

	// API version 1 routes
	v1 := r.Engine.Group("/api/v1")
	{
		v1.GET("/health", gin.WrapF(r.Container.Health.Handler()))

		r.Container.PairHandler.RegisterRoutes(v1)
		r.Container.ConversationHandler.RegisterRoutes(v1)
		r.Container.SettingsHandler.RegisterRoutes(v1)
		r.Container.StreamHandler.RegisterRoutes(v1)
	}

	// WebSocket mirror of the SSE stream
	r.Engine.GET("/ws/conversations/:id/stream", r.Container.WSStreamHandler.ServeStream)

	if metricsHandler != nil {
		r.Engine.GET("/metrics", gin.WrapH(metricsHandler))
	}

	// Liveness probe kept outside the versioned group for load balancers
	r.Engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"env":    r.Config.Server.Env,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

// Enhance CORS middleware to explicitly allow WebSocket-specific headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Upgrade, Connection, Cache-Control")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
