package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnabghosh/blazingmq-session/internal/api/handlers"
	"github.com/arnabghosh/blazingmq-session/internal/api/middleware"
	"github.com/arnabghosh/blazingmq-session/internal/storage"
)

// Router manages the ack journal API routing and handlers
type Router struct {
	engine     *gin.Engine
	logger     *slog.Logger
	ackHandler *handlers.AckHandler
}

// NewRouter creates a new API router with all handlers initialized
func NewRouter(ackRepo storage.AckRepository, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	router := &Router{
		engine:     gin.New(),
		logger:     logger.With("component", "api"),
		ackHandler: handlers.NewAckHandler(ackRepo),
	}

	router.setupMiddleware()
	router.setupRoutes()

	return router
}

// setupMiddleware configures global middleware
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.LoggingMiddleware(r.logger))
	r.engine.Use(middleware.ErrorHandlerMiddleware())
	r.engine.Use(gin.Recovery())
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
		})
	})

	v1 := r.engine.Group("/api/v1")
	{
		acks := v1.Group("/acks")
		{
			acks.GET("", r.ackHandler.ListQueueAcks)
			acks.GET("/:guid", r.ackHandler.GetAck)
		}
	}
}

// Engine returns the underlying Gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
