package queueservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnabghosh/blazingmq-session/internal/api/dto"
	"github.com/arnabghosh/blazingmq-session/internal/api/middleware"
	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

const defaultFetchLimit = 100

// HTTPServer provides the HTTP API of the development broker
type HTTPServer struct {
	broker *Broker
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// FetchRequest query parameters
type FetchRequest struct {
	SessionID string `form:"session_id" binding:"required"`
	QueueID   uint64 `form:"queue_id" binding:"required"`
	Max       int    `form:"max"`
}

// ServerConfig holds listener settings for the HTTP server
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

// NewHTTPServer creates a new HTTP server for the broker
func NewHTTPServer(broker *Broker, config ServerConfig, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	hs := &HTTPServer{
		broker: broker,
		router: router,
		logger: logger.With("component", "http_server"),
	}

	router.Use(middleware.LoggingMiddleware(hs.logger, "/api/v1/queues/fetch", "/api/v1/sessions/:id/heartbeat"))
	router.Use(middleware.ErrorHandlerMiddleware())
	router.Use(gin.Recovery())

	// Register routes
	api := router.Group("/api/v1")
	{
		api.POST("/sessions", hs.handleCreateSession)
		api.DELETE("/sessions/:id", hs.handleCloseSession)
		api.PUT("/sessions/:id/heartbeat", hs.handleHeartbeat)

		queues := api.Group("/queues")
		{
			queues.POST("/open", hs.handleOpenQueue)
			queues.POST("/configure", hs.handleConfigureQueue)
			queues.POST("/close", hs.handleCloseQueue)
			queues.POST("/post", hs.handlePost)
			queues.POST("/confirm", hs.handleConfirm)
			queues.GET("/fetch", hs.handleFetch)
		}

		api.GET("/stats", hs.handleStats)
	}

	router.GET("/health", hs.handleHealth)

	hs.server = &http.Server{
		Addr:         config.Addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return hs
}

// Handler returns the HTTP handler serving the broker API
func (hs *HTTPServer) Handler() http.Handler {
	return hs.router
}

// Start starts the HTTP server
func (hs *HTTPServer) Start() error {
	hs.logger.Info("Starting HTTP server", "addr", hs.server.Addr)
	if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (hs *HTTPServer) Shutdown(ctx context.Context) error {
	hs.logger.Info("Shutting down HTTP server")
	return hs.server.Shutdown(ctx)
}

func (hs *HTTPServer) handleCreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sessionID, err := hs.broker.CreateSession(req.ClientID)
	if err != nil {
		hs.fail(c, "Failed to create session", err)
		return
	}
	c.JSON(http.StatusCreated, dto.CreateSessionResponse{SessionID: sessionID})
}

func (hs *HTTPServer) handleCloseSession(c *gin.Context) {
	if err := hs.broker.CloseSession(c.Param("id")); err != nil {
		hs.fail(c, "Failed to close session", err)
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "closed"})
}

func (hs *HTTPServer) handleHeartbeat(c *gin.Context) {
	if err := hs.broker.Heartbeat(c.Param("id")); err != nil {
		hs.fail(c, "Heartbeat failed", err)
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

func (hs *HTTPServer) handleOpenQueue(c *gin.Context) {
	var req dto.OpenQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id, settings, err := hs.broker.OpenQueue(req.SessionID, req.QueueURI, req.Read, req.Write, dto.ToQueueSettings(req.Settings))
	if err != nil {
		hs.fail(c, "Failed to open queue", err)
		return
	}
	c.JSON(http.StatusOK, dto.OpenQueueResponse{QueueID: id, Settings: dto.ToQueueSettingsDTO(settings)})
}

func (hs *HTTPServer) handleConfigureQueue(c *gin.Context) {
	var req dto.ConfigureQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	settings, err := hs.broker.ConfigureQueue(req.SessionID, req.QueueID, dto.ToQueueSettings(req.Settings))
	if err != nil {
		hs.fail(c, "Failed to configure queue", err)
		return
	}
	c.JSON(http.StatusOK, dto.ConfigureQueueResponse{Settings: dto.ToQueueSettingsDTO(settings)})
}

func (hs *HTTPServer) handleCloseQueue(c *gin.Context) {
	var req dto.CloseQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := hs.broker.CloseQueue(req.SessionID, req.QueueID); err != nil {
		hs.fail(c, "Failed to close queue", err)
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "closed"})
}

func (hs *HTTPServer) handlePost(c *gin.Context) {
	var req dto.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := domain.ParseGUIDHex(req.GUID); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := domain.ParseCompression(req.Compression); err != nil {
		badRequest(c, err)
		return
	}

	status, err := hs.broker.Post(req.SessionID, req.QueueID, &Message{
		GUID:        req.GUID,
		Payload:     req.Payload,
		Properties:  dto.ToRawProperties(req.Properties),
		Compression: req.Compression,
	})
	if err != nil {
		hs.fail(c, "Failed to post message", err)
		return
	}

	resp := dto.PostResponse{GUID: req.GUID, AckStatus: int(status)}
	if status != domain.AckSuccess {
		resp.StatusDescription = status.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (hs *HTTPServer) handleConfirm(c *gin.Context) {
	var req dto.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := hs.broker.Confirm(req.SessionID, req.QueueID, req.GUID); err != nil {
		hs.fail(c, "Failed to confirm message", err)
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "confirmed"})
}

func (hs *HTTPServer) handleFetch(c *gin.Context) {
	var req FetchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Max <= 0 {
		req.Max = defaultFetchLimit
	}

	msgs, err := hs.broker.Fetch(req.SessionID, req.QueueID, req.Max)
	if err != nil {
		hs.fail(c, "Failed to fetch messages", err)
		return
	}

	resp := dto.FetchResponse{Messages: make([]dto.PushMessageDTO, 0, len(msgs)), Count: len(msgs)}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, dto.PushMessageDTO{
			QueueURI:    m.QueueURI,
			GUID:        m.GUID,
			Payload:     m.Payload,
			Properties:  dto.ToPropertyDTOs(m.Properties),
			Compression: m.Compression,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// handleStats returns broker statistics
func (hs *HTTPServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, hs.broker.Stats())
}

// handleHealth returns health status
func (hs *HTTPServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"broker":    hs.broker.String(),
	})
}

// fail writes a broker error with its result code
func (hs *HTTPServer) fail(c *gin.Context, msg string, err error) {
	code := ResultCodeOf(err)
	if code == domain.ResultUnknown {
		hs.logger.Error(msg, "path", c.FullPath(), "error", err)
	} else {
		hs.logger.Debug(msg, "path", c.FullPath(), "error", err)
	}

	c.JSON(httpStatusOf(code), dto.ErrorResponse{
		Error:      msg,
		Message:    err.Error(),
		ResultCode: int(code),
		Timestamp:  time.Now(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:      "Invalid request",
		Message:    fmt.Sprintf("invalid request: %v", err),
		ResultCode: int(domain.ResultInvalidArgument),
		Timestamp:  time.Now(),
	})
}

func httpStatusOf(code domain.ResultCode) int {
	switch code {
	case domain.ResultNotConnected:
		return http.StatusNotFound
	case domain.ResultInvalidArgument:
		return http.StatusBadRequest
	case domain.ResultNotSupported, domain.ResultRefused:
		return http.StatusConflict
	case domain.ResultNotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
