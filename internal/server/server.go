// Package server exposes the valuation pipeline over HTTP. Every endpoint
// has a synchronous JSON flavor and a streaming flavor that reports
// pipeline progress as server-sent events.
package server

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"satei/internal/pipeline"
	"satei/internal/types"
)

// Valuator is the pipeline surface the handlers depend on.
type Valuator interface {
	Describe(ctx context.Context, image io.Reader, mimeType string, sink pipeline.Sink) (types.InstrumentDescription, error)
	Estimate(ctx context.Context, desc types.InstrumentDescription, sink pipeline.Sink) (types.ValuationResult, error)
}

// Server wires the HTTP routes to the pipeline.
type Server struct {
	engine     *gin.Engine
	valuator   Valuator
	logger     *zap.Logger
	corsOrigin string
}

// New builds the server and registers all routes.
func New(valuator Valuator, corsOrigin string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:     gin.New(),
		valuator:   valuator,
		logger:     logger,
		corsOrigin: corsOrigin,
	}

	s.engine.Use(gin.Recovery(), s.requestID(), s.cors())

	api := s.engine.Group("/api")
	{
		api.GET("/health", s.health)
		api.POST("/describe", s.describe)
		api.POST("/describe/stream", s.describeStream)
		api.POST("/estimate", s.estimate)
		api.POST("/estimate/stream", s.estimateStream)
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails or the process is stopped.
func (s *Server) Run(addr string) error {
	s.logger.Info("listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", s.corsOrigin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

const requestIDKey = "request_id"

func requestLogger(c *gin.Context, logger *zap.Logger) *zap.Logger {
	if id, ok := c.Get(requestIDKey); ok {
		return logger.With(zap.String("request_id", id.(string)))
	}
	return logger
}
