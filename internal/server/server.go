// Package server exposes the HTTP API: document ingestion and search,
// retrieval-augmented chat streaming, and operational endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/isolation"
	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/session"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Header names for tenant isolation.
const (
	HeaderSessionID    = "x-session-id"
	HeaderIsolationKey = "x-isolation-key"
)

// defaultSearchLimit applies when a search request names no limit.
const defaultSearchLimit = 5

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string

	// UploadDir is the base directory for uploaded files, mirrored per
	// isolation key like the vector store root.
	UploadDir string

	// MaxFileSize caps uploads in bytes.
	MaxFileSize int64
}

// Deps are the collaborators the handlers drive.
type Deps struct {
	Resolver  *isolation.Resolver
	Stores    *vectorstore.Manager
	Embedder  vectorstore.Embedder
	Ingestor  *ingest.Service
	Augmentor *rag.Augmentor
	Chat      *llm.Client

	// Sweeper is optional; when set, API traffic opportunistically
	// triggers expired-session sweeps.
	Sweeper *session.Sweeper
}

func (d Deps) validate() error {
	if d.Resolver == nil {
		return fmt.Errorf("isolation resolver is required")
	}
	if d.Stores == nil {
		return fmt.Errorf("store manager is required")
	}
	if d.Embedder == nil {
		return fmt.Errorf("embedder is required")
	}
	if d.Ingestor == nil {
		return fmt.Errorf("ingest service is required")
	}
	if d.Augmentor == nil {
		return fmt.Errorf("augmentor is required")
	}
	if d.Chat == nil {
		return fmt.Errorf("chat client is required")
	}
	return nil
}

// Server provides the HTTP API.
type Server struct {
	echo   *echo.Echo
	config Config
	deps   Deps
	logger *zap.Logger
}

// NewServer creates the HTTP server with routes and middleware wired.
func NewServer(cfg Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 << 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins(cfg.CORSOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, HeaderSessionID, HeaderIsolationKey},
		// Session-mode clients read their key from the response.
		ExposeHeaders: []string{HeaderSessionID},
	}))

	s := &Server{
		echo:   e,
		config: cfg,
		deps:   deps,
		logger: logger,
	}

	e.Use(s.requestLogger())
	s.registerRoutes()

	return s, nil
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// requestLogger logs each request and feeds the Prometheus counters.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			recordRequest(c.Request().Method, c.Path(), status, duration.Seconds())
			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api", s.isolationMiddleware)

	chat := api.Group("/chat")
	chat.POST("/stream", s.handleChatStream)
	chat.POST("", s.handleChatComplete)
	chat.GET("/models", s.handleListModels)

	docs := api.Group("/documents")
	docs.POST("/upload", s.handleUpload)
	docs.POST("/search", s.handleSearch)
	docs.GET("/list", s.handleListDocuments)
	docs.DELETE("/:documentId", s.handleDeleteDocument)
	docs.DELETE("", s.handleClearDocuments)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
