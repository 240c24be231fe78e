// Package api exposes the HTTP surface: session lifecycle, message dispatch,
// the per-session SSE event stream, health, and debug endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orito-labs/orito/pkg/cache"
	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/database"
	"github.com/orito-labs/orito/pkg/session"
)

// StatsProvider exposes cache statistics for the debug endpoint.
type StatsProvider interface {
	Stats() cache.Stats
}

// Server is the HTTP server.
type Server struct {
	cfg      *config.Config
	db       *database.Client
	sessions *session.Manager
	caches   map[string]StatsProvider
	logger   *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// Options configure a new Server. DB is optional; without it the health
// check reports the in-memory store.
type Options struct {
	Config   *config.Config
	DB       *database.Client
	Sessions *session.Manager
	Caches   map[string]StatsProvider
	Logger   *slog.Logger
}

// NewServer creates the API server and registers all routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      opts.Config,
		db:       opts.DB,
		sessions: opts.Sessions,
		caches:   opts.Caches,
		logger:   logger,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), securityHeaders())

	r.GET("/health", s.healthHandler)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sessions", s.createSessionHandler)
		v1.GET("/sessions", s.listSessionsHandler)
		v1.GET("/sessions/:id", s.getSessionHandler)
		v1.DELETE("/sessions/:id", s.closeSessionHandler)
		v1.POST("/sessions/:id/messages", s.sendMessageHandler)
		v1.GET("/sessions/:id/events", s.streamEventsHandler)

		v1.GET("/debug/caches", s.cacheStatsHandler)
	}
	return r
}

// Handler returns the underlying http.Handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the server on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
