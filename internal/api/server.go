// Package api provides the HTTP surface of the relay: the read-only query
// endpoints over the message buffer and the control endpoints driving the
// session manager.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sakurairo/danmaku-relay/internal/event"
	"github.com/sakurairo/danmaku-relay/internal/session"
)

// Relay is the manager surface the HTTP handlers need. Satisfied by
// *session.Manager; narrowed to an interface for handler tests.
type Relay interface {
	Configure(ctx context.Context, creds session.Credentials) error
	Stop(ctx context.Context) error
	Status() session.Status
	Messages() []event.Message
}

// Server wraps the gin engine and its HTTP server.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	relay      Relay
	logger     *slog.Logger
	origins    []string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAllowedOrigins sets the CORS allow-list for the local web frontend.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the API server bound to addr.
func NewServer(addr string, relay Relay, opts ...ServerOption) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		engine: engine,
		relay:  relay,
		logger: slog.Default(),
		// The stage frontend dev server, same default the upstream
		// service allowed.
		origins: []string{"http://localhost:5173"},
	}
	for _, opt := range opts {
		opt(s)
	}

	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: s.origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/messages", s.handleMessages)
	s.engine.GET("/status", s.handleStatus)
	s.engine.POST("/configure", s.handleConfigure)
	s.engine.POST("/stop", s.handleStop)
}

// requestLogger logs each request through slog instead of gin's default
// writer.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
