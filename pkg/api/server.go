// Package api exposes the HTTP surface: the chat-provider webhook, the
// sandbox harness endpoint, the admin endpoints and the health check.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trempist/trempist/pkg/chat"
	"github.com/trempist/trempist/pkg/config"
	"github.com/trempist/trempist/pkg/database"
	"github.com/trempist/trempist/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg          *config.Config
	dbClient     *database.Client
	orchestrator *chat.Orchestrator
	store        store.Store
	engine       *gin.Engine
	httpServer   *http.Server
	logger       *slog.Logger
}

// NewServer builds the router.
func NewServer(cfg *config.Config, dbClient *database.Client, orchestrator *chat.Orchestrator, s store.Store) *Server {
	srv := &Server{
		cfg:          cfg,
		dbClient:     dbClient,
		orchestrator: orchestrator,
		store:        s,
		engine:       gin.New(),
		logger:       slog.Default().With("component", "api"),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery())

	s.engine.GET("/health", s.handleHealth)

	s.engine.GET("/webhook", s.handleWebhookVerify)
	s.engine.POST("/webhook", s.handleWebhookReceive)

	// The sandbox endpoint drives the whole flow against the isolated
	// namespace with outbound notifications suppressed; the reply and any
	// match details come back inline.
	s.engine.POST("/sandbox/message", s.handleSandboxMessage)

	admin := s.engine.Group("/admin", s.requireAdminToken)
	admin.DELETE("/users/:phone", s.handleAdminDeleteUser)
	admin.POST("/users/:phone/reset", s.handleAdminResetUser)
	admin.POST("/users/:phone/phone", s.handleAdminChangePhone)
	admin.GET("/users/:phone/rides", s.handleAdminListRides)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start runs the server until the context is cancelled, then drains with a
// grace period.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    ":" + s.cfg.HTTPPort,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "port", s.cfg.HTTPPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.dbClient.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": dbHealth, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": dbHealth})
}

// requireAdminToken guards the admin group with the bearer admin token.
func (s *Server) requireAdminToken(c *gin.Context) {
	const scheme = "Bearer "
	header := c.GetHeader("Authorization")
	if s.cfg.AdminToken == "" || len(header) <= len(scheme) || header[:len(scheme)] != scheme || header[len(scheme):] != s.cfg.AdminToken {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}
