package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/api/auth"
	"github.com/livereview/prchat/internal/broadcast"
	"github.com/livereview/prchat/internal/chat"
	"github.com/livereview/prchat/internal/chatmodel"
)

// ChatService is the part of chat.Service the HTTP surface needs.
type ChatService interface {
	CreateSession(ctx context.Context, userID int64, req chat.CreateSessionRequest) (*chatmodel.Session, error)
	ListSessions(ctx context.Context, userID int64, filter chat.SessionFilter) ([]*chatmodel.Session, error)
	GetSession(ctx context.Context, userID int64, sessionID string) (*chat.SessionWithMessages, error)
	DeleteSession(ctx context.Context, userID int64, sessionID string) error
	AskQuestion(ctx context.Context, userID int64, sessionID, question string) (*chat.AskResult, error)
	SessionAnalytics(ctx context.Context, userID int64, sessionID string) (*chat.SessionAnalytics, error)
}

// Options configures the HTTP server.
type Options struct {
	Port            int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server represents the API server
type Server struct {
	echo     *echo.Echo
	opts     Options
	chat     ChatService
	hub      *broadcast.Hub
	tokens   *auth.TokenService
	validate *validator.Validate
	upgrader *websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(opts Options, chatService ChatService, hub *broadcast.Hub, tokens *auth.TokenService) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if len(opts.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: opts.CORSOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	server := &Server{
		echo:     e,
		opts:     opts,
		chat:     chatService,
		hub:      hub,
		tokens:   tokens,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: newUpgrader(opts.CORSOrigins),
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1/chatbot")
	v1.GET("/ws", s.handleWebSocket, auth.RequireAuthOrQuery(s.tokens))

	requireAuth := auth.RequireAuth(s.tokens)
	v1.POST("/sessions", s.createSession, requireAuth)
	v1.GET("/sessions", s.listSessions, requireAuth)
	v1.GET("/sessions/:id", s.getSession, requireAuth)
	v1.POST("/sessions/:id/ask", s.askQuestion, requireAuth)
	v1.DELETE("/sessions/:id", s.deleteSession, requireAuth)
	v1.GET("/analytics/sessions/:id", s.sessionAnalytics, requireAuth)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.opts.Port).Msg("API server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.opts.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	log.Info().Msg("Shutting down API server")
	return s.echo.Shutdown(shutdownCtx)
}
