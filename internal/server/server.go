package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/valentinpelus/linkbrief/internal/handler"
	"github.com/valentinpelus/linkbrief/internal/middleware"
	"go.uber.org/zap"
)

// WebhookPath is where Telegram delivers updates
const WebhookPath = "/telegram/webhook"

// Server wraps the HTTP server
type Server struct {
	httpServer     *http.Server
	webhookHandler *handler.WebhookHandler
	authMiddleware *middleware.AuthMiddleware
	stats          handler.StatsFunc
	logger         *zap.Logger
}

// New creates a new HTTP server
func New(port string, secret string, dispatcher *handler.Dispatcher, stats handler.StatsFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		webhookHandler: handler.NewWebhookHandler(dispatcher, logger),
		authMiddleware: middleware.NewAuthMiddleware(secret),
		stats:          stats,
		logger:         logger,
	}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes configures HTTP routes
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebhookPath, s.authMiddleware.Authenticate(s.webhookHandler.HandleWebhook))
	mux.HandleFunc("/health", handler.HandleHealth(s.stats))
	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
