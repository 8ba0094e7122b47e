package gateway

import (
	"context"
	"net/http"

	"github.com/tollgate-io/tollgate/internal/config"
	"github.com/tollgate-io/tollgate/internal/logging"
	"go.uber.org/zap"
)

// Server wraps the gateway with HTTP server lifecycle management.
type Server struct {
	gateway *Gateway
	httpSrv *http.Server
	cfg     *config.Config
}

// NewServer creates a server around an already wired gateway.
func NewServer(cfg *config.Config, gw *Gateway) *Server {
	return &Server{
		gateway: gw,
		cfg:     cfg,
		httpSrv: &http.Server{
			Addr:              cfg.Listen,
			Handler:           gw.Handler(),
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		},
	}
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	logging.Info("gateway listening", zap.String("addr", s.cfg.Listen))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}
