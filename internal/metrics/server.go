package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/genricoloni/nowplaying/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the registry on /metrics. It is disabled when no listen
// address is configured.
type Server struct {
	logger *zap.Logger
	srv    *http.Server
	addr   string
}

// NewServer builds the HTTP server for cfg.Metrics.Listen
func NewServer(logger *zap.Logger, cfg *config.Config, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	return &Server{
		logger: logger,
		addr:   cfg.Metrics.Listen,
		srv: &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Enabled reports whether a listen address was configured
func (s *Server) Enabled() bool {
	return s.addr != ""
}

// Handler returns the metrics mux, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	if !s.Enabled() {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.logger.Info("Metrics server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
