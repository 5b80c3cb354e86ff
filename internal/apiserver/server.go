// Package apiserver exposes the external HTTP surface: GET /health and
// GET /metrics.
package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goran-ethernal/watch-tower/internal/health"
	"github.com/goran-ethernal/watch-tower/internal/logger"
)

const shutdownCtxTimeout = 10 * time.Second

// Server is the health + metrics HTTP surface, grounded on the
// teacher's pkg/api.Server: a stdlib mux wrapped in logging/recovery
// middleware, started in a goroutine and shut down on context
// cancellation.
type Server struct {
	addr       string
	aggregator *health.Aggregator
	server     *http.Server
	log        *logger.Logger
}

// New builds a Server listening on addr, ready to Start.
func New(addr string, aggregator *health.Aggregator, log *logger.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(aggregator))
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = recoveryMiddleware(log)(h)
	h = loggingMiddleware(log)(h)

	return &Server{
		addr:       addr,
		aggregator: aggregator,
		server:     &http.Server{Addr: addr, Handler: h},
		log:        log.WithComponent("api-server"),
	}
}

func healthHandler(aggregator *health.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := aggregator.Report()

		w.Header().Set("Content-Type", "application/json")
		if report.IsHealthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully, closing the HTTP health server.
func (s *Server) Start(ctx context.Context) error {
	s.log.Infow("starting api server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Infow("shutting down api server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
