// Package server exposes the node's write path over HTTP+JSON. All mutating
// routes sit behind the service-identity auth gateway; reads on the
// transaction and account resources share the same surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgercore/ledgerd/service/auth"
	"github.com/ledgercore/ledgerd/service/config"
	"github.com/ledgercore/ledgerd/service/db"
	"github.com/ledgercore/ledgerd/service/ledger"
	"github.com/ledgercore/ledgerd/service/metrics"
)

// Server represents the HTTP server for the ledger node.
type Server struct {
	addr     string
	cfg      *config.Config
	svc      *ledger.Service
	store    *db.Store
	registry *auth.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies. store may be
// nil in tests that only exercise the pipeline routes; metrics may be nil to
// disable the /metrics endpoint and instrumentation.
func New(addr string, cfg *config.Config, svc *ledger.Service, store *db.Store, registry *auth.Registry, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		cfg:      cfg,
		svc:      svc,
		store:    store,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}
}

// Handler builds the route table. Exposed so tests can drive the full stack
// through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	authed := auth.Middleware(s.registry, s.logger)

	route := func(pattern, name string, h http.Handler) {
		if s.metrics != nil {
			h = metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
		}
		mux.Handle(pattern, authed(h))
	}

	// Transaction pipeline routes
	route("POST /api/v1/transactions", "create_transaction", handleCreateTransaction(s.svc, s.logger))
	route("GET /api/v1/transactions/{id}", "get_transaction", handleGetTransaction(s.svc, s.logger))
	route("POST /api/v1/transactions/{id}/votes", "submit_vote", handleSubmitVote(s.svc, s.logger))
	route("DELETE /api/v1/transactions/{id}", "cancel_transaction", handleCancelTransaction(s.svc, s.logger))

	// Pool and account accessors
	route("GET /api/v1/mempool", "get_mempool", handleGetMempool(s.svc, s.logger))
	route("GET /api/v1/accounts/{address}", "get_account", handleGetAccount(s.svc, s.logger))
	if s.store != nil {
		route("GET /api/v1/accounts/{address}/transactions", "list_account_transactions",
			handleListAccountTransactions(s.store, s.logger))
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS
// preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Service-Identity, X-Service-Secret")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
