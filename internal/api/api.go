// Package api exposes the HTTP surface of DawaCall: the USSD gateway
// callback endpoints plus health and metrics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okothm/dawacall/internal/ussd"
)

// Server configuration defaults.
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultRequestTimeout is the overall budget for one USSD request
	// pipeline; past it the caller gets a terminal timeout response.
	DefaultRequestTimeout = 8 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	RequestTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithRequestTimeout overrides the per-request pipeline budget.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) { o.RequestTimeout = d }
}

// Server serves the USSD gateway callbacks.
type Server struct {
	manager *ussd.Manager
	addr    string
	timeout time.Duration
	httpSrv *http.Server
}

// NewServer creates an API server over the given session manager.
func NewServer(manager *ussd.Manager, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, RequestTimeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{manager: manager, addr: cfg.Addr, timeout: cfg.RequestTimeout}
	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: s.Routes()}
	return s
}

// Routes builds the HTTP mux. Exposed for tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ussd", s.handleUssd)
	mux.HandleFunc("/ussd/json", s.handleUssdJSON)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
