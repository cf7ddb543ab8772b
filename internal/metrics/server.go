package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Server exposes a Registry in Prometheus exposition format plus health checks.
type Server struct {
	addr     string
	path     string
	registry *Registry
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer creates a metrics server for reg. Call Start to bind.
func NewServer(addr, path string, reg *Registry, logger *slog.Logger) *Server {
	s := &Server{
		addr:     addr,
		path:     path,
		registry: reg,
		logger:   logger,
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	return s
}

// Handler returns the exporter's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(s.path, promhttp.InstrumentHandlerCounter(
		s.registry.scrapes,
		http.HandlerFunc(s.scrapeHandler),
	))

	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/healthz", healthHandler)

	return mux
}

// scrapeHandler renders the registry in the format the scraper negotiated.
// The body is buffered so an encoding error still yields a clean 500.
func (s *Server) scrapeHandler(w http.ResponseWriter, r *http.Request) {
	families, err := s.registry.Gatherer().Gather()
	if err != nil {
		s.logger.Error("metrics_gather_failed", "error", err)
		http.Error(w, "gather failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	format := expfmt.Negotiate(r.Header)

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			s.logger.Error("metrics_encode_failed", "family", mf.GetName(), "error", err)
			http.Error(w, "encode failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("metrics_encode_failed", "error", err)
			http.Error(w, "encode failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// Start binds the listen address and serves in a goroutine.
// A bind failure is returned; serving errors after that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.logger.Info("metrics_server_starting", "addr", ln.Addr().String(), "path", s.path)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the scrape URL of a started server.
func (s *Server) URL() string {
	return "http://" + s.Addr() + s.path
}
