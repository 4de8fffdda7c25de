// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"patreon-tier-notifier/config"
	"patreon-tier-notifier/pkg/notifier"
	"patreon-tier-notifier/poll"
)

// maxConfigBytes bounds an inline configuration document.
const maxConfigBytes = 1 << 20

// Poller runs one check cycle.
type Poller interface {
	CheckAll(ctx context.Context, cfg *config.Config, d poll.Deliverer) ([]notifier.Alert, error)
}

// ConfigStore loads the stored configuration document.
type ConfigStore interface {
	LoadConfig(ctx context.Context) (*config.Config, error)
}

// Deliverer is a notifier built for one request.
type Deliverer interface {
	poll.Deliverer
	Close() error
}

// DelivererFactory builds the notifier described by the request's settings.
type DelivererFactory func(ctx context.Context, settings *config.SMSSettings) Deliverer

// Server handles HTTP requests.
type Server struct {
	poller     Poller
	store      ConfigStore
	notifiers  DelivererFactory
	metrics    http.Handler
	logger     *slog.Logger
	configJSON string
}

// Config holds server configuration.
type Config struct {
	Poller    Poller
	Store     ConfigStore // optional
	Notifiers DelivererFactory
	Metrics   http.Handler // optional
	Logger    *slog.Logger
	// ConfigJSON is an inline document used when the request carries none.
	ConfigJSON string
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		poller:     cfg.Poller,
		store:      cfg.Store,
		notifiers:  cfg.Notifiers,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		configJSON: cfg.ConfigJSON,
	}
}

// Handler returns the routed endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// ListenAndServe starts the server on port. It returns after ctx is
// cancelled and in-flight requests have drained.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,  // Time to read request headers and body
		WriteTimeout:      5 * time.Minute,   // A full check cycle runs inside /pollz
		IdleTimeout:       120 * time.Second, // Time to keep connection alive between requests
		ReadHeaderTimeout: 5 * time.Second,   // Time to read request headers only
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
		return
	}
}

type pollResponse struct {
	Alerts []notifier.Alert `json:"alerts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handlePoll runs one check cycle. The configuration comes from the request
// body, then the inline CONFIG_JSON document, then storage.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Poll endpoint triggered", "method", r.Method)

	cfg, source, err := s.resolveConfig(r)
	if err != nil {
		var invalid *config.InvalidError
		switch {
		case errors.Is(err, config.ErrMissing):
			s.logger.Warn("Poll rejected: no configuration")
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing configuration"})
		case errors.As(err, &invalid):
			s.logger.Warn("Poll rejected: invalid configuration", "source", source, "error", err)
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid configuration: " + err.Error()})
		default:
			s.logger.Error("Failed to load configuration", "source", source, "error", err)
			s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "configuration unavailable"})
		}
		return
	}

	d := s.notifiers(r.Context(), cfg.SMSSettings)
	defer func() {
		if err := d.Close(); err != nil {
			s.logger.Warn("Failed to close notifier", "error", err)
		}
	}()

	alerts, err := s.poller.CheckAll(r.Context(), cfg, d)
	if err != nil {
		s.logger.Error("Poll check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "check interrupted"})
		return
	}

	if alerts == nil {
		alerts = []notifier.Alert{}
	}
	s.logger.Info("Poll completed", "config_source", source, "alerts", len(alerts))
	s.writeJSON(w, http.StatusOK, pollResponse{Alerts: alerts})
}

func (s *Server) resolveConfig(r *http.Request) (*config.Config, string, error) {
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
		if err != nil {
			return nil, "request", &config.InvalidError{Err: fmt.Errorf("read body: %w", err)}
		}
		if strings.TrimSpace(string(body)) != "" {
			cfg, err := config.Parse(body)
			return cfg, "request", err
		}
	}

	if strings.TrimSpace(s.configJSON) != "" {
		cfg, err := config.Parse([]byte(s.configJSON))
		return cfg, "env", err
	}

	if s.store == nil {
		return nil, "none", config.ErrMissing
	}
	cfg, err := s.store.LoadConfig(r.Context())
	return cfg, "storage", err
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
