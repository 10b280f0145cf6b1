// Package api exposes the token-authenticated JSON endpoints the external
// management layer uses to drive the monitor: health and session status,
// webhook tests, bulk joins, exports, and task polling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Kalinx99/TelScan/internal/bridge"
	"github.com/Kalinx99/TelScan/internal/config"
	"github.com/Kalinx99/TelScan/internal/jobs"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/notify"
	"github.com/Kalinx99/TelScan/internal/store"
	"github.com/Kalinx99/TelScan/internal/version"
)

// Server is the TelScan HTTP API server.
type Server struct {
	cfg      config.APIConfig
	log      *logging.Logger
	bridge   *bridge.Bridge
	jobs     *jobs.Manager
	notifier *notify.Notifier
	store    *store.MonitorStore

	startedAt  time.Time
	httpServer *http.Server
}

// New creates the API server.
func New(cfg config.APIConfig, br *bridge.Bridge, jm *jobs.Manager, n *notify.Notifier, st *store.MonitorStore, log *logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log.Sub("api"),
		bridge:   br,
		jobs:     jm,
		notifier: n,
		store:    st,
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.APIConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins serving. It blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := withMiddleware(mux, s.log, s.cfg.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Token == "" && s.cfg.Bind != "loopback" {
		s.log.Warn().Msg("api token is not set on a non-loopback bind")
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Msg("api server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
