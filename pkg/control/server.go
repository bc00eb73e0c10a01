// Package control serves the operational HTTP endpoints of a running bot:
// Prometheus metrics, a health probe and binding cache invalidation.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/small-frappuccino/modcore/pkg/log"
)

const (
	defaultMaxBodyBytes = 64 * 1024
	healthTimeout       = 2 * time.Second

	// InvalidatePath drops cached audit bindings after an out-of-band change.
	InvalidatePath = "/v1/bindings/invalidate"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// BindingInvalidator forgets cached bindings for one guild.
type BindingInvalidator interface {
	Invalidate(guildID string)
}

// Server exposes operational endpoints for a running modcore instance.
type Server struct {
	addr        string
	health      HealthChecker
	invalidator BindingInvalidator
	httpServer  *http.Server
	listener    net.Listener
}

// NewServer returns nil if addr is empty.
func NewServer(addr string, gatherer prometheus.Gatherer, health HealthChecker, invalidator BindingInvalidator) *Server {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}

	s := &Server{
		addr:        addr,
		health:      health,
		invalidator: invalidator,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc(InvalidatePath, s.handleInvalidate)
	return mux
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start opens the control server listening socket.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind control server: %w", err)
	}
	s.listener = ln

	log.ApplicationLogger().Info("Control server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ApplicationLogger().Error("Control server stopped unexpectedly", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the control server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown control server: %w", err)
	}

	log.ApplicationLogger().Info("Control server stopped", "addr", s.addr)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, code := "ok", http.StatusOK
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			log.ApplicationLogger().Warn("Health check failed", "err", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{"status": status})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.invalidator == nil {
		http.Error(w, "binding cache unavailable", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	defer r.Body.Close()

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	guildID, err := parseGuildID(payload)
	if err != nil {
		status := http.StatusInternalServerError
		var httpErr *httpError
		if errors.As(err, &httpErr) {
			status = httpErr.code
		}
		http.Error(w, err.Error(), status)
		return
	}

	s.invalidator.Invalidate(guildID)
	log.ApplicationLogger().Info("Audit binding cache invalidated", "guildID", guildID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "guild_id": guildID})
}

func parseGuildID(payload map[string]json.RawMessage) (string, error) {
	raw, ok := payload["guild_id"]
	if !ok {
		return "", badRequest(errors.New("missing field guild_id"))
	}
	for field := range payload {
		if field != "guild_id" {
			return "", badRequest(fmt.Errorf("unknown field %q", field))
		}
	}
	v, err := decodeString(raw)
	if err != nil {
		return "", badRequest(fmt.Errorf("field guild_id: %w", err))
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", badRequest(errors.New("guild_id must not be empty"))
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.ApplicationLogger().Error("Failed to encode control response", "err", err)
	}
}

func badRequest(err error) error {
	return &httpError{
		code: http.StatusBadRequest,
		err:  err,
	}
}

type httpError struct {
	code int
	err  error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty string value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return v, nil
}
