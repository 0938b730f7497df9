// Package control exposes a running pipeline over a small HTTP API:
// inspecting the plugin chain, restarting and suspending plugins, reading
// metrics, and shutting the pipeline down.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/tsflow/internal/engine"
)

// Server serves the control API for one engine.
type Server struct {
	log    *slog.Logger
	addr   string
	engine *engine.Engine
}

// NewServer creates a control server for the given engine. If log is
// nil, slog.Default() is used.
func NewServer(addr string, eng *engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:    log.With("component", "control"),
		addr:   addr,
		engine: eng,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/plugins", s.handleListPlugins)
	mux.HandleFunc("POST /api/plugins/{index}/restart", s.handleRestart)
	mux.HandleFunc("POST /api/plugins/{index}/suspend", s.handleSuspend(true))
	mux.HandleFunc("POST /api/plugins/{index}/resume", s.handleSuspend(false))
	mux.HandleFunc("POST /api/exit", s.handleExit)
	mux.Handle("GET /metrics", promhttp.HandlerFor(
		s.engine.Metrics().Registry(), promhttp.HandlerOpts{}))
	return mux
}

// Start serves the API until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("control API listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control server: %w", err)
	}
	return nil
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stages())
}

type restartRequest struct {
	SameArgs bool     `json:"sameArgs"`
	Args     []string `json:"args"`
}

type restartResponse struct {
	Error       string   `json:"error,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	index, ok := pluginIndex(w, r)
	if !ok {
		return
	}
	var body restartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !body.SameArgs && body.Args == nil {
		writeError(w, http.StatusBadRequest, "args required unless sameArgs is set")
		return
	}

	// All diagnostics of the attempt are redirected to the requester
	// instead of the engine's own log.
	var diag bytes.Buffer
	sink := slog.New(slog.NewTextHandler(&diag, nil))
	req := engine.NewRestartRequest(body.SameArgs, body.Args, sink)
	if err := s.engine.Restart(index, req); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	done := make(chan error, 1)
	go func() { done <- req.Wait() }()
	select {
	case err := <-done:
		resp := restartResponse{Diagnostics: diagLines(diag.String())}
		code := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			code = http.StatusConflict
		}
		writeJSON(w, code, resp)
	case <-r.Context().Done():
		// The stage never reached a safe point while the client waited.
	}
}

func diagLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func (s *Server) handleSuspend(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, ok := pluginIndex(w, r)
		if !ok {
			return
		}
		if err := s.engine.SetSuspended(index, on); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"suspended": on})
	}
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	s.log.Info("exit requested over control API")
	s.engine.Abort()
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborting"})
}

func pluginIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid plugin index")
		return 0, false
	}
	return index, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
