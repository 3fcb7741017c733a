// Package server exposes the patch pipeline over HTTP on a unix socket or a
// TCP address.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"manga-patcher/internal/app"
	"manga-patcher/internal/logger"
	"manga-patcher/internal/patch"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBodySize bounds request bodies; full pages arrive base64 encoded.
const maxBodySize = 64 << 20

// RequestIDHeader carries the per-request id.
const RequestIDHeader = "X-Request-ID"

// Server serves the HTTP API.
type Server struct {
	state      *app.State
	generator  *patch.Generator
	compositor *patch.Compositor
	log        zerolog.Logger
}

// New creates a server around the shared readiness state.
func New(state *app.State, gen *patch.Generator, comp *patch.Compositor) *Server {
	return &Server{
		state:      state,
		generator:  gen,
		compositor: comp,
		log:        logger.WithComponent("server"),
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /scan", s.handleScan)
	mux.HandleFunc("POST /scan-upload", s.handleScanUpload)
	mux.HandleFunc("POST /generate-patch", s.handleGeneratePatch)
	mux.HandleFunc("POST /merge-patches", s.handleMergePatches)
	mux.HandleFunc("POST /inpaint-mask", s.handleInpaintMask)
	return s.withRequestContext(mux)
}

// Listen opens a unix socket at socketPath, removing a stale one first, or
// a TCP listener when addr is set.
func Listen(socketPath, addr string) (net.Listener, error) {
	if addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return ln, nil
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to bind unix socket %s: %w", socketPath, err)
	}
	// Sidecar containers connect as other users.
	if err := os.Chmod(socketPath, 0o666); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to chmod socket: %w", err)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout. Unix sockets are removed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if ua, ok := ln.Addr().(*net.UnixAddr); ok {
		defer func() {
			if err := os.Remove(ua.Name); err == nil {
				s.log.Info().Str("socket", ua.Name).Msg("Cleaned up socket")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().
			Str("network", ln.Addr().Network()).
			Str("address", ln.Addr().String()).
			Msg("Server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// withRequestContext attaches a request id and logger to every request,
// recovers panics and logs completion.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		log := logger.WithRequestID(id)
		ctx := log.WithContext(r.Context())
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				log.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("Handler panicked")
				// A partial response cannot be replaced.
				if !rec.wroteHeader {
					writeError(rec, http.StatusInternalServerError, "internal error")
				}
			}
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		}()

		r.Body = http.MaxBytesReader(rec, r.Body, maxBodySize)
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}
