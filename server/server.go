// Package server exposes the generation API over HTTP and, when bound to a
// state store, a live preview of the canvas.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"oscar/generation"
	"oscar/state"
)

//go:embed base.html
var defaultBaseHTML string

// DefaultBaseHTML returns the built-in seed document
func DefaultBaseHTML() string {
	return defaultBaseHTML
}

// ErrorResponse is the body of every failed request
type ErrorResponse = generation.ErrorResponse

const (
	maxBodyBytes    = 8 << 20
	shutdownTimeout = 5 * time.Second
)

// Options select which surfaces are served. A nil Generator disables the
// generation API; a nil Store disables the preview.
type Options struct {
	Generator generation.Generator
	Store     *state.Store
	BaseHTML  string
}

type Server struct {
	gen      generation.Generator
	store    *state.Store
	baseHTML string
	mux      *http.ServeMux
}

func New(opts Options) *Server {
	s := &Server{
		gen:      opts.Generator,
		store:    opts.Store,
		baseHTML: opts.BaseHTML,
		mux:      http.NewServeMux(),
	}
	if s.baseHTML == "" {
		s.baseHTML = defaultBaseHTML
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /base.html", s.handleBaseHTML)

	if s.gen != nil {
		s.mux.HandleFunc("POST /generate", s.handleGenerate)
		s.mux.HandleFunc("POST /edit", s.handleEdit)
		s.mux.HandleFunc("POST /vibe-code", s.handleVibeCode)
	}

	if s.store != nil {
		s.mux.HandleFunc("GET /{$}", s.handleIndex)
		s.mux.HandleFunc("GET /canvas", s.handleCanvas)
		s.mux.HandleFunc("GET /canvas/{slot}", s.handleSlot)
		s.mux.HandleFunc("POST /canvas/{slot}/select", s.handleSelect)
		s.mux.HandleFunc("GET /events", s.handleEvents)
	}
	return s
}

// Handler returns the routes wrapped with CORS and request logging
func (s *Server) Handler() http.Handler {
	return withCORS(withLogging(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
		_ = srv.Close()
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBaseHTML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(s.baseHTML))
}
