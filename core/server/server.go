// Package server hosts the webhook, health and metrics endpoints on a chi router.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/formrelay/core/logger"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// Health is the body of GET /healthz.
type Health struct {
	Status string `json:"status"`
	Forms  int    `json:"forms"`
	Active int    `json:"active"`
}

// Options configures New.
type Options struct {
	Addr string
	// WebhookPath and Webhook are mounted together; both may be empty.
	WebhookPath string
	Webhook     http.Handler
	Metrics     http.Handler
	// Forms and Active feed /healthz.
	Forms  func() int
	Active func() int
	// ShutdownTimeout bounds graceful shutdown; 0 selects the default.
	ShutdownTimeout time.Duration
}

// Server is the relay HTTP server.
type Server struct {
	opts Options
	srv  *http.Server
}

// New builds a server; call Run to start it.
func New(opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{opts: opts}
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Routes returns the router with every endpoint and middleware mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(logRequests)
	r.Use(recoverer)

	r.Get("/healthz", s.health)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	if s.opts.Webhook != nil && s.opts.WebhookPath != "" {
		r.Mount(s.opts.WebhookPath, s.opts.Webhook)
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	h := Health{Status: "ok"}
	if s.opts.Forms != nil {
		h.Forms = s.opts.Forms()
	}
	if s.opts.Active != nil {
		h.Active = s.opts.Active()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.LogAttrs(ctx, slog.LevelInfo, "server listening",
			slog.String("event", "http.listen"),
			slog.String("status", "ok"),
			slog.String("addr", ln.Addr().String()),
		)
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logger.HTTP.LogAttrs(ctx, slog.LevelWarn, "server shutdown incomplete",
			slog.String("event", "http.shutdown"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}
	<-errCh
	logger.HTTP.LogAttrs(ctx, slog.LevelInfo, "server stopped",
		slog.String("event", "http.shutdown"),
		slog.String("status", "ok"),
	)
	return nil
}
