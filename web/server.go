// Package web serves the torpedo HTTP API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/repotorpedo/torpedo/web/handlers"
	"github.com/repotorpedo/torpedo/web/routes"
)

const shutdownTimeout = 5 * time.Second

// CallbackRoutes mounts the OAuth redirect handler.
type CallbackRoutes interface {
	Routes(r chi.Router)
}

// NewRouter assembles the API. metrics and callbacks may be nil.
func NewRouter(api *handlers.API, metrics http.Handler, callbacks CallbackRoutes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	routes.RegisterUtilityRoutes(r, metrics)
	routes.RegisterAPIRoutes(r, api)
	if callbacks != nil {
		callbacks.Routes(r)
	}
	return r
}

type Server struct {
	addr    string
	handler http.Handler
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{addr: addr, handler: handler}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	slog.Info("Server starting", "layer", "web", "addr", "http://"+ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("Server stopped", "layer", "web")
	return nil
}
