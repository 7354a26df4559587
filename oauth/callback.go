package oauth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CallbackPath is the redirect path registered with OAuth providers.
const CallbackPath = "/oauth/callback"

// Exchanger completes an authorization from the redirect parameters.
type Exchanger interface {
	Exchange(ctx context.Context, state, code string) (string, error)
}

// CallbackServer receives OAuth redirects on a local port. Each pending
// flow is identified by its state; the flow's channel is closed once the
// redirect for that state has been handled, successful or not.
type CallbackServer struct {
	exchanger Exchanger
	addr      string

	mu       sync.Mutex
	waiting  map[string]chan struct{}
	srv      *http.Server
	listener net.Listener
}

func NewCallbackServer(exchanger Exchanger, addr string) *CallbackServer {
	return &CallbackServer{
		exchanger: exchanger,
		addr:      addr,
		waiting:   make(map[string]chan struct{}),
	}
}

// Routes mounts the callback handler on r.
func (s *CallbackServer) Routes(r chi.Router) {
	r.Get(CallbackPath, s.handleCallback)
}

// Start begins listening if not already listening.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen for OAuth callbacks on %s: %w", s.addr, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.Routes(r)

	s.listener = ln
	s.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("OAuth callback server stopped", "layer", "oauth", "error", err)
		}
	}(s.srv)

	slog.Debug("OAuth callback server listening", "layer", "oauth", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, useful when started on port 0.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *CallbackServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Wait registers interest in state and returns a channel closed when its
// redirect arrives.
func (s *CallbackServer) Wait(state string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.waiting[state]
	if !ok {
		ch = make(chan struct{})
		s.waiting[state] = ch
	}
	return ch
}

// Forget drops interest in state without signalling.
func (s *CallbackServer) Forget(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiting, state)
}

func (s *CallbackServer) finish(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.waiting[state]; ok {
		close(ch)
		delete(s.waiting, state)
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	defer s.finish(state)

	if reason := q.Get("error"); reason != "" {
		detail := q.Get("error_description")
		if detail == "" {
			detail = reason
		}
		slog.Info("Authorization declined", "layer", "oauth", "reason", reason)
		writePage(w, http.StatusOK, "Sign-in was not completed", detail)
		return
	}

	code := q.Get("code")
	if state == "" || code == "" {
		writePage(w, http.StatusBadRequest, "Sign-in failed", "The redirect is missing its code or state.")
		return
	}

	providerID, err := s.exchanger.Exchange(r.Context(), state, code)
	if err != nil {
		slog.Warn("Authorization exchange failed",
			"layer", "oauth",
			"provider_id", providerID,
			"error", err)
		writePage(w, http.StatusOK, "Sign-in failed", err.Error())
		return
	}

	writePage(w, http.StatusOK, "Connected", "You can close this window and return to torpedo.")
}

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(body))
}
