// Package handlers provides HTTP request handlers and utilities for the web server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/repotorpedo/torpedo/connection"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/session"
)

// maxBodyBytes bounds JSON request bodies and history imports.
const maxBodyBytes = 10 << 20

type Catalog interface {
	All() []domain.Provider
	Get(id string) (domain.Provider, bool)
}

type Connector interface {
	Connection(providerID string) domain.Connection
	Connections() []domain.Connection
	BeginConnection(ctx context.Context, providerID string, options ...connection.ConnectOption) (domain.Connection, error)
	StartConnection(ctx context.Context, providerID string, options ...connection.ConnectOption) (domain.Connection, <-chan connection.Result, error)
	CancelConnection(providerID string) error
	Disconnect(ctx context.Context, providerID string) error
}

type Deployer interface {
	Submit(ctx context.Context, req domain.DeploymentRequest) (domain.DeploymentAttempt, error)
	Progress(id uuid.UUID) (domain.DeploymentAttempt, error)
	Cancel(id uuid.UUID) error
	Subscribe(id uuid.UUID) (<-chan domain.DeploymentAttempt, error)
	List() []domain.DeploymentAttempt
}

// ConnectionFeed publishes connection changes.
type ConnectionFeed interface {
	Subscribe(buffer int) (<-chan domain.Connection, func())
}

type History interface {
	List(ctx context.Context) ([]domain.HistoryRecord, error)
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, data []byte) (int, error)
}

type Session interface {
	View() session.View
}

// Services are the components the API serves.
type Services struct {
	Catalog     Catalog
	Connections Connector
	Changes     ConnectionFeed
	Deployments Deployer
	History     History
	Session     Session
}

// API holds the handlers. Background OAuth flows started over HTTP are bound
// to the context given to NewAPI, not to the request that started them.
type API struct {
	services Services
	ctx      context.Context
	upgrader websocket.Upgrader
}

func NewAPI(ctx context.Context, services Services) *API {
	return &API{
		services: services,
		ctx:      ctx,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Helper functions for common operations

// ParseAttemptID extracts and validates the deployment attempt ID from URL parameters
func ParseAttemptID(r *http.Request) (uuid.UUID, error) {
	attemptID := chi.URLParam(r, "id")
	if attemptID == "" {
		return uuid.Nil, domain.ValidationError("parse attempt id", "attempt ID is required")
	}

	parsedID, err := uuid.Parse(attemptID)
	if err != nil {
		return uuid.Nil, domain.ValidationError("parse attempt id", "invalid attempt ID format")
	}

	return parsedID, nil
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	if errors.Is(err, connection.ErrCancelled) {
		return http.StatusConflict
	}
	kind, ok := domain.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindState:
		return http.StatusConflict
	case domain.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteJSON sends payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		LogOperationError("write_json", "handlers", err)
	}
}

// WriteError reports err to the client with a status derived from its kind.
func WriteError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: domain.UserMessage(err)}
	if kind, ok := domain.KindOf(err); ok {
		resp.Kind = kind.String()
	}
	WriteJSON(w, StatusFor(err), resp)
}

// DecodeJSON reads a JSON body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.ValidationError("decode request", "malformed JSON body: %v", err)
	}
	return nil
}

// LogOperationError logs errors with consistent structure
func LogOperationError(operation, layer string, err error, fields ...any) {
	args := []any{"layer", layer, "operation", operation, "error", err}
	args = append(args, fields...)
	slog.Error("Operation failed", args...)
}

// Middleware functions

// withAttemptID extracts and validates the attempt ID, passing it to the next handler
func withAttemptID(next func(w http.ResponseWriter, r *http.Request, attemptID uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID, err := ParseAttemptID(r)
		if err != nil {
			LogOperationError("parse_attempt_id", "handlers", err)
			WriteError(w, err)
			return
		}
		next(w, r, attemptID)
	}
}

// withProviderID passes the trimmed provider path parameter to the next handler
func withProviderID(next func(w http.ResponseWriter, r *http.Request, providerID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := strings.TrimSpace(chi.URLParam(r, "provider"))
		if providerID == "" {
			WriteError(w, domain.ValidationError("parse provider id", "provider is required"))
			return
		}
		next(w, r, providerID)
	}
}

// Generic handler patterns

// HandleAction creates a generic handler for actions that either fail or answer 204.
func HandleAction(actionFunc func(*http.Request) error, operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := actionFunc(r); err != nil {
			LogOperationError(operation, "handlers", err)
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleQuery creates a generic handler for read-only endpoints.
func HandleQuery[T any](queryFunc func(*http.Request) (T, error), operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := queryFunc(r)
		if err != nil {
			LogOperationError(operation, "handlers", err)
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
