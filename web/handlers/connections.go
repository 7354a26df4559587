package handlers

import (
	"log/slog"
	"net/http"

	"github.com/repotorpedo/torpedo/connection"
	"github.com/repotorpedo/torpedo/domain"
)

type ConnectRequest struct {
	APIKey string `json:"api_key"`
}

// ListProviders returns the catalog with each provider's connection state.
func (a *API) ListProviders() http.HandlerFunc {
	return HandleQuery(func(r *http.Request) ([]ProviderView, error) {
		providers := a.services.Catalog.All()
		views := make([]ProviderView, len(providers))
		for i, p := range providers {
			conn := a.services.Connections.Connection(p.ID)
			views[i] = ConvertProviderToView(p, &conn)
		}
		return views, nil
	}, "list_providers")
}

func (a *API) ListConnections() http.HandlerFunc {
	return HandleQuery(func(r *http.Request) ([]ConnectionView, error) {
		conns := a.services.Connections.Connections()
		views := make([]ConnectionView, len(conns))
		for i, c := range conns {
			views[i] = ConvertConnectionToView(c)
		}
		return views, nil
	}, "list_connections")
}

// Connect verifies API keys inline. OAuth flows wait on the user, so they
// run in the background and the handler answers 202 with the connecting state.
func (a *API) Connect() http.HandlerFunc {
	return withProviderID(func(w http.ResponseWriter, r *http.Request, providerID string) {
		var req ConnectRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, err)
			return
		}

		p, known := a.services.Catalog.Get(providerID)
		if known && p.AuthMethod == domain.AuthMethodOAuth {
			conn, done, err := a.services.Connections.StartConnection(a.ctx, providerID)
			if err != nil {
				LogOperationError("connect", "handlers", err, "provider_id", providerID)
				WriteError(w, err)
				return
			}
			go awaitConnection(providerID, done)
			WriteJSON(w, http.StatusAccepted, ConvertConnectionToView(conn))
			return
		}

		conn, err := a.services.Connections.BeginConnection(r.Context(), providerID, connection.WithAPIKey(req.APIKey))
		if err != nil {
			LogOperationError("connect", "handlers", err, "provider_id", providerID)
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ConvertConnectionToView(conn))
	})
}

func awaitConnection(providerID string, done <-chan connection.Result) {
	res := <-done
	if res.Err != nil {
		slog.Debug("Background connection ended",
			"layer", "handlers",
			"operation", "connect",
			"provider_id", providerID,
			"error", res.Err)
	}
}

func (a *API) CancelConnection() http.HandlerFunc {
	return withProviderID(func(w http.ResponseWriter, r *http.Request, providerID string) {
		HandleAction(func(*http.Request) error {
			return a.services.Connections.CancelConnection(providerID)
		}, "cancel_connection")(w, r)
	})
}

func (a *API) Disconnect() http.HandlerFunc {
	return withProviderID(func(w http.ResponseWriter, r *http.Request, providerID string) {
		HandleAction(func(r *http.Request) error {
			return a.services.Connections.Disconnect(r.Context(), providerID)
		}, "disconnect")(w, r)
	})
}

func (a *API) SessionView() http.HandlerFunc {
	return HandleQuery(func(r *http.Request) (SessionView, error) {
		return ConvertSessionToView(a.services.Session.View()), nil
	}, "session_view")
}
