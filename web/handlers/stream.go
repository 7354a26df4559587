package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/repotorpedo/torpedo/domain"
)

const (
	streamWriteTimeout = 10 * time.Second
	connectionBuffer   = 16
)

// StreamDeployment pushes every snapshot of an attempt over a websocket and
// closes the socket normally once the attempt is terminal.
func (a *API) StreamDeployment() http.HandlerFunc {
	return withAttemptID(func(w http.ResponseWriter, r *http.Request, attemptID uuid.UUID) {
		updates, err := a.services.Deployments.Subscribe(attemptID)
		if err != nil {
			WriteError(w, err)
			return
		}

		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			LogOperationError("websocket_upgrade", "handlers", err, "attempt_id", attemptID)
			return
		}
		defer func() {
			_ = conn.Close()
		}()

		// Reads only detect the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				slog.Debug("Stream client went away",
					"layer", "handlers",
					"operation", "stream_deployment",
					"attempt_id", attemptID)
				return
			case snap, ok := <-updates:
				if !ok {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt finished")
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteTimeout))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteJSON(ConvertAttemptToView(snap)); err != nil {
					LogOperationError("stream_deployment", "handlers", err, "attempt_id", attemptID)
					return
				}
			}
		}
	})
}

// StreamConnections sends every current connection, then each change as it
// happens, until the client leaves or the server shuts down.
func (a *API) StreamConnections() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.services.Changes == nil {
			WriteError(w, domain.StateError("stream connections", "connection updates are not available"))
			return
		}
		changes, unsubscribe := a.services.Changes.Subscribe(connectionBuffer)
		defer unsubscribe()

		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			LogOperationError("websocket_upgrade", "handlers", err)
			return
		}
		defer func() {
			_ = conn.Close()
		}()

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(c domain.Connection) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ConvertConnectionToView(c)); err != nil {
				LogOperationError("stream_connections", "handlers", err, "provider_id", c.ProviderID)
				return false
			}
			return true
		}

		for _, c := range a.services.Connections.Connections() {
			if !send(c) {
				return
			}
		}

		for {
			select {
			case <-gone:
				return
			case <-a.ctx.Done():
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteTimeout))
				return
			case c, ok := <-changes:
				if !ok || !send(c) {
					return
				}
			}
		}
	}
}
