package domain

import (
	"fmt"
	"time"
)

// ConnectionStatus is the lifecycle state of a provider connection.
type ConnectionStatus int

const (
	ConnectionStatusDisconnected ConnectionStatus = iota
	ConnectionStatusConnecting
	ConnectionStatusConnected
	ConnectionStatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case ConnectionStatusConnecting:
		return "connecting"
	case ConnectionStatusConnected:
		return "connected"
	case ConnectionStatusError:
		return "error"
	default:
		return "disconnected"
	}
}

func ParseConnectionStatus(s string) (ConnectionStatus, error) {
	switch s {
	case "disconnected":
		return ConnectionStatusDisconnected, nil
	case "connecting":
		return ConnectionStatusConnecting, nil
	case "connected":
		return ConnectionStatusConnected, nil
	case "error":
		return ConnectionStatusError, nil
	default:
		return ConnectionStatusDisconnected, fmt.Errorf("invalid connection status: %q", s)
	}
}

// CanTransitionTo reports whether a connection may move from s to next.
// Connecting may fall back to disconnected or error when a flow is cancelled.
func (s ConnectionStatus) CanTransitionTo(next ConnectionStatus) bool {
	switch s {
	case ConnectionStatusDisconnected, ConnectionStatusError:
		return next == ConnectionStatusConnecting
	case ConnectionStatusConnecting:
		return next == ConnectionStatusConnected ||
			next == ConnectionStatusError ||
			next == ConnectionStatusDisconnected
	case ConnectionStatusConnected:
		return next == ConnectionStatusDisconnected
	default:
		return false
	}
}

// CanBegin reports whether a new connection flow may start from s.
func (s ConnectionStatus) CanBegin() bool {
	return s.CanTransitionTo(ConnectionStatusConnecting)
}

// Connection is the per-provider connection state. Token material never
// lives here, only TokenRef which names the secret in the vault.
type Connection struct {
	ProviderID   string
	Status       ConnectionStatus
	AccountLabel string
	LastError    *Error
	TokenRef     string
	ConnectedAt  *time.Time
	UpdatedAt    time.Time
}

func NewConnection(providerID string) Connection {
	return Connection{
		ProviderID: providerID,
		Status:     ConnectionStatusDisconnected,
	}
}

func (c Connection) IsConnected() bool {
	return c.Status == ConnectionStatusConnected
}

// Connecting returns c moved into the connecting state.
func (c Connection) Connecting(now time.Time) Connection {
	c.Status = ConnectionStatusConnecting
	c.LastError = nil
	c.UpdatedAt = now
	return c
}

// Connected returns c moved into the connected state for the given account.
func (c Connection) Connected(label, tokenRef string, now time.Time) Connection {
	c.Status = ConnectionStatusConnected
	c.AccountLabel = label
	c.TokenRef = tokenRef
	c.LastError = nil
	c.ConnectedAt = &now
	c.UpdatedAt = now
	return c
}

// Failed returns c moved into the error state.
func (c Connection) Failed(err *Error, now time.Time) Connection {
	c.Status = ConnectionStatusError
	c.LastError = err
	c.AccountLabel = ""
	c.TokenRef = ""
	c.ConnectedAt = nil
	c.UpdatedAt = now
	return c
}

// Disconnected returns c with all account data cleared.
func (c Connection) Disconnected(now time.Time) Connection {
	return Connection{
		ProviderID: c.ProviderID,
		Status:     ConnectionStatusDisconnected,
		UpdatedAt:  now,
	}
}
