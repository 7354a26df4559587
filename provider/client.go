// Package provider defines the contract torpedo uses to talk to external
// services during connection flows, plus helpers shared by its implementations.
package provider

import (
	"context"
	"sync"

	"github.com/repotorpedo/torpedo/domain"
)

// Account identifies who a connection belongs to.
type Account struct {
	Label string
}

// Status is the authoritative connection state reported by a provider.
type Status struct {
	Connected    bool
	AccountLabel string
}

// Client talks to one family of providers. Implementations return
// *domain.Error values so callers can classify failures.
type Client interface {
	// AuthorizationURL starts an OAuth flow and returns the page the user must visit.
	AuthorizationURL(ctx context.Context, providerID string) (string, error)
	// VerifyAPIKey checks a pasted key and stores it on success.
	VerifyAPIKey(ctx context.Context, providerID, key string) (Account, error)
	// ConnectionStatus asks the provider whether torpedo currently holds valid access.
	ConnectionStatus(ctx context.Context, providerID string) (Status, error)
	// Revoke drops torpedo's access.
	Revoke(ctx context.Context, providerID string) error
}

// Registry maps provider IDs to their clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(providerID string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[providerID] = c
}

func (r *Registry) Client(providerID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[providerID]
	return c, ok
}

// Catalog looks up static provider definitions.
type Catalog interface {
	Get(id string) (domain.Provider, bool)
}
