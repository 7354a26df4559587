// Package hosting defines the contract the deployment pipeline uses to
// publish a site on a hosting provider.
package hosting

import (
	"context"
	"errors"
	"sync"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
)

// UnknownPercent marks a Status whose provider reports no percentage.
const UnknownPercent = -1

// Handle identifies a deployment created on a provider.
type Handle struct {
	ProviderID string
	ServiceID  string
	DeployID   string
	// URL is where the site will be served once live, when known up front.
	URL string
}

// Status is one observation of a remote deployment.
type Status struct {
	Stage       domain.Stage
	PercentDone int
	ResultURLs  map[string]string
	// Err is set when the provider reports the deployment as failed.
	Err error
}

// Done reports whether the remote deployment has finished, either way.
func (s Status) Done() bool {
	return s.Err != nil || s.Stage == domain.StageComplete
}

type Client interface {
	// Supports reports whether the client can publish sources of kind.
	Supports(kind domain.SourceKind) bool
	CreateDeployment(ctx context.Context, req domain.DeploymentRequest) (Handle, error)
	PollDeploymentStatus(ctx context.Context, h Handle) (Status, error)
}

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

// AccessToken reads the stored credential for providerID.
func AccessToken(ctx context.Context, vault credentials.Vault, op, providerID string) (string, error) {
	tok, err := vault.Get(ctx, credentials.TokenRef(providerID))
	if errors.Is(err, credentials.ErrTokenNotFound) {
		return "", domain.AuthError(op, "%s is not connected", providerID)
	}
	if err != nil {
		return "", domain.Wrap(domain.KindProvider, op, err, "could not read stored credentials")
	}
	return tok.AccessToken, nil
}
