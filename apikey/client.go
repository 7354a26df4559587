// Package apikey implements provider.Client for services that authenticate
// with a pasted API key or personal access token.
package apikey

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/provider"
)

type Client struct {
	catalog provider.Catalog
	vault   credentials.Vault
	http    *http.Client
}

func NewClient(catalog provider.Catalog, vault credentials.Vault, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{catalog: catalog, vault: vault, http: httpClient}
}

func (c *Client) endpoint(op, providerID string) (*domain.APIKeyEndpoint, error) {
	p, ok := c.catalog.Get(providerID)
	if !ok {
		return nil, domain.ValidationError(op, "unknown provider %q", providerID)
	}
	if p.AuthMethod != domain.AuthMethodAPIKey || p.APIKey == nil {
		return nil, domain.ValidationError(op, "%s does not use API keys", p.Name)
	}
	return p.APIKey, nil
}

func (c *Client) AuthorizationURL(_ context.Context, providerID string) (string, error) {
	return "", domain.ValidationError("authorize", "%s connects with an API key, not a browser sign-in", providerID)
}

// VerifyAPIKey checks key against the provider's account endpoint and keeps
// it in the vault when accepted.
func (c *Client) VerifyAPIKey(ctx context.Context, providerID, key string) (provider.Account, error) {
	const op = "verify api key"
	ep, err := c.endpoint(op, providerID)
	if err != nil {
		return provider.Account{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return provider.Account{}, domain.ValidationError(op, "API key is required")
	}

	acct, err := provider.FetchAccount(ctx, c.http, op, accountRequest(ep, key))
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			return provider.Account{}, domain.AuthError(op, "%s rejected the API key", providerID)
		}
		return provider.Account{}, err
	}

	if err := c.vault.Put(ctx, credentials.TokenRef(providerID), credentials.Token{AccessToken: key, TokenType: "api_key"}); err != nil {
		return provider.Account{}, domain.Wrap(domain.KindProvider, op, err, "failed to store the API key")
	}

	slog.Debug("API key verified",
		"layer", "apikey",
		"operation", "verify",
		"provider_id", providerID)
	return acct, nil
}

func (c *Client) ConnectionStatus(ctx context.Context, providerID string) (provider.Status, error) {
	const op = "connection status"
	ep, err := c.endpoint(op, providerID)
	if err != nil {
		return provider.Status{}, err
	}

	tok, err := c.vault.Get(ctx, credentials.TokenRef(providerID))
	if errors.Is(err, credentials.ErrTokenNotFound) {
		return provider.Status{Connected: false}, nil
	}
	if err != nil {
		return provider.Status{}, domain.Wrap(domain.KindProvider, op, err, "failed to read the stored API key")
	}

	acct, err := provider.FetchAccount(ctx, c.http, op, accountRequest(ep, tok.AccessToken))
	if errors.Is(err, domain.ErrAuth) {
		return provider.Status{Connected: false}, nil
	}
	if err != nil {
		return provider.Status{}, err
	}
	return provider.Status{Connected: true, AccountLabel: acct.Label}, nil
}

// Revoke forgets the stored key. Keys are created by the user in the
// provider's dashboard and can only be deleted there.
func (c *Client) Revoke(ctx context.Context, providerID string) error {
	if err := c.vault.Delete(ctx, credentials.TokenRef(providerID)); err != nil {
		return domain.Wrap(domain.KindProvider, "revoke", err, "failed to remove the stored API key")
	}
	return nil
}

func accountRequest(ep *domain.APIKeyEndpoint, key string) provider.AccountRequest {
	return provider.AccountRequest{
		URL:        ep.VerifyURL,
		Header:     ep.Header,
		Scheme:     ep.Scheme,
		Token:      key,
		LabelField: ep.LabelField,
	}
}
