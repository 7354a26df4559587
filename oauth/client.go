// Package oauth implements provider.Client for authorization-code providers
// and serves the local redirect endpoint that completes the flow.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/provider"
	"golang.org/x/oauth2"
)

// App holds the credentials of the OAuth application registered with a provider.
type App struct {
	ClientID     string
	ClientSecret string
}

type pendingFlow struct {
	verifier string
	expires  time.Time
}

type Client struct {
	catalog     provider.Catalog
	vault       credentials.Vault
	states      *StateSigner
	http        *http.Client
	redirectURL string

	mu      sync.Mutex
	apps    map[string]App
	pending map[string]pendingFlow
}

func NewClient(catalog provider.Catalog, vault credentials.Vault, states *StateSigner, redirectURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		catalog:     catalog,
		vault:       vault,
		states:      states,
		http:        httpClient,
		redirectURL: redirectURL,
		apps:        make(map[string]App),
		pending:     make(map[string]pendingFlow),
	}
}

// Register sets the application credentials for providerID.
func (c *Client) Register(providerID string, app App) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apps[providerID] = app
}

func (c *Client) config(op, providerID string) (*oauth2.Config, *domain.OAuthEndpoints, error) {
	p, ok := c.catalog.Get(providerID)
	if !ok {
		return nil, nil, domain.ValidationError(op, "unknown provider %q", providerID)
	}
	if p.AuthMethod != domain.AuthMethodOAuth || p.OAuth == nil {
		return nil, nil, domain.ValidationError(op, "%s does not use browser sign-in", p.Name)
	}

	c.mu.Lock()
	app, ok := c.apps[providerID]
	c.mu.Unlock()
	if !ok || app.ClientID == "" {
		env := "TORPEDO_" + strings.ToUpper(strings.ReplaceAll(providerID, "-", "_")) + "_CLIENT_ID"
		return nil, p.OAuth, domain.ValidationError(op, "no OAuth application configured for %s; set %s", p.Name, env)
	}

	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.OAuth.AuthURL,
			TokenURL: p.OAuth.TokenURL,
		},
		RedirectURL: c.redirectURL,
		Scopes:      p.OAuth.Scopes,
	}, p.OAuth, nil
}

func (c *Client) AuthorizationURL(_ context.Context, providerID string) (string, error) {
	const op = "authorize"
	cfg, _, err := c.config(op, providerID)
	if err != nil {
		return "", err
	}

	state, err := c.states.Issue(providerID)
	if err != nil {
		return "", domain.Wrap(domain.KindProvider, op, err, "failed to start sign-in")
	}
	verifier := oauth2.GenerateVerifier()

	now := time.Now()
	c.mu.Lock()
	for s, p := range c.pending {
		if now.After(p.expires) {
			delete(c.pending, s)
		}
	}
	c.pending[state] = pendingFlow{verifier: verifier, expires: now.Add(c.states.ttl)}
	c.mu.Unlock()

	return cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// Exchange completes a flow from the redirect parameters and stores the token.
func (c *Client) Exchange(ctx context.Context, state, code string) (string, error) {
	const op = "complete sign-in"
	providerID, err := c.states.Verify(state)
	if err != nil {
		return "", domain.AuthError(op, "%v", err)
	}

	c.mu.Lock()
	flow, ok := c.pending[state]
	delete(c.pending, state)
	c.mu.Unlock()
	if !ok {
		return providerID, domain.AuthError(op, "sign-in for %s was already completed or never started", providerID)
	}

	cfg, _, err := c.config(op, providerID)
	if err != nil {
		return providerID, err
	}

	tok, err := cfg.Exchange(c.clientContext(ctx), code, oauth2.VerifierOption(flow.verifier))
	if err != nil {
		return providerID, classifyTokenError(op, err)
	}

	if err := c.vault.Put(ctx, credentials.TokenRef(providerID), fromOAuth2(tok)); err != nil {
		return providerID, domain.Wrap(domain.KindProvider, op, err, "failed to store the access token")
	}

	slog.Info("OAuth token stored",
		"layer", "oauth",
		"operation", "exchange",
		"provider_id", providerID)
	return providerID, nil
}

func (c *Client) VerifyAPIKey(_ context.Context, providerID, _ string) (provider.Account, error) {
	return provider.Account{}, domain.ValidationError("verify api key", "%s connects through browser sign-in", providerID)
}

// ConnectionStatus refreshes an expired token when possible, then asks the
// provider who the token belongs to.
func (c *Client) ConnectionStatus(ctx context.Context, providerID string) (provider.Status, error) {
	const op = "connection status"
	cfg, endpoints, cfgErr := c.config(op, providerID)
	if endpoints == nil {
		return provider.Status{}, cfgErr
	}

	stored, err := c.vault.Get(ctx, credentials.TokenRef(providerID))
	if errors.Is(err, credentials.ErrTokenNotFound) {
		return provider.Status{Connected: false}, nil
	}
	if err != nil {
		return provider.Status{}, domain.Wrap(domain.KindProvider, op, err, "failed to read the stored token")
	}

	access := stored.AccessToken
	if cfgErr == nil && stored.RefreshToken != "" && !stored.Expiry.IsZero() && time.Now().After(stored.Expiry) {
		fresh, err := cfg.TokenSource(c.clientContext(ctx), toOAuth2(stored)).Token()
		if err != nil {
			slog.Warn("Token refresh failed",
				"layer", "oauth",
				"provider_id", providerID,
				"error", err)
			return provider.Status{Connected: false}, nil
		}
		if err := c.vault.Put(ctx, credentials.TokenRef(providerID), fromOAuth2(fresh)); err != nil {
			return provider.Status{}, domain.Wrap(domain.KindProvider, op, err, "failed to store the refreshed token")
		}
		access = fresh.AccessToken
	}

	acct, err := provider.FetchAccount(ctx, c.http, op, provider.AccountRequest{
		URL:        endpoints.UserURL,
		Scheme:     "Bearer",
		Token:      access,
		LabelField: endpoints.LabelField,
	})
	if errors.Is(err, domain.ErrAuth) {
		return provider.Status{Connected: false}, nil
	}
	if err != nil {
		return provider.Status{}, err
	}
	return provider.Status{Connected: true, AccountLabel: acct.Label}, nil
}

// Revoke forgets the stored token.
func (c *Client) Revoke(ctx context.Context, providerID string) error {
	if err := c.vault.Delete(ctx, credentials.TokenRef(providerID)); err != nil {
		return domain.Wrap(domain.KindProvider, "revoke", err, "failed to remove the stored token")
	}
	return nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func classifyTokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = "the provider refused the authorization code"
		}
		return domain.AuthError(op, "%s", msg)
	}
	return provider.TransportError(op, err)
}

func fromOAuth2(t *oauth2.Token) credentials.Token {
	return credentials.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

func toOAuth2(t credentials.Token) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}
