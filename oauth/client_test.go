package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/repotorpedo/torpedo/catalog"
	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// fakeProvider is a minimal authorization server plus user endpoint.
type fakeProvider struct {
	mu         sync.Mutex
	validToken string
	lastForm   url.Values
	tokenError string
}

func (f *fakeProvider) setTokenError(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenError = code
}

func (f *fakeProvider) form() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastForm = r.PostForm
		tokenError := f.tokenError
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if tokenError != "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": tokenError, "error_description": "The code passed is incorrect or expired."})
			return
		}

		access := "gho_first"
		if r.PostForm.Get("grant_type") == "refresh_token" {
			access = "gho_refreshed"
		}
		f.mu.Lock()
		f.validToken = access
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"token_type":    "bearer",
			"refresh_token": "ghr_refresh",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		valid := f.validToken
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"login":"octocat"}`))
	})
	return mux
}

func setupClient(t *testing.T) (*Client, *fakeProvider, credentials.Vault) {
	t.Helper()
	fake := &fakeProvider{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cat := catalog.New(domain.Provider{
		ID: "github", Name: "GitHub", Kind: domain.ProviderKindSource, AuthMethod: domain.AuthMethodOAuth,
		OAuth: &domain.OAuthEndpoints{
			AuthURL:    srv.URL + "/authorize",
			TokenURL:   srv.URL + "/token",
			UserURL:    srv.URL + "/user",
			LabelField: "login",
			Scopes:     []string{"repo"},
		},
	}, domain.Provider{ID: "render", Name: "Render", AuthMethod: domain.AuthMethodAPIKey})

	keyring.MockInit()
	vault := credentials.NewKeyringVault("torpedo-oauth-test")
	client := NewClient(cat, vault, NewStateSigner("secret", time.Minute), "http://127.0.0.1:8765/oauth/callback", srv.Client())
	client.Register("github", App{ClientID: "client-123", ClientSecret: "shh"})
	return client, fake, vault
}

func stateOf(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestClient_AuthorizationURL(t *testing.T) {
	client, _, _ := setupClient(t)

	authURL, err := client.AuthorizationURL(context.Background(), "github")
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "repo", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "http://127.0.0.1:8765/oauth/callback", q.Get("redirect_uri"))

	providerID, err := client.states.Verify(q.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "github", providerID)
}

func TestClient_AuthorizationURL_Errors(t *testing.T) {
	client, _, _ := setupClient(t)
	ctx := context.Background()

	for _, id := range []string{"unknown", "render"} {
		_, err := client.AuthorizationURL(ctx, id)
		assert.ErrorIs(t, err, domain.ErrValidation, id)
	}

	client.Register("github", App{})
	_, err := client.AuthorizationURL(ctx, "github")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "TORPEDO_GITHUB_CLIENT_ID")
}

func TestClient_ExchangeAndStatus(t *testing.T) {
	client, fake, vault := setupClient(t)
	ctx := context.Background()

	status, err := client.ConnectionStatus(ctx, "github")
	require.NoError(t, err)
	assert.False(t, status.Connected)

	authURL, err := client.AuthorizationURL(ctx, "github")
	require.NoError(t, err)
	state := stateOf(t, authURL)

	providerID, err := client.Exchange(ctx, state, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "github", providerID)
	assert.Equal(t, "the-code", fake.form().Get("code"))
	assert.NotEmpty(t, fake.form().Get("code_verifier"))

	tok, err := vault.Get(ctx, credentials.TokenRef("github"))
	require.NoError(t, err)
	assert.Equal(t, "gho_first", tok.AccessToken)

	status, err = client.ConnectionStatus(ctx, "github")
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "octocat", status.AccountLabel)

	_, err = client.Exchange(ctx, state, "the-code")
	assert.ErrorIs(t, err, domain.ErrAuth)

	require.NoError(t, client.Revoke(ctx, "github"))
	status, err = client.ConnectionStatus(ctx, "github")
	require.NoError(t, err)
	assert.False(t, status.Connected)
}

func TestClient_ExchangeRejected(t *testing.T) {
	client, fake, _ := setupClient(t)
	ctx := context.Background()

	_, err := client.Exchange(ctx, "forged", "code")
	assert.ErrorIs(t, err, domain.ErrAuth)

	authURL, err := client.AuthorizationURL(ctx, "github")
	require.NoError(t, err)
	fake.setTokenError("bad_verification_code")

	_, err = client.Exchange(ctx, stateOf(t, authURL), "stale")
	require.ErrorIs(t, err, domain.ErrAuth)
	assert.Contains(t, err.Error(), "incorrect or expired")
}

func TestClient_ConnectionStatusRefreshesExpiredToken(t *testing.T) {
	client, _, vault := setupClient(t)
	ctx := context.Background()

	require.NoError(t, vault.Put(ctx, credentials.TokenRef("github"), credentials.Token{
		AccessToken:  "gho_expired",
		TokenType:    "bearer",
		RefreshToken: "ghr_refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	status, err := client.ConnectionStatus(ctx, "github")
	require.NoError(t, err)
	assert.True(t, status.Connected)

	tok, err := vault.Get(ctx, credentials.TokenRef("github"))
	require.NoError(t, err)
	assert.Equal(t, "gho_refreshed", tok.AccessToken)
}

func TestClient_VerifyAPIKeyUnsupported(t *testing.T) {
	client, _, _ := setupClient(t)
	_, err := client.VerifyAPIKey(context.Background(), "github", "x")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
