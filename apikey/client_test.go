package apikey

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/repotorpedo/torpedo/catalog"
	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func setup(t *testing.T) (*Client, credentials.Vault) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer rnd_valid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"owner":{"email":"jane@example.com"}}]`))
	}))
	t.Cleanup(srv.Close)

	cat := catalog.New(
		domain.Provider{
			ID: "render", Name: "Render", Kind: domain.ProviderKindHosting, AuthMethod: domain.AuthMethodAPIKey,
			APIKey: &domain.APIKeyEndpoint{VerifyURL: srv.URL, Header: "Authorization", Scheme: "Bearer", LabelField: "0.owner.email"},
		},
		domain.Provider{ID: "github", Name: "GitHub", AuthMethod: domain.AuthMethodOAuth},
	)

	keyring.MockInit()
	vault := credentials.NewKeyringVault("torpedo-apikey-test")
	return NewClient(cat, vault, srv.Client()), vault
}

func TestVerifyAPIKey_Valid(t *testing.T) {
	client, vault := setup(t)
	ctx := context.Background()

	acct, err := client.VerifyAPIKey(ctx, "render", "  rnd_valid \n")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", acct.Label)

	tok, err := vault.Get(ctx, credentials.TokenRef("render"))
	require.NoError(t, err)
	assert.Equal(t, "rnd_valid", tok.AccessToken)

	status, err := client.ConnectionStatus(ctx, "render")
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "jane@example.com", status.AccountLabel)
}

func TestVerifyAPIKey_Rejected(t *testing.T) {
	client, vault := setup(t)
	ctx := context.Background()

	_, err := client.VerifyAPIKey(ctx, "render", "rnd_wrong")
	assert.ErrorIs(t, err, domain.ErrAuth)

	_, err = vault.Get(ctx, credentials.TokenRef("render"))
	assert.ErrorIs(t, err, credentials.ErrTokenNotFound)
}

func TestVerifyAPIKey_InvalidInput(t *testing.T) {
	client, _ := setup(t)
	ctx := context.Background()

	for name, tc := range map[string]struct{ provider, key string }{
		"empty key":        {"render", "   "},
		"unknown provider": {"heroku", "x"},
		"oauth provider":   {"github", "x"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := client.VerifyAPIKey(ctx, tc.provider, tc.key)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := client.AuthorizationURL(ctx, "render")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestConnectionStatus_NoKeyOrRevokedKey(t *testing.T) {
	client, vault := setup(t)
	ctx := context.Background()

	status, err := client.ConnectionStatus(ctx, "render")
	require.NoError(t, err)
	assert.False(t, status.Connected)

	require.NoError(t, vault.Put(ctx, credentials.TokenRef("render"), credentials.Token{AccessToken: "rnd_revoked"}))
	status, err = client.ConnectionStatus(ctx, "render")
	require.NoError(t, err)
	assert.False(t, status.Connected)

	require.NoError(t, client.Revoke(ctx, "render"))
	_, err = vault.Get(ctx, credentials.TokenRef("render"))
	assert.ErrorIs(t, err, credentials.ErrTokenNotFound)
}
