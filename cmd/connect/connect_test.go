package connect

import (
	"strings"
	"testing"

	"github.com/repotorpedo/torpedo/cmd/test"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/provider"
	"github.com/repotorpedo/torpedo/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConnectAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		key     string
		verify  error
		wantOut string
		wantErr error
	}{
		{
			name:    "key flag",
			args:    []string{"render", "--api-key", "rnd_123"},
			key:     "rnd_123",
			wantOut: "Connected to Render as team@example.com.",
		},
		{
			name:    "key from stdin",
			args:    []string{"render"},
			stdin:   "rnd_456\n",
			key:     "rnd_456",
			wantOut: "Connected to Render as team@example.com.",
		},
		{
			name:    "rejected key",
			args:    []string{"render", "--api-key", "bad"},
			key:     "bad",
			verify:  domain.AuthError("verify api key", "the API key was rejected"),
			wantErr: domain.ErrAuth,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := test.NewEnv(t)
			env.Render.On("VerifyAPIKey", mock.Anything, "render", tt.key).
				Return(provider.Account{Label: "team@example.com"}, tt.verify)

			cmd := NewCmdConnect()
			cmd.SetIn(strings.NewReader(tt.stdin))
			stdout, stderr, err := test.ExecuteCommand(cmd, tt.args...)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, stderr, "the API key was rejected")
				assert.Equal(t, domain.ConnectionStatusError, env.Services.Connections.Connection("render").Status)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, stdout, tt.wantOut)
			assert.True(t, env.Services.Connections.IsConnected("render"))
		})
	}
}

func TestConnectEmptyKey(t *testing.T) {
	env := test.NewEnv(t)

	cmd := NewCmdConnect()
	cmd.SetIn(strings.NewReader("\n"))
	_, _, err := test.ExecuteCommand(cmd, "render")

	assert.ErrorIs(t, err, domain.ErrValidation)
	env.Render.AssertNotCalled(t, "VerifyAPIKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestConnectUnknownProvider(t *testing.T) {
	test.NewEnv(t)

	_, stderr, err := test.ExecuteCommand(NewCmdConnect(), "heroku")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, stderr, `unknown provider "heroku"`)
}

func TestConnectOAuth(t *testing.T) {
	env := test.NewEnv(t)
	const authURL = "https://github.com/login/oauth/authorize?state=s"
	env.GitHub.On("AuthorizationURL", mock.Anything, "github").Return(authURL, nil)
	env.Surface.On("Open", mock.Anything, authURL).Return(&mocks.FakeHandle{CloseAfter: 2}, nil)
	env.GitHub.On("ConnectionStatus", mock.Anything, "github").
		Return(provider.Status{Connected: true, AccountLabel: "octocat"}, nil)

	stdout, _, err := test.ExecuteCommand(NewCmdConnect(), "github")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Waiting for GitHub authorization")
	assert.Contains(t, stdout, "Connected to GitHub as octocat.")
}

func TestDisconnect(t *testing.T) {
	env := test.NewEnv(t)
	env.Connect(t, "render", "team@example.com")
	env.Render.On("Revoke", mock.Anything, "render").Return(nil)

	stdout, _, err := test.ExecuteCommand(NewCmdDisconnect(), "render")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Disconnected render.")
	assert.False(t, env.Services.Connections.IsConnected("render"))
}

func TestLogout(t *testing.T) {
	env := test.NewEnv(t)
	env.Connect(t, "github", "octocat")
	env.Connect(t, "render", "team@example.com")
	env.GitHub.On("Revoke", mock.Anything, "github").Return(nil)
	env.Render.On("Revoke", mock.Anything, "render").Return(nil)

	stdout, _, err := test.ExecuteCommand(NewCmdLogout())
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed out.")
	assert.False(t, env.Services.Connections.IsConnected("github"))
	assert.False(t, env.Services.Connections.IsConnected("render"))
}
