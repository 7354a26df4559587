package utils

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/repotorpedo/torpedo/app"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"validation", domain.ValidationError("op", "bad"), ExitValidation},
		{"state", domain.StateError("op", "busy"), ExitState},
		{"auth", domain.AuthError("op", "denied"), ExitAuth},
		{"network", domain.NetworkError("op", "down"), ExitNetwork},
		{"provider", domain.ProviderError("op", "boom"), ExitProvider},
		{"wrapped", fmt.Errorf("deploy: %w", domain.AuthError("op", "denied")), ExitAuth},
		{"unclassified", errors.New("oops"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestFormatErrorForUser(t *testing.T) {
	assert.Equal(t, "auth error: the API key was rejected",
		FormatErrorForUser(domain.AuthError("verify api key", "the API key was rejected")))
	assert.Equal(t, "oops", FormatErrorForUser(errors.New("oops")))
}

func TestHandleCommandError(t *testing.T) {
	var logBuf bytes.Buffer
	original := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(original)

	cmd := &cobra.Command{}
	var errOut bytes.Buffer
	cmd.SetErr(&errOut)

	err := domain.StateError("deploy", "render is not connected")
	got := HandleCommandError(cmd, "deploy", err, "provider_id", "render")

	assert.Same(t, err, got)
	assert.Contains(t, errOut.String(), "Error: state error: render is not connected")
	assert.Contains(t, logBuf.String(), "Command failed")
	assert.Contains(t, logBuf.String(), "provider_id=render")
}

func TestServices(t *testing.T) {
	app.SetServicesForTesting(nil)
	_, err := Services()
	require.ErrorIs(t, err, ErrNotInitialized)

	app.SetServicesForTesting(&app.Services{})
	defer app.SetServicesForTesting(nil)
	s, err := Services()
	require.NoError(t, err)
	assert.NotNil(t, s)
}
