package hosting

import (
	"context"
	"testing"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestStatus_Done(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"in progress", Status{Stage: domain.StageUploading, PercentDone: UnknownPercent}, false},
		{"complete", Status{Stage: domain.StageComplete}, true},
		{"failed", Status{Stage: domain.StageConfiguring, Err: domain.ProviderError("poll", "build failed")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Done())
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Client("render")
	assert.False(t, ok)
}

func TestAccessToken(t *testing.T) {
	keyring.MockInit()
	vault := credentials.NewKeyringVault("torpedo-test")
	ctx := context.Background()

	_, err := AccessToken(ctx, vault, "deploy", "render")
	assert.ErrorIs(t, err, domain.ErrAuth)

	require.NoError(t, vault.Put(ctx, credentials.TokenRef("render"), credentials.Token{AccessToken: "rnd_1"}))
	tok, err := AccessToken(ctx, vault, "deploy", "render")
	require.NoError(t, err)
	assert.Equal(t, "rnd_1", tok)
}
