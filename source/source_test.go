package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/git"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type fakeInspector struct {
	info   git.RemoteInfo
	err    error
	gotURL string
	token  string
}

func (f *fakeInspector) Inspect(_ context.Context, gitURL, token string) (git.RemoteInfo, error) {
	f.gotURL = gitURL
	f.token = token
	return f.info, f.err
}

func TestPrepare_Repository(t *testing.T) {
	info := git.RemoteInfo{DefaultBranch: "main", Branches: []string{"gh-pages", "main"}}

	tests := []struct {
		name       string
		ref        string
		wantBranch string
		wantErr    error
	}{
		{"default branch", "octo/site", "main", nil},
		{"explicit branch", "octo/site#gh-pages", "gh-pages", nil},
		{"missing branch", "octo/site#develop", "", domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insp := &fakeInspector{info: info}
			got, err := NewPreparer(insp, nil).Prepare(context.Background(), domain.RepositorySource(tt.ref))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBranch, got.Branch)
			assert.Equal(t, "https://github.com/octo/site", insp.gotURL)
		})
	}
}

func TestPrepare_RepositoryUsesGitHubToken(t *testing.T) {
	keyring.MockInit()
	vault := credentials.NewKeyringVault("torpedo-source-test")
	require.NoError(t, vault.Put(context.Background(), credentials.TokenRef(GitHubProviderID), credentials.Token{AccessToken: "gho_1"}))
	info := git.RemoteInfo{DefaultBranch: "main", Branches: []string{"main"}}

	insp := &fakeInspector{info: info}
	_, err := NewPreparer(insp, vault).Prepare(context.Background(), domain.RepositorySource("octo/private"))
	require.NoError(t, err)
	assert.Equal(t, "gho_1", insp.token)

	insp = &fakeInspector{info: info}
	_, err = NewPreparer(insp, vault).Prepare(context.Background(), domain.RepositorySource("https://gitlab.com/octo/site"))
	require.NoError(t, err)
	assert.Empty(t, insp.token, "token is only sent to github.com")
}

func TestPrepare_RepositoryInspectError(t *testing.T) {
	insp := &fakeInspector{err: domain.AuthError("inspect repository", "access to the repository was denied")}
	_, err := NewPreparer(insp, nil).Prepare(context.Background(), domain.RepositorySource("octo/private"))
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestPrepare_Manifest(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(index, []byte("<h1>hello</h1>"), 0o644))

	got, err := NewPreparer(&fakeInspector{}, nil).Prepare(context.Background(), domain.ManifestSource(index))
	require.NoError(t, err)
	require.Len(t, got.Assets, 1)
	assert.Equal(t, int64(14), got.Assets[0].Size)

	_, err = NewPreparer(&fakeInspector{}, nil).Prepare(context.Background(),
		domain.ManifestSource(index, filepath.Join(dir, "missing.css")))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewPreparer(&fakeInspector{}, nil).Prepare(context.Background(), domain.ManifestSource(dir))
	assert.ErrorIs(t, err, domain.ErrValidation, "directories are rejected")
}
