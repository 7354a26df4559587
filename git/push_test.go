package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireReceivePack(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git-receive-pack"); err != nil {
		t.Skip("git-receive-pack not available")
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func treeFiles(t *testing.T, remote string, branch string) []string {
	t.Helper()
	repo, err := git.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)

	var names []string
	iter, err := commit.Files()
	require.NoError(t, err)
	require.NoError(t, iter.ForEach(func(f *object.File) error {
		names = append(names, f.Name)
		return nil
	}))
	return names
}

func TestCommitAndPush_BareRemote(t *testing.T) {
	requireReceivePack(t)
	remote := t.TempDir()
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	dir := writeFiles(t, map[string]string{
		"index.html":     "<h1>hi</h1>",
		"css/site.css":   "body{}",
		"docs/notes.txt": "notes",
	})

	hash, err := NewGitService(5*time.Second).CommitAndPush(context.Background(), dir, PushOptions{
		RemoteURL:   remote,
		Message:     "Initial upload",
		AuthorName:  "octo",
		AuthorEmail: "octo@users.noreply.github.com",
	})
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	assert.ElementsMatch(t, []string{"index.html", "css/site.css", "docs/notes.txt"}, treeFiles(t, remote, "main"))
}

func TestCommitAndPush_ExistingHistory(t *testing.T) {
	requireReceivePack(t)
	remote := t.TempDir()
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	svc := NewGitService(5 * time.Second)
	opts := PushOptions{RemoteURL: remote, Message: "upload", AuthorName: "octo", AuthorEmail: "octo@example.com"}

	_, err = svc.CommitAndPush(context.Background(), writeFiles(t, map[string]string{"index.html": "one"}), opts)
	require.NoError(t, err)

	_, err = svc.CommitAndPush(context.Background(), writeFiles(t, map[string]string{"index.html": "two"}), opts)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIsHTTP(t *testing.T) {
	tests := []struct {
		remote string
		want   bool
	}{
		{"https://github.com/octo/site.git", true},
		{"http://localhost:3000/octo/site.git", true},
		{"/tmp/site.git", false},
		{"git@github.com:octo/site.git", false},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			assert.Equal(t, tt.want, isHTTP(tt.remote))
		})
	}
}
