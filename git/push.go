package git

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/repotorpedo/torpedo/domain"
)

// PushOptions describe the single commit CommitAndPush creates.
type PushOptions struct {
	RemoteURL   string
	Token       string
	Branch      string // defaults to main
	Message     string
	AuthorName  string
	AuthorEmail string
}

// CommitAndPush turns dir into a fresh repository, commits every file in it
// and pushes the commit to the remote. It returns the commit hash.
func (s *GitService) CommitAndPush(ctx context.Context, dir string, opts PushOptions) (string, error) {
	const op = "push repository"

	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}
	ref := plumbing.NewBranchReferenceName(branch)

	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: ref},
	})
	if err != nil {
		return "", domain.Wrap(domain.KindValidation, op, err, "could not create a repository")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", domain.Wrap(domain.KindValidation, op, err, "could not open the worktree")
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", domain.Wrap(domain.KindValidation, op, err, "could not stage files")
	}
	hash, err := wt.Commit(opts.Message, &git.CommitOptions{
		Author: &object.Signature{Name: opts.AuthorName, Email: opts.AuthorEmail, When: time.Now()},
	})
	if err != nil {
		return "", domain.Wrap(domain.KindValidation, op, err, "could not commit files")
	}

	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{opts.RemoteURL}}); err != nil {
		return "", domain.Wrap(domain.KindValidation, op, err, "invalid remote")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pushOpts := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())},
	}
	if isHTTP(opts.RemoteURL) {
		pushOpts.Auth = s.createAuthMethod(opts.Token)
	}
	if err := repo.PushContext(ctx, pushOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		slog.Error("Service operation failed",
			"layer", "git",
			"operation", "git_push",
			"git_url", opts.RemoteURL,
			"error", err)
		if errors.Is(err, git.ErrForceNeeded) || strings.Contains(err.Error(), "non-fast-forward") {
			return "", domain.Wrap(domain.KindValidation, op, err, "the repository already has other history, pick another project name")
		}
		return "", classify(op, err)
	}

	slog.Info("Repository pushed",
		"layer", "git",
		"git_url", opts.RemoteURL,
		"branch", branch,
		"commit", hash.String())
	return hash.String(), nil
}

func isHTTP(remote string) bool {
	return strings.HasPrefix(remote, "https://") || strings.HasPrefix(remote, "http://")
}
