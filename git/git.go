// Package git checks that a repository source can be reached before a
// deployment is provisioned from it.
package git

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/repotorpedo/torpedo/domain"
)

const DefaultTimeout = 30 * time.Second

// RemoteInfo describes the branches advertised by a remote.
type RemoteInfo struct {
	DefaultBranch string
	Branches      []string
}

func (r RemoteInfo) HasBranch(name string) bool {
	return slices.Contains(r.Branches, name)
}

type GitService struct {
	timeout time.Duration
}

func NewGitService(timeout time.Duration) *GitService {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GitService{timeout: timeout}
}

// createAuthMethod uses a provider token as HTTP basic auth, the way GitHub
// accepts OAuth tokens over HTTPS.
func (s *GitService) createAuthMethod(token string) transport.AuthMethod {
	if token == "" {
		return nil // Public repo
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}
}

// Inspect lists the remote's branches with git ls-remote.
func (s *GitService) Inspect(ctx context.Context, gitURL, token string) (RemoteInfo, error) {
	const op = "inspect repository"
	slog.Debug("Listing remote references", "layer", "git", "git_url", gitURL)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	remote := git.NewRemote(nil, &config.RemoteConfig{
		Name: "origin",
		URLs: []string{gitURL},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{
		Auth: s.createAuthMethod(token),
	})
	if err != nil {
		slog.Error("Service operation failed",
			"layer", "git",
			"operation", "git_ls_remote",
			"git_url", gitURL,
			"error", err)
		return RemoteInfo{}, classify(op, err)
	}

	info := remoteInfo(refs)
	if len(info.Branches) == 0 {
		return RemoteInfo{}, domain.ValidationError(op, "repository %s has no branches", gitURL)
	}
	return info, nil
}

func remoteInfo(refs []*plumbing.Reference) RemoteInfo {
	var info RemoteInfo
	var head *plumbing.Reference
	hashes := make(map[string]plumbing.Hash)

	for _, ref := range refs {
		switch {
		case ref.Name() == plumbing.HEAD:
			head = ref
		case ref.Name().IsBranch():
			name := ref.Name().Short()
			info.Branches = append(info.Branches, name)
			hashes[name] = ref.Hash()
		}
	}
	slices.Sort(info.Branches)

	switch {
	case head != nil && head.Type() == plumbing.SymbolicReference:
		info.DefaultBranch = head.Target().Short()
	case head != nil:
		// Without a symref, pick the branch HEAD points at, preferring the usual names.
		candidates := append([]string{"main", "master"}, info.Branches...)
		for _, name := range candidates {
			if h, ok := hashes[name]; ok && h == head.Hash() {
				info.DefaultBranch = name
				break
			}
		}
	}
	if info.DefaultBranch == "" {
		for _, name := range []string{"main", "master"} {
			if info.HasBranch(name) {
				info.DefaultBranch = name
				break
			}
		}
	}
	if info.DefaultBranch == "" && len(info.Branches) > 0 {
		info.DefaultBranch = info.Branches[0]
	}
	return info
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return domain.Wrap(domain.KindAuth, op, err, "access to the repository was denied")
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return domain.Wrap(domain.KindValidation, op, err, "repository not found")
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return domain.Wrap(domain.KindValidation, op, err, "repository is empty")
	default:
		return domain.Wrap(domain.KindNetwork, op, err, "could not reach the repository")
	}
}
