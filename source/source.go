// Package source checks and completes a deployment source before it is
// handed to a hosting provider.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/git"
)

// MaxManifestBytes caps the total size of an uploaded asset manifest.
const MaxManifestBytes int64 = 100 << 20

// GitHubProviderID names the connection whose token is used for github.com repositories.
const GitHubProviderID = "github"

type Inspector interface {
	Inspect(ctx context.Context, gitURL, token string) (git.RemoteInfo, error)
}

type Preparer struct {
	inspector Inspector
	vault     credentials.Vault
}

// NewPreparer builds a Preparer. A nil vault inspects repositories anonymously.
func NewPreparer(inspector Inspector, vault credentials.Vault) *Preparer {
	return &Preparer{inspector: inspector, vault: vault}
}

// Prepare resolves the branch of a repository source or sizes the files of
// a manifest. The returned SourceRef is what gets deployed.
func (p *Preparer) Prepare(ctx context.Context, src domain.SourceRef) (domain.SourceRef, error) {
	switch src.Kind {
	case domain.SourceKindRepository:
		return p.prepareRepository(ctx, src)
	case domain.SourceKindManifest:
		return prepareManifest(src)
	default:
		return domain.SourceRef{}, domain.ValidationError("prepare source", "unknown source kind")
	}
}

func (p *Preparer) prepareRepository(ctx context.Context, src domain.SourceRef) (domain.SourceRef, error) {
	const op = "prepare repository"

	info, err := p.inspector.Inspect(ctx, src.Repository, p.token(ctx, src.Repository))
	if err != nil {
		return domain.SourceRef{}, err
	}

	if src.Branch == "" {
		src.Branch = info.DefaultBranch
	} else if !info.HasBranch(src.Branch) {
		return domain.SourceRef{}, domain.ValidationError(op, "branch %q does not exist in %s", src.Branch, src.WebURL())
	}

	slog.Debug("Repository source resolved",
		"layer", "source",
		"repository", src.Repository,
		"branch", src.Branch)
	return src, nil
}

// token returns the GitHub token for github.com repositories when one is stored.
func (p *Preparer) token(ctx context.Context, repo string) string {
	if p.vault == nil {
		return ""
	}
	u, err := url.Parse(repo)
	if err != nil || u.Host != "github.com" {
		return ""
	}
	tok, err := p.vault.Get(ctx, credentials.TokenRef(GitHubProviderID))
	if err != nil {
		if !errors.Is(err, credentials.ErrTokenNotFound) {
			slog.Warn("Could not read GitHub token, trying anonymously",
				"layer", "source",
				"error", err)
		}
		return ""
	}
	return tok.AccessToken
}

func prepareManifest(src domain.SourceRef) (domain.SourceRef, error) {
	const op = "prepare files"

	assets := make([]domain.Asset, 0, len(src.Assets))
	var total int64
	for _, a := range src.Assets {
		fi, err := os.Stat(a.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return domain.SourceRef{}, domain.ValidationError(op, "file %s does not exist", a.Path)
			}
			return domain.SourceRef{}, domain.Wrap(domain.KindValidation, op, err, fmt.Sprintf("cannot read %s", a.Path))
		}
		if !fi.Mode().IsRegular() {
			return domain.SourceRef{}, domain.ValidationError(op, "%s is not a regular file", a.Path)
		}
		total += fi.Size()
		assets = append(assets, domain.Asset{Path: a.Path, Size: fi.Size()})
	}
	if total > MaxManifestBytes {
		return domain.SourceRef{}, domain.ValidationError(op, "files total %d bytes, the limit is %d", total, MaxManifestBytes)
	}

	src.Assets = assets
	return src, nil
}
