package domain

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// SourceKind tells what a SourceRef points at.
type SourceKind int

const (
	SourceKindRepository SourceKind = iota
	SourceKindManifest
)

func (k SourceKind) String() string {
	switch k {
	case SourceKindManifest:
		return "manifest"
	default:
		return "repository"
	}
}

// AllowedAssetExtensions are the file types accepted in an asset manifest.
var AllowedAssetExtensions = []string{
	".html", ".css", ".js", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico", ".txt", ".json", ".xml",
}

// IndexAsset must be present in every asset manifest.
const IndexAsset = "index.html"

var (
	shortRepoPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)$`)
	scpRepoPattern   = regexp.MustCompile(`^[A-Za-z0-9_.-]+@[A-Za-z0-9_.-]+:[A-Za-z0-9_./-]+$`)
	envKeyPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Asset is one file of a manifest.
type Asset struct {
	Path string
	Size int64
}

// SourceRef is either a repository reference or an asset manifest.
type SourceRef struct {
	Kind       SourceKind
	Repository string // clone URL, https or scp-like
	Branch     string // empty means the repository's default branch
	Assets     []Asset
}

// RepositorySource parses "owner/name", an https URL, or an scp-like git
// address. A trailing "#branch" selects a branch.
func RepositorySource(ref string) SourceRef {
	ref = strings.TrimSpace(ref)
	var branch string
	if i := strings.LastIndex(ref, "#"); i >= 0 {
		ref, branch = ref[:i], ref[i+1:]
	}
	if shortRepoPattern.MatchString(ref) && !strings.HasPrefix(ref, ".") {
		ref = "https://github.com/" + ref
	}
	return SourceRef{Kind: SourceKindRepository, Repository: ref, Branch: branch}
}

// ManifestSource builds a manifest from local file paths.
func ManifestSource(paths ...string) SourceRef {
	assets := make([]Asset, 0, len(paths))
	for _, p := range paths {
		assets = append(assets, Asset{Path: p})
	}
	return SourceRef{Kind: SourceKindManifest, Assets: assets}
}

func (s SourceRef) String() string {
	if s.Kind == SourceKindManifest {
		return fmt.Sprintf("%d local files", len(s.Assets))
	}
	if s.Branch != "" {
		return s.Repository + "#" + s.Branch
	}
	return s.Repository
}

// Name is a human-friendly name for the source, used to derive project names.
func (s SourceRef) Name() string {
	if s.Kind == SourceKindManifest {
		for _, a := range s.Assets {
			if filepath.Base(a.Path) == IndexAsset {
				dir := filepath.Base(filepath.Dir(a.Path))
				if dir != "." && dir != string(filepath.Separator) {
					return dir
				}
			}
		}
		return "website"
	}
	repo := s.Repository
	if i := strings.LastIndex(repo, ":"); i >= 0 && scpRepoPattern.MatchString(repo) {
		repo = repo[i+1:]
	}
	if u, err := url.Parse(repo); err == nil && u.Path != "" {
		repo = u.Path
	}
	return strings.TrimSuffix(path.Base(repo), ".git")
}

// WebURL is a browsable location for a repository source, or "" for manifests.
func (s SourceRef) WebURL() string {
	if s.Kind != SourceKindRepository {
		return ""
	}
	return strings.TrimSuffix(s.Repository, ".git")
}

func (s SourceRef) Validate() error {
	const op = "validate source"
	switch s.Kind {
	case SourceKindRepository:
		return validateRepository(op, s.Repository)
	case SourceKindManifest:
		return validateManifest(op, s.Assets)
	default:
		return ValidationError(op, "unknown source kind %d", s.Kind)
	}
}

func validateRepository(op, repo string) error {
	if repo == "" {
		return ValidationError(op, "repository reference is required")
	}
	if scpRepoPattern.MatchString(repo) {
		return nil
	}
	u, err := url.Parse(repo)
	if err != nil {
		return ValidationError(op, "malformed repository reference %q", repo)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ValidationError(op, "malformed repository reference %q: use owner/name or an https URL", repo)
	}
	if u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return ValidationError(op, "malformed repository reference %q", repo)
	}
	return nil
}

func validateManifest(op string, assets []Asset) error {
	if len(assets) == 0 {
		return ValidationError(op, "asset manifest is empty")
	}
	seen := make(map[string]bool, len(assets))
	hasIndex := false
	for _, a := range assets {
		if strings.TrimSpace(a.Path) == "" {
			return ValidationError(op, "asset path is empty")
		}
		if seen[a.Path] {
			return ValidationError(op, "asset %q listed twice", a.Path)
		}
		seen[a.Path] = true
		if !IsAllowedAsset(a.Path) {
			return ValidationError(op, "unsupported asset type %q", filepath.Ext(a.Path))
		}
		if filepath.Base(a.Path) == IndexAsset {
			hasIndex = true
		}
	}
	if !hasIndex {
		return ValidationError(op, "asset manifest must include %s", IndexAsset)
	}
	return nil
}

func IsAllowedAsset(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, allowed := range AllowedAssetExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// EnvVar is one environment variable passed to the hosting provider.
type EnvVar struct {
	Key   string
	Value string
}

// ParseEnvVar parses KEY=VALUE.
func ParseEnvVar(s string) (EnvVar, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return EnvVar{}, ValidationError("parse env", "expected KEY=VALUE, got %q", s)
	}
	return EnvVar{Key: strings.TrimSpace(key), Value: value}, nil
}

// DeploymentRequest is the immutable input of one deployment attempt.
type DeploymentRequest struct {
	Source         SourceRef
	TargetProvider string
	ProjectName    string
	EnvVars        []EnvVar
	RequestedAt    time.Time
}

func (r DeploymentRequest) Validate() error {
	const op = "validate deployment"
	if strings.TrimSpace(r.TargetProvider) == "" {
		return ValidationError(op, "target provider is required")
	}
	if err := r.Source.Validate(); err != nil {
		return err
	}
	if r.ResolvedProjectName() == "" {
		return ValidationError(op, "project name %q has no usable characters", r.ProjectName)
	}
	seen := make(map[string]bool, len(r.EnvVars))
	for _, v := range r.EnvVars {
		if !envKeyPattern.MatchString(v.Key) {
			return ValidationError(op, "invalid environment variable name %q", v.Key)
		}
		if seen[v.Key] {
			return ValidationError(op, "duplicate environment variable %q", v.Key)
		}
		seen[v.Key] = true
	}
	return nil
}

// ResolvedProjectName is the explicit project name or one derived from the
// source, always slug-safe.
func (r DeploymentRequest) ResolvedProjectName() string {
	if r.ProjectName != "" {
		return slug.Make(r.ProjectName)
	}
	return slug.Make(r.Source.Name())
}

func (r DeploymentRequest) EnvMap() map[string]string {
	m := make(map[string]string, len(r.EnvVars))
	for _, v := range r.EnvVars {
		m[v.Key] = v.Value
	}
	return m
}
