package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/git"
	"github.com/repotorpedo/torpedo/hosting/render"
	"github.com/repotorpedo/torpedo/provider"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGitHubAPI = "https://api.github.com"

	maxRepoName   = 100
	publishBranch = "main"
)

// Project types detected from the uploaded files.
const (
	ProjectStatic = "static"
	ProjectNode   = "nodejs"
	ProjectPython = "python"
)

type Pusher interface {
	CommitAndPush(ctx context.Context, dir string, opts git.PushOptions) (string, error)
}

// Publisher uploads a manifest to a new GitHub repository so providers that
// only build from repositories can deploy it.
type Publisher struct {
	pusher  Pusher
	vault   credentials.Vault
	baseURL string
	http    *http.Client
}

// NewPublisher builds a Publisher. An empty baseURL uses the public GitHub API.
func NewPublisher(pusher Pusher, vault credentials.Vault, baseURL string, httpClient *http.Client) *Publisher {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Publisher{pusher: pusher, vault: vault, baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type githubRepo struct {
	Name     string `json:"name"`
	HTMLURL  string `json:"html_url"`
	CloneURL string `json:"clone_url"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type createRepoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

// Publish creates the repository, pushes the files with a CI workflow and
// returns the repository as the new source.
func (p *Publisher) Publish(ctx context.Context, req domain.DeploymentRequest) (domain.SourceRef, error) {
	const op = "publish files"

	tok, err := p.vault.Get(ctx, credentials.TokenRef(GitHubProviderID))
	if err != nil {
		if errors.Is(err, credentials.ErrTokenNotFound) {
			return domain.SourceRef{}, domain.AuthError(op, "connect GitHub to deploy uploaded files to %s", req.TargetProvider)
		}
		return domain.SourceRef{}, domain.Wrap(domain.KindAuth, op, err, "could not read the GitHub token")
	}

	name := RepoName(req.ResolvedProjectName())
	repo, err := p.ensureRepository(ctx, tok.AccessToken, name)
	if err != nil {
		return domain.SourceRef{}, err
	}

	dir, err := os.MkdirTemp("", "torpedo-publish-*")
	if err != nil {
		return domain.SourceRef{}, domain.Wrap(domain.KindValidation, op, err, "could not create a staging directory")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	projectType, err := stageAssets(dir, req.Source.Assets)
	if err != nil {
		return domain.SourceRef{}, err
	}
	if err := writeWorkflow(dir, projectType); err != nil {
		return domain.SourceRef{}, err
	}
	if req.TargetProvider == render.ProviderID {
		if err := writeRenderBlueprint(dir, name); err != nil {
			return domain.SourceRef{}, err
		}
	}

	login := repo.Owner.Login
	if _, err := p.pusher.CommitAndPush(ctx, dir, git.PushOptions{
		RemoteURL:   repo.CloneURL,
		Token:       tok.AccessToken,
		Branch:      publishBranch,
		Message:     fmt.Sprintf("Upload %s", name),
		AuthorName:  login,
		AuthorEmail: login + "@users.noreply.github.com",
	}); err != nil {
		return domain.SourceRef{}, err
	}

	location := repo.HTMLURL
	if location == "" {
		location = repo.CloneURL
	}
	slog.Info("Files published to GitHub",
		"layer", "source",
		"operation", op,
		"repository", location,
		"project_type", projectType)
	return domain.SourceRef{Kind: domain.SourceKindRepository, Repository: location, Branch: publishBranch}, nil
}

// ensureRepository creates the repository or reuses an existing one of the
// same name owned by the token's user.
func (p *Publisher) ensureRepository(ctx context.Context, token, name string) (githubRepo, error) {
	const op = "create github repository"

	var repo githubRepo
	err := p.do(ctx, op, token, http.MethodPost, "/user/repos", createRepoRequest{
		Name:        name,
		Description: "Deployed with torpedo",
	}, &repo)
	if err == nil {
		if repo.CloneURL == "" {
			return githubRepo{}, domain.ProviderError(op, "GitHub returned no clone URL")
		}
		return repo, nil
	}
	if provider.StatusCode(err) != http.StatusUnprocessableEntity {
		return githubRepo{}, err
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := p.do(ctx, op, token, http.MethodGet, "/user", nil, &user); err != nil {
		return githubRepo{}, err
	}
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(user.Login), url.PathEscape(name))
	if err := p.do(ctx, op, token, http.MethodGet, path, nil, &repo); err != nil {
		return githubRepo{}, domain.ValidationError(op, "repository %q cannot be created, pick another project name", name)
	}
	slog.Debug("Reusing existing GitHub repository", "layer", "source", "repository", repo.HTMLURL)
	return repo, nil
}

func (p *Publisher) do(ctx context.Context, op, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return domain.Wrap(domain.KindValidation, op, err, "could not encode request")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return domain.Wrap(domain.KindValidation, op, err, "invalid request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return provider.DoJSON(p.http, op, req, out)
}

// RepoName makes name acceptable as a GitHub repository name.
func RepoName(name string) string {
	name = slug.Make(strings.ReplaceAll(name, "_", "-"))
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		name = "repo-" + name
	}
	if len(name) > maxRepoName {
		name = strings.TrimRight(name[:maxRepoName], "-")
	}
	return name
}

// stageAssets copies the assets into dir, keeping their layout relative to
// the closest directory containing all of them.
func stageAssets(dir string, assets []domain.Asset) (string, error) {
	const op = "stage files"

	paths := make([]string, 0, len(assets))
	for _, a := range assets {
		abs, err := filepath.Abs(a.Path)
		if err != nil {
			return "", domain.Wrap(domain.KindValidation, op, err, fmt.Sprintf("invalid path %s", a.Path))
		}
		paths = append(paths, abs)
	}
	root := commonDir(paths)

	names := make([]string, 0, len(paths))
	for _, src := range paths {
		rel, err := filepath.Rel(root, src)
		if err != nil {
			return "", domain.Wrap(domain.KindValidation, op, err, fmt.Sprintf("invalid path %s", src))
		}
		dst := filepath.Join(dir, rel)
		if err := copyFile(src, dst); err != nil {
			return "", domain.Wrap(domain.KindValidation, op, err, fmt.Sprintf("cannot copy %s", src))
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return DetectProjectType(names), nil
}

func commonDir(paths []string) string {
	if len(paths) == 0 {
		return "."
	}
	root := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		for {
			rel, err := filepath.Rel(root, p)
			if err == nil && !strings.HasPrefix(rel, "..") {
				break
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}
	return root
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// DetectProjectType looks for build manifests among the top-level files.
func DetectProjectType(names []string) string {
	for _, n := range names {
		switch n {
		case "package.json":
			return ProjectNode
		case "requirements.txt":
			return ProjectPython
		}
	}
	return ProjectStatic
}

type workflow struct {
	Name string         `yaml:"name"`
	On   workflowEvents `yaml:"on"`
	Jobs map[string]job `yaml:"jobs"`
}

type workflowEvents struct {
	Push        branchFilter `yaml:"push"`
	PullRequest branchFilter `yaml:"pull_request"`
}

type branchFilter struct {
	Branches []string `yaml:"branches"`
}

type job struct {
	RunsOn string `yaml:"runs-on"`
	Steps  []step `yaml:"steps"`
}

type step struct {
	Name string            `yaml:"name,omitempty"`
	Uses string            `yaml:"uses,omitempty"`
	With map[string]string `yaml:"with,omitempty"`
	Run  string            `yaml:"run,omitempty"`
}

// Workflow builds the GitHub Actions CI workflow for a project type.
func Workflow(projectType string) ([]byte, error) {
	steps := []step{{Uses: "actions/checkout@v4"}}
	switch projectType {
	case ProjectNode:
		steps = append(steps,
			step{Uses: "actions/setup-node@v4", With: map[string]string{"node-version": "20"}},
			step{Name: "Install dependencies", Run: "npm ci || npm install"},
			step{Name: "Test", Run: "npm test --if-present"},
			step{Name: "Build", Run: "npm run build --if-present"},
		)
	case ProjectPython:
		steps = append(steps,
			step{Uses: "actions/setup-python@v5", With: map[string]string{"python-version": "3.12"}},
			step{Name: "Install dependencies", Run: "pip install -r requirements.txt"},
		)
	default:
		steps = append(steps, step{Name: "Check site", Run: "test -f " + domain.IndexAsset})
	}

	wf := workflow{
		Name: "CI",
		On: workflowEvents{
			Push:        branchFilter{Branches: []string{publishBranch}},
			PullRequest: branchFilter{Branches: []string{publishBranch}},
		},
		Jobs: map[string]job{"build": {RunsOn: "ubuntu-latest", Steps: steps}},
	}
	return yaml.Marshal(wf)
}

func writeWorkflow(dir, projectType string) error {
	data, err := Workflow(projectType)
	if err != nil {
		return domain.Wrap(domain.KindValidation, "write workflow", err, "could not build the CI workflow")
	}
	return writeGenerated(filepath.Join(dir, ".github", "workflows", "ci.yml"), data)
}

type renderBlueprint struct {
	Services []renderService `yaml:"services"`
}

type renderService struct {
	Type              string `yaml:"type"`
	Name              string `yaml:"name"`
	Runtime           string `yaml:"runtime"`
	StaticPublishPath string `yaml:"staticPublishPath"`
}

func writeRenderBlueprint(dir, name string) error {
	data, err := yaml.Marshal(renderBlueprint{Services: []renderService{{
		Type:              "web",
		Name:              name,
		Runtime:           "static",
		StaticPublishPath: "./",
	}}})
	if err != nil {
		return domain.Wrap(domain.KindValidation, "write render blueprint", err, "could not build render.yaml")
	}
	return writeGenerated(filepath.Join(dir, "render.yaml"), data)
}

// writeGenerated does not overwrite a file the user uploaded.
func writeGenerated(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.Wrap(domain.KindValidation, "stage files", err, "could not create "+filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.Wrap(domain.KindValidation, "stage files", err, "could not write "+path)
	}
	return nil
}
