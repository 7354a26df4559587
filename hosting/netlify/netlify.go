// Package netlify publishes uploaded asset manifests as Netlify sites.
package netlify

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/hosting"
	"github.com/repotorpedo/torpedo/provider"
)

const (
	ProviderID     = "netlify"
	DefaultBaseURL = "https://api.netlify.com/api/v1"
)

type Client struct {
	baseURL string
	vault   credentials.Vault
	http    *http.Client
}

func NewClient(vault credentials.Vault, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), vault: vault, http: httpClient}
}

func (c *Client) Supports(kind domain.SourceKind) bool {
	return kind == domain.SourceKindManifest
}

type site struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	SSLURL string `json:"ssl_url"`
}

type deploy struct {
	ID           string `json:"id"`
	SiteID       string `json:"site_id"`
	State        string `json:"state"`
	SSLURL       string `json:"ssl_url"`
	DeploySSLURL string `json:"deploy_ssl_url"`
	ErrorMessage string `json:"error_message"`
}

// CreateDeployment creates a site named after the project and uploads the
// manifest as a zip archive rooted at the directory holding index.html.
func (c *Client) CreateDeployment(ctx context.Context, req domain.DeploymentRequest) (hosting.Handle, error) {
	const op = "create netlify deployment"
	if !c.Supports(req.Source.Kind) {
		return hosting.Handle{}, domain.ValidationError(op, "Netlify publishes uploaded files, not repositories")
	}
	token, err := hosting.AccessToken(ctx, c.vault, op, ProviderID)
	if err != nil {
		return hosting.Handle{}, err
	}

	archive, err := Archive(req.Source.Assets)
	if err != nil {
		return hosting.Handle{}, domain.Wrap(domain.KindValidation, op, err, "could not package the files")
	}

	s, err := c.createSite(ctx, op, token, req.ResolvedProjectName())
	if err != nil {
		return hosting.Handle{}, err
	}

	var d deploy
	path := "/sites/" + url.PathEscape(s.ID) + "/deploys"
	if err := c.do(ctx, op, token, http.MethodPost, path, "application/zip", archive, &d); err != nil {
		return hosting.Handle{}, err
	}

	slog.Info("Netlify deploy uploaded",
		"layer", "hosting",
		"provider_id", ProviderID,
		"site_id", s.ID,
		"deploy_id", d.ID,
		"bytes", len(archive))

	siteURL := s.SSLURL
	if siteURL == "" {
		siteURL = s.URL
	}
	return hosting.Handle{ProviderID: ProviderID, ServiceID: s.ID, DeployID: d.ID, URL: siteURL}, nil
}

// createSite asks for the project name first; when Netlify reports the name
// as taken it lets Netlify pick one.
func (c *Client) createSite(ctx context.Context, op, token, name string) (site, error) {
	var s site
	body, _ := json.Marshal(map[string]string{"name": name})
	err := c.do(ctx, op, token, http.MethodPost, "/sites", "application/json", body, &s)
	if err == nil {
		return s, nil
	}
	if provider.StatusCode(err) != http.StatusUnprocessableEntity {
		return site{}, err
	}

	slog.Debug("Netlify site name unavailable, using a generated one",
		"layer", "hosting",
		"provider_id", ProviderID,
		"name", name)
	s = site{}
	if err := c.do(ctx, op, token, http.MethodPost, "/sites", "application/json", []byte("{}"), &s); err != nil {
		return site{}, err
	}
	return s, nil
}

func (c *Client) PollDeploymentStatus(ctx context.Context, h hosting.Handle) (hosting.Status, error) {
	const op = "poll netlify deployment"
	token, err := hosting.AccessToken(ctx, c.vault, op, ProviderID)
	if err != nil {
		return hosting.Status{}, err
	}

	var d deploy
	if err := c.do(ctx, op, token, http.MethodGet, "/deploys/"+url.PathEscape(h.DeployID), "", nil, &d); err != nil {
		return hosting.Status{}, err
	}

	st := mapState(d.State, d.ErrorMessage)
	if st.Stage == domain.StageComplete && st.Err == nil {
		siteURL := d.SSLURL
		if siteURL == "" {
			siteURL = h.URL
		}
		st.ResultURLs = map[string]string{}
		if siteURL != "" {
			st.ResultURLs[domain.ResultURLWeb] = siteURL
		}
		if d.DeploySSLURL != "" {
			st.ResultURLs["deploy"] = d.DeploySSLURL
		}
	}
	return st, nil
}

func mapState(state, message string) hosting.Status {
	st := hosting.Status{PercentDone: hosting.UnknownPercent}
	switch state {
	case "new", "enqueued", "uploading":
		st.Stage = domain.StageUploading
	case "uploaded", "preparing", "prepared":
		st.Stage = domain.StageConfiguring
	case "processing", "processed":
		st.Stage = domain.StageFinalizing
	case "ready":
		st.Stage = domain.StageComplete
		st.PercentDone = 100
	case "error", "rejected":
		if message == "" {
			message = "deploy " + state
		}
		st.Err = domain.ProviderError("netlify deploy", "Netlify deploy failed: %s", message)
	default:
		st.Stage = domain.StageConfiguring
	}
	return st
}

// Archive zips assets with paths relative to the directory of index.html.
// Assets outside that directory are stored under their base name.
func Archive(assets []domain.Asset) ([]byte, error) {
	root := ""
	for _, a := range assets {
		if filepath.Base(a.Path) == domain.IndexAsset {
			root = filepath.Dir(a.Path)
			break
		}
	}
	if root == "" {
		return nil, fmt.Errorf("manifest has no %s", domain.IndexAsset)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		name, err := filepath.Rel(root, a.Path)
		if err != nil || strings.HasPrefix(name, "..") {
			name = filepath.Base(a.Path)
		}
		name = filepath.ToSlash(name)
		if seen[name] {
			return nil, fmt.Errorf("two files map to %s", name)
		}
		seen[name] = true

		if err := addFile(zw, name, a.Path); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

func addFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, token, method, path, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domain.Wrap(domain.KindValidation, op, err, "invalid request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return provider.DoJSON(c.http, op, req, out)
}
