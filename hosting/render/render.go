// Package render publishes repositories as Render static sites.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/hosting"
	"github.com/repotorpedo/torpedo/provider"
)

const (
	ProviderID     = "render"
	DefaultBaseURL = "https://api.render.com/v1"
)

type Client struct {
	baseURL string
	vault   credentials.Vault
	http    *http.Client
}

// NewClient builds a Render client. An empty baseURL uses the public API.
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
	return kind == domain.SourceKindRepository
}

type envVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type serviceDetails struct {
	PublishPath string `json:"publishPath,omitempty"`
	URL         string `json:"url,omitempty"`
}

type createServiceRequest struct {
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	OwnerID        string         `json:"ownerId"`
	Repo           string         `json:"repo"`
	Branch         string         `json:"branch,omitempty"`
	AutoDeploy     string         `json:"autoDeploy"`
	EnvVars        []envVar       `json:"envVars,omitempty"`
	ServiceDetails serviceDetails `json:"serviceDetails"`
}

type service struct {
	ID             string         `json:"id"`
	ServiceDetails serviceDetails `json:"serviceDetails"`
}

type createServiceResponse struct {
	Service  service `json:"service"`
	DeployID string  `json:"deployId"`
}

type deploy struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateDeployment creates a static site service for the repository and
// returns the deploy Render started for it.
func (c *Client) CreateDeployment(ctx context.Context, req domain.DeploymentRequest) (hosting.Handle, error) {
	const op = "create render deployment"
	if !c.Supports(req.Source.Kind) {
		return hosting.Handle{}, domain.ValidationError(op, "Render deploys from a repository, not uploaded files")
	}
	token, err := hosting.AccessToken(ctx, c.vault, op, ProviderID)
	if err != nil {
		return hosting.Handle{}, err
	}

	ownerID, err := c.ownerID(ctx, token)
	if err != nil {
		return hosting.Handle{}, err
	}

	body := createServiceRequest{
		Type:           "static_site",
		Name:           req.ResolvedProjectName(),
		OwnerID:        ownerID,
		Repo:           req.Source.WebURL(),
		Branch:         req.Source.Branch,
		AutoDeploy:     "no",
		ServiceDetails: serviceDetails{PublishPath: "./"},
	}
	for _, ev := range req.EnvVars {
		body.EnvVars = append(body.EnvVars, envVar{Key: ev.Key, Value: ev.Value})
	}

	var created createServiceResponse
	if err := c.do(ctx, op, token, http.MethodPost, "/services", body, &created); err != nil {
		return hosting.Handle{}, err
	}
	if created.Service.ID == "" {
		return hosting.Handle{}, domain.ProviderError(op, "Render returned no service id")
	}

	deployID := created.DeployID
	if deployID == "" {
		var d deploy
		if err := c.do(ctx, op, token, http.MethodPost, "/services/"+url.PathEscape(created.Service.ID)+"/deploys", struct{}{}, &d); err != nil {
			return hosting.Handle{}, err
		}
		deployID = d.ID
	}

	slog.Info("Render service created",
		"layer", "hosting",
		"provider_id", ProviderID,
		"service_id", created.Service.ID,
		"deploy_id", deployID)

	return hosting.Handle{
		ProviderID: ProviderID,
		ServiceID:  created.Service.ID,
		DeployID:   deployID,
		URL:        created.Service.ServiceDetails.URL,
	}, nil
}

func (c *Client) PollDeploymentStatus(ctx context.Context, h hosting.Handle) (hosting.Status, error) {
	const op = "poll render deployment"
	token, err := hosting.AccessToken(ctx, c.vault, op, ProviderID)
	if err != nil {
		return hosting.Status{}, err
	}

	var d deploy
	path := fmt.Sprintf("/services/%s/deploys/%s", url.PathEscape(h.ServiceID), url.PathEscape(h.DeployID))
	if err := c.do(ctx, op, token, http.MethodGet, path, nil, &d); err != nil {
		return hosting.Status{}, err
	}

	st := mapStatus(d.Status)
	if st.Stage == domain.StageComplete && st.Err == nil {
		siteURL := h.URL
		if siteURL == "" {
			var s service
			if err := c.do(ctx, op, token, http.MethodGet, "/services/"+url.PathEscape(h.ServiceID), nil, &s); err != nil {
				return hosting.Status{}, err
			}
			siteURL = s.ServiceDetails.URL
		}
		if siteURL != "" {
			st.ResultURLs = map[string]string{domain.ResultURLWeb: siteURL}
		}
	}
	return st, nil
}

// mapStatus translates a Render deploy status. Render reports no percentage.
func mapStatus(status string) hosting.Status {
	st := hosting.Status{PercentDone: hosting.UnknownPercent}
	switch status {
	case "created", "queued":
		st.Stage = domain.StagePreparing
	case "build_in_progress":
		st.Stage = domain.StageUploading
	case "update_in_progress", "pre_deploy_in_progress":
		st.Stage = domain.StageConfiguring
	case "live":
		st.Stage = domain.StageComplete
		st.PercentDone = 100
	case "build_failed", "update_failed", "pre_deploy_failed":
		st.Err = domain.ProviderError("render deploy", "Render deploy failed (%s)", status)
	case "canceled", "deactivated":
		st.Err = domain.ProviderError("render deploy", "Render deploy was %s", status)
	default:
		st.Stage = domain.StageConfiguring
	}
	return st
}

func (c *Client) ownerID(ctx context.Context, token string) (string, error) {
	const op = "find render owner"
	var owners []struct {
		Owner struct {
			ID string `json:"id"`
		} `json:"owner"`
	}
	if err := c.do(ctx, op, token, http.MethodGet, "/owners?limit=1", nil, &owners); err != nil {
		return "", err
	}
	if len(owners) == 0 || owners[0].Owner.ID == "" {
		return "", domain.ProviderError(op, "the Render account has no workspace")
	}
	return owners[0].Owner.ID, nil
}

func (c *Client) do(ctx context.Context, op, token, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return domain.Wrap(domain.KindValidation, op, err, "could not encode request")
		}
		body = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return domain.Wrap(domain.KindValidation, op, err, "invalid request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return provider.DoJSON(c.http, op, req, out)
}
