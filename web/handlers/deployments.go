package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/repotorpedo/torpedo/domain"
)

type EnvVarRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DeployRequest carries either a repository reference or a list of local
// asset paths, never both.
type DeployRequest struct {
	Provider   string          `json:"provider"`
	Repository string          `json:"repository,omitempty"`
	Branch     string          `json:"branch,omitempty"`
	Assets     []string        `json:"assets,omitempty"`
	Name       string          `json:"name,omitempty"`
	Env        []EnvVarRequest `json:"env,omitempty"`
}

// ToDomain builds the deployment request. Field validation is left to the pipeline.
func (d DeployRequest) ToDomain() (domain.DeploymentRequest, error) {
	const op = "decode deployment"
	repo := strings.TrimSpace(d.Repository)
	var src domain.SourceRef
	switch {
	case repo != "" && len(d.Assets) > 0:
		return domain.DeploymentRequest{}, domain.ValidationError(op, "give either a repository or assets, not both")
	case repo != "":
		src = domain.RepositorySource(repo)
		if b := strings.TrimSpace(d.Branch); b != "" {
			src.Branch = b
		}
	case len(d.Assets) > 0:
		src = domain.ManifestSource(d.Assets...)
	default:
		return domain.DeploymentRequest{}, domain.ValidationError(op, "a repository or assets are required")
	}

	env := make([]domain.EnvVar, len(d.Env))
	for i, e := range d.Env {
		env[i] = domain.EnvVar{Key: strings.TrimSpace(e.Key), Value: e.Value}
	}
	return domain.DeploymentRequest{
		Source:         src,
		TargetProvider: strings.TrimSpace(d.Provider),
		ProjectName:    strings.TrimSpace(d.Name),
		EnvVars:        env,
	}, nil
}

func (a *API) SubmitDeployment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body DeployRequest
		if err := DecodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}
		req, err := body.ToDomain()
		if err != nil {
			WriteError(w, err)
			return
		}
		attempt, err := a.services.Deployments.Submit(r.Context(), req)
		if err != nil {
			LogOperationError("submit_deployment", "handlers", err, "provider_id", req.TargetProvider)
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, ConvertAttemptToView(attempt))
	}
}

func (a *API) ListDeployments() http.HandlerFunc {
	return HandleQuery(func(r *http.Request) ([]AttemptView, error) {
		return ConvertAttemptsToViews(a.services.Deployments.List()), nil
	}, "list_deployments")
}

func (a *API) DeploymentProgress() http.HandlerFunc {
	return withAttemptID(func(w http.ResponseWriter, r *http.Request, attemptID uuid.UUID) {
		attempt, err := a.services.Deployments.Progress(attemptID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ConvertAttemptToView(attempt))
	})
}

func (a *API) CancelDeployment() http.HandlerFunc {
	return withAttemptID(func(w http.ResponseWriter, r *http.Request, attemptID uuid.UUID) {
		HandleAction(func(*http.Request) error {
			return a.services.Deployments.Cancel(attemptID)
		}, "cancel_deployment")(w, r)
	})
}
