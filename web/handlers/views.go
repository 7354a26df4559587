package handlers

import (
	"time"

	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/session"
)

type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type ProviderView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Kind        string          `json:"kind"`
	AuthMethod  string          `json:"auth_method"`
	DocsURL     string          `json:"docs_url,omitempty"`
	KeyHint     string          `json:"key_hint,omitempty"`
	Connection  *ConnectionView `json:"connection,omitempty"`
}

type ConnectionView struct {
	ProviderID   string     `json:"provider_id"`
	Status       string     `json:"status"`
	AccountLabel string     `json:"account_label,omitempty"`
	ConnectedAt  *time.Time `json:"connected_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	Error        *ErrorView `json:"error,omitempty"`
}

type AttemptView struct {
	ID               string            `json:"id"`
	Provider         string            `json:"provider"`
	Source           string            `json:"source"`
	ProjectName      string            `json:"project_name,omitempty"`
	State            string            `json:"state"`
	Stage            string            `json:"stage"`
	StageDescription string            `json:"stage_description"`
	Progress         int               `json:"progress"`
	ResultURLs       map[string]string `json:"result_urls,omitempty"`
	Error            *ErrorView        `json:"error,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	EndedAt          *time.Time        `json:"ended_at,omitempty"`
}

type HistoryRecordView struct {
	URL    string `json:"url"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

type SessionView struct {
	Step            string         `json:"step"`
	StepDescription string         `json:"step_description"`
	SignedIn        bool           `json:"signed_in"`
	Account         string         `json:"account,omitempty"`
	ConnectedHosts  []string       `json:"connected_hosts"`
	Providers       []ProviderView `json:"providers"`
	LastDeployment  *AttemptView   `json:"last_deployment,omitempty"`
}

func ConvertErrorToView(err *domain.Error) *ErrorView {
	if err == nil {
		return nil
	}
	return &ErrorView{Kind: err.Kind.String(), Message: domain.UserMessage(err)}
}

func ConvertConnectionToView(c domain.Connection) ConnectionView {
	v := ConnectionView{
		ProviderID:   c.ProviderID,
		Status:       c.Status.String(),
		AccountLabel: c.AccountLabel,
		ConnectedAt:  c.ConnectedAt,
		Error:        ConvertErrorToView(c.LastError),
	}
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

// ConvertProviderToView converts a catalog entry, attaching conn when given.
func ConvertProviderToView(p domain.Provider, conn *domain.Connection) ProviderView {
	v := ProviderView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Kind:        p.Kind.String(),
		AuthMethod:  p.AuthMethod.String(),
		DocsURL:     p.DocsURL,
		KeyHint:     p.KeyHint,
	}
	if conn != nil {
		cv := ConvertConnectionToView(*conn)
		v.Connection = &cv
	}
	return v
}

func ConvertAttemptToView(a domain.DeploymentAttempt) AttemptView {
	return AttemptView{
		ID:               a.ID.String(),
		Provider:         a.Request.TargetProvider,
		Source:           a.Request.Source.String(),
		ProjectName:      a.Request.ProjectName,
		State:            a.State.String(),
		Stage:            a.Stage.String(),
		StageDescription: a.Stage.Description(),
		Progress:         a.Progress,
		ResultURLs:       a.ResultURLs,
		Error:            ConvertErrorToView(a.Error),
		StartedAt:        a.StartedAt,
		EndedAt:          a.EndedAt,
	}
}

func ConvertAttemptsToViews(attempts []domain.DeploymentAttempt) []AttemptView {
	views := make([]AttemptView, len(attempts))
	for i, a := range attempts {
		views[i] = ConvertAttemptToView(a)
	}
	return views
}

func ConvertHistoryToViews(recs []domain.HistoryRecord) []HistoryRecordView {
	views := make([]HistoryRecordView, len(recs))
	for i, r := range recs {
		views[i] = HistoryRecordView{URL: r.URL, Date: r.Date, Status: r.Status.String()}
	}
	return views
}

func ConvertSessionToView(s session.View) SessionView {
	v := SessionView{
		Step:            string(s.Step),
		StepDescription: s.Step.Description(),
		SignedIn:        s.SignedIn,
		Account:         s.Account,
		ConnectedHosts:  append([]string{}, s.ConnectedHosts...),
		Providers:       make([]ProviderView, len(s.Providers)),
	}
	for i, pv := range s.Providers {
		v.Providers[i] = ConvertProviderToView(pv.Provider, &pv.Connection)
	}
	if s.LastDeployment != nil {
		av := ConvertAttemptToView(*s.LastDeployment)
		v.LastDeployment = &av
	}
	return v
}
