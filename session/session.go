// Package session answers what the user should see next: who is signed in,
// which providers are connected and which onboarding step comes next.
package session

import (
	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
)

// SignInProviderID is the source provider a session signs in with.
const SignInProviderID = "github"

type Step string

const (
	StepSignIn      Step = "sign_in"
	StepConnectHost Step = "connect_host"
	StepDeploy      Step = "deploy"
	StepDeploying   Step = "deploying"
)

func (s Step) Description() string {
	switch s {
	case StepSignIn:
		return "Sign in with GitHub to get started"
	case StepConnectHost:
		return "Connect a hosting provider"
	case StepDeploying:
		return "A deployment is in progress"
	default:
		return "Choose a repository or upload files and deploy"
	}
}

type Catalog interface {
	All() []domain.Provider
}

type Deployments interface {
	List() []domain.DeploymentAttempt
}

// ProviderView pairs a catalog entry with its connection.
type ProviderView struct {
	Provider   domain.Provider
	Connection domain.Connection
}

type View struct {
	Step           Step
	SignedIn       bool
	Account        string
	Providers      []ProviderView
	ConnectedHosts []string
	LastDeployment *domain.DeploymentAttempt
}

type Controller struct {
	catalog     Catalog
	conns       credentials.Reader
	deployments Deployments
}

// NewController builds a controller. deployments may be nil.
func NewController(catalog Catalog, conns credentials.Reader, deployments Deployments) *Controller {
	return &Controller{catalog: catalog, conns: conns, deployments: deployments}
}

func (c *Controller) View() View {
	var v View

	for _, p := range c.catalog.All() {
		conn := c.conns.Connection(p.ID)
		v.Providers = append(v.Providers, ProviderView{Provider: p, Connection: conn})
		if conn.IsConnected() && p.CanHost() {
			v.ConnectedHosts = append(v.ConnectedHosts, p.ID)
		}
	}

	if signIn := c.conns.Connection(SignInProviderID); signIn.IsConnected() {
		v.SignedIn = true
		v.Account = signIn.AccountLabel
	}

	if c.deployments != nil {
		if list := c.deployments.List(); len(list) > 0 {
			last := list[0]
			v.LastDeployment = &last
		}
	}

	switch {
	case !v.SignedIn:
		v.Step = StepSignIn
	case len(v.ConnectedHosts) == 0:
		v.Step = StepConnectHost
	case v.LastDeployment != nil && !v.LastDeployment.State.IsTerminal():
		v.Step = StepDeploying
	default:
		v.Step = StepDeploy
	}
	return v
}
