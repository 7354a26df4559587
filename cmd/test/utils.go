// Package test provides utility functions for testing the torpedo CLI
package test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/repotorpedo/torpedo/app"
	"github.com/repotorpedo/torpedo/catalog"
	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/connection"
	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/history"
	"github.com/repotorpedo/torpedo/hosting"
	"github.com/repotorpedo/torpedo/metrics"
	"github.com/repotorpedo/torpedo/pipeline"
	"github.com/repotorpedo/torpedo/provider"
	"github.com/repotorpedo/torpedo/session"
	"github.com/repotorpedo/torpedo/testing/mocks"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Env is an in-memory application installed as the app services.
type Env struct {
	Services *app.Services
	GitHub   *mocks.MockProviderClient
	Render   *mocks.MockProviderClient
	Surface  *mocks.MockSurface
	Host     *mocks.MockHostingClient
}

// NewEnv wires github (OAuth sign-in) and render (API key, hosting) against
// mocks and installs the result for the duration of the test.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	output.InitColors(true)

	cat := catalog.New(
		domain.Provider{ID: "github", Name: "GitHub", Kind: domain.ProviderKindSource, AuthMethod: domain.AuthMethodOAuth},
		domain.Provider{ID: "render", Name: "Render", Kind: domain.ProviderKindHosting, AuthMethod: domain.AuthMethodAPIKey},
	)
	e := &Env{
		GitHub:  &mocks.MockProviderClient{},
		Render:  &mocks.MockProviderClient{},
		Surface: &mocks.MockSurface{},
		Host:    &mocks.MockHostingClient{},
	}
	e.Host.On("Supports", mock.Anything).Return(true).Maybe()

	store := credentials.NewStore(nil)
	m := metrics.New()
	clients := provider.NewRegistry()
	clients.Register("github", e.GitHub)
	clients.Register("render", e.Render)
	orch := connection.New(cat, clients, e.Surface, store, m,
		connection.Options{PollInterval: time.Millisecond, MaxPollCycles: 50})

	hosts := hosting.NewRegistry()
	hosts.Register("render", e.Host)
	hist := history.NewStore(history.NewMemoryRepository())
	pipe := pipeline.New(store, hosts, nil, hist, m, pipeline.Options{PollInterval: time.Millisecond})

	e.Services = &app.Services{
		Catalog:      cat,
		Connections:  store,
		Orchestrator: orch,
		Pipeline:     pipe,
		History:      hist,
		Session:      session.NewController(cat, store, pipe),
		Metrics:      m,
	}
	app.SetServicesForTesting(e.Services)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pipe.Shutdown(ctx)
		app.SetServicesForTesting(nil)
	})
	return e
}

// Connect marks providerID connected as label.
func (e *Env) Connect(t *testing.T, providerID, label string) {
	t.Helper()
	conn := domain.NewConnection(providerID).Connected(label, credentials.TokenRef(providerID), time.Now())
	require.NoError(t, e.Services.Connections.Put(context.Background(), conn))
}

// ExecuteCommand runs cmd with args and returns what it wrote to stdout and stderr.
func ExecuteCommand(cmd *cobra.Command, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// Trim trims trailing spaces left by tablewriter on each line to make the lines length-aligned
func Trim(input string) string {
	lines := strings.Split(input, "\n")

	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \n")
	}

	return strings.Join(lines, "\n")
}
