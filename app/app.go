// Package app wires torpedo's components from configuration and holds them
// for the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/repotorpedo/torpedo/apikey"
	"github.com/repotorpedo/torpedo/catalog"
	"github.com/repotorpedo/torpedo/config"
	"github.com/repotorpedo/torpedo/connection"
	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/db"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/encryption"
	"github.com/repotorpedo/torpedo/git"
	"github.com/repotorpedo/torpedo/history"
	"github.com/repotorpedo/torpedo/hosting"
	"github.com/repotorpedo/torpedo/hosting/netlify"
	"github.com/repotorpedo/torpedo/hosting/render"
	"github.com/repotorpedo/torpedo/metrics"
	"github.com/repotorpedo/torpedo/oauth"
	"github.com/repotorpedo/torpedo/pipeline"
	"github.com/repotorpedo/torpedo/provider"
	"github.com/repotorpedo/torpedo/repository"
	"github.com/repotorpedo/torpedo/session"
	"github.com/repotorpedo/torpedo/source"
	"github.com/repotorpedo/torpedo/surface"
	"gorm.io/gorm"
)

// CatalogFileName is an optional provider catalog in the data directory
// that replaces the built-in one.
const CatalogFileName = "providers.yaml"

var (
	// Version is set at build time via -ldflags
	Version = "dev"

	database  *gorm.DB
	appConfig *config.Config
	services  *Services
)

// Services are the long-lived components of one session.
type Services struct {
	Catalog      *catalog.Catalog
	Connections  *credentials.Store
	Orchestrator *connection.Orchestrator
	Pipeline     *pipeline.Pipeline
	History      *history.Store
	Session      *session.Controller
	Metrics      *metrics.Metrics
	Callbacks    *oauth.CallbackServer
}

// Options tunes wiring that has no place in config.yaml.
type Options struct {
	// Notice receives the "open this URL" hint shown when a browser is launched.
	Notice io.Writer
}

// InitializeWithConfig initializes the app with a pre-configured Config
func InitializeWithConfig(cfg *config.Config, opts Options) error {
	var err error

	appConfig = cfg

	if err := os.MkdirAll(appConfig.DataDir, 0o700); err != nil {
		return err
	}

	database, err = db.InitDB(appConfig.DatabasePath)
	if err != nil {
		return err
	}

	s, err := buildServices(context.Background(), appConfig, database, opts)
	if err != nil {
		_ = db.Close(database)
		database = nil
		return err
	}
	services = s
	return nil
}

func buildServices(ctx context.Context, cfg *config.Config, database *gorm.DB, opts Options) (*Services, error) {
	vault, err := newVault(cfg, database)
	if err != nil {
		return nil, err
	}

	cat, err := loadCatalog(filepath.Join(cfg.DataDir, CatalogFileName))
	if err != nil {
		return nil, err
	}

	hc := &http.Client{Timeout: cfg.HTTPTimeout}

	states := oauth.NewStateSigner(cfg.StateSecret, oauth.DefaultStateTTL)
	oauthClient := oauth.NewClient(cat, vault, states, cfg.CallbackURL(), hc)
	apikeyClient := apikey.NewClient(cat, vault, hc)

	clients := provider.NewRegistry()
	for _, p := range cat.All() {
		switch p.AuthMethod {
		case domain.AuthMethodOAuth:
			if c := cfg.OAuthClient(p.ID); c.IsSet() {
				oauthClient.Register(p.ID, oauth.App{ClientID: c.ClientID, ClientSecret: c.ClientSecret})
			} else {
				slog.Debug("No OAuth application configured",
					"layer", "app",
					"provider_id", p.ID)
			}
			clients.Register(p.ID, oauthClient)
		case domain.AuthMethodAPIKey:
			clients.Register(p.ID, apikeyClient)
		}
	}

	callbacks := oauth.NewCallbackServer(oauthClient, cfg.CallbackAddr())

	store := credentials.NewStore(repository.NewConnectionRepository(database))
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load connections: %w", err)
	}

	m := metrics.New()

	orch := connection.New(cat, clients, surface.NewBrowser(callbacks, opts.Notice), store, m, connection.Options{
		PollInterval:  cfg.PollInterval,
		MaxPollCycles: cfg.MaxPollCycles,
	})

	hosts := hosting.NewRegistry()
	hosts.Register(render.ProviderID, render.NewClient(vault, cfg.APIBaseURL(render.ProviderID, render.DefaultBaseURL), hc))
	hosts.Register(netlify.ProviderID, netlify.NewClient(vault, cfg.APIBaseURL(netlify.ProviderID, netlify.DefaultBaseURL), hc))

	gitService := git.NewGitService(cfg.HTTPTimeout)
	preparer := source.NewPreparer(gitService, vault)
	publisher := source.NewPublisher(gitService, vault, cfg.APIBaseURL(source.GitHubProviderID, source.DefaultGitHubAPI), hc)
	hist := history.NewStore(repository.NewHistoryRepository(database))

	pipe := pipeline.New(store, hosts, preparer, hist, m, pipeline.Options{
		PollInterval: cfg.DeployPollInterval,
		Timeout:      cfg.DeployTimeout,
		Publisher:    publisher,
	})

	return &Services{
		Catalog:      cat,
		Connections:  store,
		Orchestrator: orch,
		Pipeline:     pipe,
		History:      hist,
		Session:      session.NewController(cat, store, pipe),
		Metrics:      m,
		Callbacks:    callbacks,
	}, nil
}

func newVault(cfg *config.Config, database *gorm.DB) (credentials.Vault, error) {
	if cfg.TokenBackend == config.TokenBackendKeyring {
		return credentials.NewKeyringVault(credentials.KeyringService), nil
	}
	enc, err := encryption.NewEncryptionService(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return credentials.NewDatabaseVault(repository.NewTokenRepository(database), enc), nil
}

// loadCatalog reads path when it exists and falls back to the built-in catalog.
func loadCatalog(path string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return catalog.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog: %w", err)
	}
	cat, err := catalog.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid provider catalog %s: %w", path, err)
	}
	slog.Debug("Loaded provider catalog", "layer", "app", "path", path, "providers", len(cat.All()))
	return cat, nil
}

func GetServices() *Services {
	return services
}

func GetConfig() *config.Config {
	return appConfig
}

// SetServicesForTesting allows overriding the services for testing purposes
func SetServicesForTesting(s *Services) {
	services = s
}

// Shutdown stops background work and releases the database.
func Shutdown(ctx context.Context) error {
	var errs []error
	if services != nil {
		if services.Pipeline != nil {
			errs = append(errs, services.Pipeline.Shutdown(ctx))
		}
		if services.Callbacks != nil {
			errs = append(errs, services.Callbacks.Shutdown(ctx))
		}
	}
	if database != nil {
		errs = append(errs, db.Close(database))
		database = nil
	}
	services = nil
	return errors.Join(errs...)
}
