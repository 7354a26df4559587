// Package catalog holds the static list of supported providers.
package catalog

import (
	_ "embed"
	"fmt"
	"net/url"

	"github.com/repotorpedo/torpedo/domain"
	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var builtin []byte

type fileCatalog struct {
	Providers []fileProvider `yaml:"providers"`
}

type fileProvider struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	AuthMethod  string `yaml:"auth_method"`
	Description string `yaml:"description"`
	DocsURL     string `yaml:"docs_url"`
	KeyHint     string `yaml:"key_hint"`
	OAuth       *struct {
		AuthURL    string   `yaml:"auth_url"`
		TokenURL   string   `yaml:"token_url"`
		UserURL    string   `yaml:"user_url"`
		LabelField string   `yaml:"label_field"`
		Scopes     []string `yaml:"scopes"`
	} `yaml:"oauth"`
	APIKey *struct {
		VerifyURL  string  `yaml:"verify_url"`
		Header     string  `yaml:"header"`
		Scheme     *string `yaml:"scheme"`
		LabelField string  `yaml:"label_field"`
	} `yaml:"api_key"`
}

// Catalog is an ordered, read-only set of providers.
type Catalog struct {
	providers []domain.Provider
	byID      map[string]int
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("built-in provider catalog is invalid: %v", err))
	}
	return c
}

// Parse reads a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]int, len(fc.Providers))}
	for i, fp := range fc.Providers {
		p, err := fp.toDomain()
		if err != nil {
			return nil, fmt.Errorf("provider %d (%s): %w", i+1, fp.ID, err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("provider %q is defined twice", p.ID)
		}
		c.byID[p.ID] = len(c.providers)
		c.providers = append(c.providers, p)
	}
	return c, nil
}

// New builds a catalog from already-constructed providers.
func New(providers ...domain.Provider) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(providers))}
	for _, p := range providers {
		c.byID[p.ID] = len(c.providers)
		c.providers = append(c.providers, p)
	}
	return c
}

func (c *Catalog) Get(id string) (domain.Provider, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Provider{}, false
	}
	return c.providers[i], true
}

// All returns providers in catalog order.
func (c *Catalog) All() []domain.Provider {
	return append([]domain.Provider(nil), c.providers...)
}

func (c *Catalog) ByKind(kind domain.ProviderKind) []domain.Provider {
	var out []domain.Provider
	for _, p := range c.providers {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func (fp fileProvider) toDomain() (domain.Provider, error) {
	if fp.ID == "" || fp.Name == "" {
		return domain.Provider{}, fmt.Errorf("id and name are required")
	}
	kind, err := domain.ParseProviderKind(fp.Kind)
	if err != nil {
		return domain.Provider{}, err
	}
	method, err := domain.ParseAuthMethod(fp.AuthMethod)
	if err != nil {
		return domain.Provider{}, err
	}

	p := domain.Provider{
		ID:          fp.ID,
		Name:        fp.Name,
		Description: fp.Description,
		Kind:        kind,
		AuthMethod:  method,
		DocsURL:     fp.DocsURL,
		KeyHint:     fp.KeyHint,
	}

	switch method {
	case domain.AuthMethodOAuth:
		if fp.OAuth == nil {
			return domain.Provider{}, fmt.Errorf("oauth section is required")
		}
		for _, u := range []string{fp.OAuth.AuthURL, fp.OAuth.TokenURL, fp.OAuth.UserURL} {
			if err := checkURL(u); err != nil {
				return domain.Provider{}, err
			}
		}
		p.OAuth = &domain.OAuthEndpoints{
			AuthURL:    fp.OAuth.AuthURL,
			TokenURL:   fp.OAuth.TokenURL,
			UserURL:    fp.OAuth.UserURL,
			LabelField: fp.OAuth.LabelField,
			Scopes:     fp.OAuth.Scopes,
		}
	case domain.AuthMethodAPIKey:
		if fp.APIKey == nil {
			return domain.Provider{}, fmt.Errorf("api_key section is required")
		}
		if err := checkURL(fp.APIKey.VerifyURL); err != nil {
			return domain.Provider{}, err
		}
		header, scheme := "Authorization", "Bearer"
		if fp.APIKey.Header != "" {
			header = fp.APIKey.Header
		}
		if fp.APIKey.Scheme != nil {
			scheme = *fp.APIKey.Scheme
		}
		p.APIKey = &domain.APIKeyEndpoint{
			VerifyURL:  fp.APIKey.VerifyURL,
			Header:     header,
			Scheme:     scheme,
			LabelField: fp.APIKey.LabelField,
		}
	}
	return p, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid endpoint URL %q", raw)
	}
	return nil
}
