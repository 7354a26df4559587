// Package domain provides the core types shared by every torpedo subsystem:
// providers, connections, deployment requests and attempts, and history.
package domain

import "fmt"

// AuthMethod is how a provider grants torpedo access.
type AuthMethod string

const (
	AuthMethodOAuth  AuthMethod = "oauth"
	AuthMethodAPIKey AuthMethod = "api_key"
)

func (m AuthMethod) String() string {
	return string(m)
}

func (m AuthMethod) IsValid() bool {
	switch m {
	case AuthMethodOAuth, AuthMethodAPIKey:
		return true
	default:
		return false
	}
}

func ParseAuthMethod(s string) (AuthMethod, error) {
	m := AuthMethod(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid auth method: %q", s)
	}
	return m, nil
}

// ProviderKind groups providers by what they do for a website.
type ProviderKind string

const (
	ProviderKindSource  ProviderKind = "source"
	ProviderKindHosting ProviderKind = "hosting"
	ProviderKindDomain  ProviderKind = "domain"
	ProviderKindCI      ProviderKind = "ci"
)

func (k ProviderKind) String() string {
	return string(k)
}

func (k ProviderKind) IsValid() bool {
	switch k {
	case ProviderKindSource, ProviderKindHosting, ProviderKindDomain, ProviderKindCI:
		return true
	default:
		return false
	}
}

func ParseProviderKind(s string) (ProviderKind, error) {
	k := ProviderKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid provider kind: %q", s)
	}
	return k, nil
}

// OAuthEndpoints describes an authorization-code flow.
type OAuthEndpoints struct {
	AuthURL    string
	TokenURL   string
	UserURL    string
	LabelField string // dotted path into the UserURL response, e.g. "login"
	Scopes     []string
}

// APIKeyEndpoint describes how a pasted key is verified.
type APIKeyEndpoint struct {
	VerifyURL  string
	Header     string // defaults to Authorization
	Scheme     string // defaults to Bearer; empty Header value sends the raw key
	LabelField string
}

// Provider is a static catalog entry.
type Provider struct {
	ID          string
	Name        string
	Description string
	Kind        ProviderKind
	AuthMethod  AuthMethod
	DocsURL     string
	KeyHint     string
	OAuth       *OAuthEndpoints
	APIKey      *APIKeyEndpoint
}

func (p Provider) CanHost() bool {
	return p.Kind == ProviderKindHosting
}
