// Package config resolves torpedo's configuration from defaults, the
// optional config.yaml in the data directory, TORPEDO_* environment
// variables and CLI flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix      = "TORPEDO_"
	ConfigFileName = "config.yaml"
	KeyFileName    = "encryption.key"
	DatabaseName   = "torpedo.db"
)

// Token backends.
const (
	TokenBackendDatabase = "database"
	TokenBackendKeyring  = "keyring"
)

// EnvProvider abstracts environment variable access for testing
type EnvProvider interface {
	Getenv(key string) string
	UserHomeDir() (string, error)
}

// DefaultEnvProvider implements EnvProvider using real OS functions
type DefaultEnvProvider struct{}

func (p *DefaultEnvProvider) Getenv(key string) string {
	return os.Getenv(key)
}

func (p *DefaultEnvProvider) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// GetDefaultDataDir returns the default data directory following the XDG Base Directory specification
func GetDefaultDataDir() string {
	return getDefaultDataDirWithEnv(&DefaultEnvProvider{})
}

func getDefaultDataDirWithEnv(env EnvProvider) string {
	if xdgDataHome := env.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, "torpedo")
	}
	homeDir, _ := env.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "torpedo")
}

// OAuthClient holds the application credentials registered with an OAuth provider.
type OAuthClient struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

func (c OAuthClient) IsSet() bool {
	return c.ClientID != ""
}

// Config holds configuration for all subsystems
type Config struct {
	// Core paths
	DataDir      string
	DatabasePath string
	KeyFilePath  string

	// Logging
	LogLevel     string
	LogFormat    string
	ColorEnabled bool

	// HTTP API server
	HTTPHost string
	HTTPPort int

	// OAuth callback listener
	CallbackHost string
	CallbackPort int

	// Connection flows
	PollInterval  time.Duration
	MaxPollCycles int

	// Deployments
	DeployPollInterval time.Duration
	DeployTimeout      time.Duration

	// Outbound HTTP
	HTTPTimeout time.Duration

	// Secrets
	EncryptionKey string
	TokenBackend  string
	StateSecret   string

	OAuthClients map[string]OAuthClient

	env EnvProvider
}

// fileConfig mirrors config.yaml.
type fileConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Color     *bool  `yaml:"color"`
	HTTP      struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"http"`
	Callback struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"callback"`
	Connections struct {
		PollInterval  string `yaml:"poll_interval"`
		MaxPollCycles int    `yaml:"max_poll_cycles"`
	} `yaml:"connections"`
	Deployments struct {
		PollInterval string `yaml:"poll_interval"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"deployments"`
	HTTPTimeout string `yaml:"http_timeout"`
	Credentials struct {
		Backend string `yaml:"backend"`
	} `yaml:"credentials"`
	EncryptionKey string                 `yaml:"encryption_key"`
	StateSecret   string                 `yaml:"state_secret"`
	Providers     map[string]OAuthClient `yaml:"providers"`
}

// NewConfigForCLI creates a new configuration for CLI usage with optional data directory override
func NewConfigForCLI(cliDataDir string) (*Config, error) {
	return newConfigWithEnv(&DefaultEnvProvider{}, cliDataDir)
}

// NewConfigForCLIWithEnv creates a new configuration with custom environment provider (for testing)
func NewConfigForCLIWithEnv(env EnvProvider, cliDataDir string) (*Config, error) {
	return newConfigWithEnv(env, cliDataDir)
}

func newConfigWithEnv(env EnvProvider, cliDataDir string) (*Config, error) {
	c := &Config{env: env, OAuthClients: map[string]OAuthClient{}}

	c.setDefaults()

	// The data directory must be settled before config.yaml can be located.
	if v := env.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if cliDataDir != "" {
		c.DataDir = cliDataDir
	}

	if err := c.loadFromFile(filepath.Join(c.DataDir, ConfigFileName)); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.loadFromEnv()

	if cliDataDir != "" {
		c.DataDir = cliDataDir
	}

	c.derivePaths()

	if err := c.ensureEncryptionKey(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if c.StateSecret == "" {
		c.StateSecret = c.EncryptionKey
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

func (c *Config) setDefaults() {
	c.DataDir = getDefaultDataDirWithEnv(c.env)
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.ColorEnabled = true
	c.HTTPHost = "127.0.0.1"
	c.HTTPPort = 8080
	c.CallbackHost = "127.0.0.1"
	c.CallbackPort = 8765
	c.PollInterval = time.Second
	c.MaxPollCycles = 300
	c.DeployPollInterval = 2 * time.Second
	c.DeployTimeout = 10 * time.Minute
	c.HTTPTimeout = 30 * time.Second
	c.TokenBackend = TokenBackendDatabase
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if fc.Color != nil {
		c.ColorEnabled = *fc.Color
	}
	setString(&c.HTTPHost, fc.HTTP.Host)
	setInt(&c.HTTPPort, fc.HTTP.Port)
	setString(&c.CallbackHost, fc.Callback.Host)
	setInt(&c.CallbackPort, fc.Callback.Port)
	setInt(&c.MaxPollCycles, fc.Connections.MaxPollCycles)
	setString(&c.TokenBackend, fc.Credentials.Backend)
	setString(&c.EncryptionKey, fc.EncryptionKey)
	setString(&c.StateSecret, fc.StateSecret)

	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"connections.poll_interval", fc.Connections.PollInterval, &c.PollInterval},
		{"deployments.poll_interval", fc.Deployments.PollInterval, &c.DeployPollInterval},
		{"deployments.timeout", fc.Deployments.Timeout, &c.DeployTimeout},
		{"http_timeout", fc.HTTPTimeout, &c.HTTPTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", d.field, d.value)
		}
		*d.dst = parsed
	}

	for id, client := range fc.Providers {
		c.OAuthClients[id] = client
	}
	return nil
}

func (c *Config) loadFromEnv() {
	if v := c.getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := c.getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := c.getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := c.getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := c.getenv("COLOR_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.ColorEnabled = enabled
		}
	}
	if v := c.getenv("HTTP_HOST"); v != "" {
		c.HTTPHost = v
	}
	if v := c.getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}
	if v := c.getenv("CALLBACK_HOST"); v != "" {
		c.CallbackHost = v
	}
	if v := c.getenv("CALLBACK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.CallbackPort = port
		}
	}
	if v := c.getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollInterval = d
		}
	}
	if v := c.getenv("MAX_POLL_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxPollCycles = n
		}
	}
	if v := c.getenv("DEPLOY_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DeployPollInterval = d
		}
	}
	if v := c.getenv("DEPLOY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DeployTimeout = d
		}
	}
	if v := c.getenv("HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTPTimeout = d
		}
	}
	if v := c.getenv("ENCRYPTION_KEY"); v != "" {
		c.EncryptionKey = v
	}
	if v := c.getenv("TOKEN_BACKEND"); v != "" {
		c.TokenBackend = v
	}
	if v := c.getenv("STATE_SECRET"); v != "" {
		c.StateSecret = v
	}
}

func (c *Config) getenv(name string) string {
	return c.env.Getenv(EnvPrefix + name)
}

func (c *Config) derivePaths() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, DatabaseName)
	}
	c.KeyFilePath = filepath.Join(c.DataDir, KeyFileName)
}

// ensureEncryptionKey reads the key file when no key was configured, and
// creates it on first run.
func (c *Config) ensureEncryptionKey() error {
	if c.EncryptionKey != "" {
		return nil
	}

	data, err := os.ReadFile(c.KeyFilePath)
	if err == nil {
		c.EncryptionKey = strings.TrimSpace(string(data))
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read encryption key file: %w", err)
	}

	var key fernet.Key
	if err := key.Generate(); err != nil {
		return fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(c.KeyFilePath, []byte(key.Encode()+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write encryption key file: %w", err)
	}
	c.EncryptionKey = key.Encode()
	return nil
}

func (c *Config) validate() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warning": true, "error": true, "silent": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warning, error, or silent)", c.LogLevel)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d (must be 1-65535)", c.HTTPPort)
	}

	if c.CallbackPort < 1 || c.CallbackPort > 65535 {
		return fmt.Errorf("invalid callback port: %d (must be 1-65535)", c.CallbackPort)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %v", c.PollInterval)
	}

	if c.MaxPollCycles <= 0 {
		return fmt.Errorf("max poll cycles must be positive, got: %d", c.MaxPollCycles)
	}

	if c.DeployPollInterval <= 0 {
		return fmt.Errorf("deploy poll interval must be positive, got: %v", c.DeployPollInterval)
	}

	if c.DeployTimeout <= 0 {
		return fmt.Errorf("deploy timeout must be positive, got: %v", c.DeployTimeout)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got: %v", c.HTTPTimeout)
	}

	if c.TokenBackend != TokenBackendDatabase && c.TokenBackend != TokenBackendKeyring {
		return fmt.Errorf("invalid token backend: %s (must be %s or %s)",
			c.TokenBackend, TokenBackendDatabase, TokenBackendKeyring)
	}

	if _, err := fernet.DecodeKey(c.EncryptionKey); err != nil {
		return fmt.Errorf("invalid encryption key: %w", err)
	}

	return nil
}

// OAuthClient returns the application credentials for providerID.
// TORPEDO_<ID>_CLIENT_ID and TORPEDO_<ID>_CLIENT_SECRET override config.yaml.
func (c *Config) OAuthClient(providerID string) OAuthClient {
	client := c.OAuthClients[providerID]
	prefix := strings.ToUpper(strings.ReplaceAll(providerID, "-", "_")) + "_"
	if c.env != nil {
		if v := c.getenv(prefix + "CLIENT_ID"); v != "" {
			client.ClientID = v
		}
		if v := c.getenv(prefix + "CLIENT_SECRET"); v != "" {
			client.ClientSecret = v
		}
	}
	return client
}

// APIBaseURL returns TORPEDO_<ID>_API_URL when set, otherwise def.
func (c *Config) APIBaseURL(providerID, def string) string {
	if c.env == nil {
		return def
	}
	if v := c.getenv(strings.ToUpper(strings.ReplaceAll(providerID, "-", "_")) + "_API_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return def
}

// CallbackURL is the OAuth redirect URI registered with providers.
func (c *Config) CallbackURL() string {
	return fmt.Sprintf("http://%s:%d/oauth/callback", c.CallbackHost, c.CallbackPort)
}

func (c *Config) CallbackAddr() string {
	return fmt.Sprintf("%s:%d", c.CallbackHost, c.CallbackPort)
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
