// ABOUTME: Configuration loading for the mahakaal client and reference backend
// ABOUTME: Reads YAML or TOML with ${VAR} expansion, optional .env, and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultRequestTimeout = 30 * time.Second
	DefaultDedupeTTL      = 10 * time.Minute
	DefaultBackendAddr    = "localhost:8000"
	DefaultMetricsPath    = "/metrics"
)

// Config is the complete client configuration.
type Config struct {
	Backend     BackendConfig     `yaml:"backend" toml:"backend"`
	Client      ClientConfig      `yaml:"client" toml:"client"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" toml:"metrics"`
	FakeBackend FakeBackendConfig `yaml:"fake_backend" toml:"fake_backend"`
}

// BackendConfig locates the agent/session service.
type BackendConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Token   string `yaml:"token" toml:"token"`

	// Timeout for non-streaming requests; the chat stream is bounded only by its context
	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// ClientConfig controls the session controller.
type ClientConfig struct {
	// Persist enables fire-and-forget POST chat/messages for each new turn
	Persist bool `yaml:"persist" toml:"persist"`
	// SessionTitle is used when a session is created implicitly on first send
	SessionTitle string `yaml:"session_title" toml:"session_title"`

	DedupeTTL    time.Duration `yaml:"-" toml:"-"`
	DedupeTTLRaw string        `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// FakeBackendConfig configures cmd/mahakaal-backend.
type FakeBackendConfig struct {
	Addr         string `yaml:"addr" toml:"addr"`
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	// JWTSecret, when set, makes auth/status verify the bearer token
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	// WordsPerSecond paces streamed answers; 0 streams without delay
	WordsPerSecond float64 `yaml:"words_per_second" toml:"words_per_second"`
}

// Default returns a configuration usable without any file.
func Default() *Config {
	cfg := &Config{
		Backend: BackendConfig{BaseURL: DefaultBaseURL},
		Client:  ClientConfig{Persist: true},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Path: DefaultMetricsPath},
		FakeBackend: FakeBackendConfig{
			Addr: DefaultBackendAddr,
		},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration at path. The format is chosen by extension:
// .toml is TOML, anything else is YAML. A .env file next to the config is
// loaded into the environment first (existing variables win), then ${VAR}
// references are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envPath, err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Path returns the config file location.
// Priority: MAHAKAAL_CONFIG > $XDG_CONFIG_HOME/mahakaal/client.yaml > ~/.config/mahakaal/client.yaml
func Path() string {
	if envPath := os.Getenv("MAHAKAAL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "client.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mahakaal", "client.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the environment value, or "" if unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute URL, got %q", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url scheme must be http or https, got %q", u.Scheme)
	}

	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("backend.request_timeout must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if c.FakeBackend.WordsPerSecond < 0 {
		return fmt.Errorf("fake_backend.words_per_second must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.RequestTimeoutRaw != "" {
		cfg.Backend.RequestTimeout, err = time.ParseDuration(cfg.Backend.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Backend.RequestTimeoutRaw, err)
		}
	}

	if cfg.Client.DedupeTTLRaw != "" {
		cfg.Client.DedupeTTL, err = time.ParseDuration(cfg.Client.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Client.DedupeTTLRaw, err)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.RequestTimeout == 0 {
		cfg.Backend.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Client.DedupeTTL == 0 {
		cfg.Client.DedupeTTL = DefaultDedupeTTL
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.FakeBackend.Addr == "" {
		cfg.FakeBackend.Addr = DefaultBackendAddr
	}
}
