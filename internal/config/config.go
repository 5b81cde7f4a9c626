// Package config loads pokertour configuration from a YAML file, a .env file and
// POKERTOUR_* environment variables, in increasing order of precedence.
//
// Sources are listed in priority order: when two sources report the same
// tournament, the one listed first wins. API keys are never stored in the file;
// a source names the environment variable that holds its key.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/scraper"
	"github.com/pfrederiksen/pokertour/internal/storage"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

const (
	EnvPrefix = "POKERTOUR_"

	DefaultPath    = "~/.config/pokertour/config.yaml"
	DefaultDataDir = "~/.local/share/pokertour"
)

// Source kinds
const (
	KindREST    = "rest"
	KindHTML    = "html"
	KindBrowser = "browser"
)

// Cache backends
const (
	BackendNone   = "none"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the top-level configuration
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Cache      CacheConfig      `yaml:"cache"`
	Health     HealthConfig     `yaml:"health"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Sources    []SourceConfig   `yaml:"sources"`
}

// CacheConfig controls the result cache and its persistence
type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Backend string        `yaml:"backend"` // none | file | sqlite
	Path    string        `yaml:"path"`    // defaults under data_dir
}

// HealthConfig controls source availability probing
type HealthConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// AggregatorConfig controls aggregation rounds
type AggregatorConfig struct {
	// FetchTimeout bounds a fetch only for sources without their own timeout;
	// configured adapters derive their budget from timeout and max_retries
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// ServerConfig controls the HTTP facade
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// CircuitConfig is the circuit assigned to records that do not name one
type CircuitConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Organizer string `yaml:"organizer"`
	Category  string `yaml:"category"`
}

// SourceConfig describes one tournament source
type SourceConfig struct {
	Name       string        `yaml:"name"`
	Kind       string        `yaml:"kind"` // rest | html | browser
	URL        string        `yaml:"url"`
	HealthURL  string        `yaml:"health_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Timezone   string        `yaml:"timezone"`
	Disabled   bool          `yaml:"disabled"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
	Circuit    CircuitConfig `yaml:"circuit"`

	// rest
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxRetries int    `yaml:"max_retries"`

	// html and browser
	Selectors scraper.Selectors `yaml:"selectors"`

	// browser
	RemoteURL    string `yaml:"remote_url"`
	WaitSelector string `yaml:"wait_selector"`

	// APIKey is resolved from APIKeyEnv
	APIKey string `yaml:"-"`
}

// CircuitValue converts the configured circuit
func (s SourceConfig) CircuitValue() (tournament.Circuit, error) {
	category, err := tournament.ParseCategory(s.Circuit.Category)
	if err != nil {
		return tournament.Circuit{}, err
	}
	return tournament.Circuit{
		ID:        s.Circuit.ID,
		Name:      s.Circuit.Name,
		Organizer: s.Circuit.Organizer,
		Category:  category,
	}, nil
}

// Default returns a configuration with defaults applied and no sources
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadDotEnv loads a .env file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	expanded, err := storage.ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.resolveSecrets(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 30 * time.Minute
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendNone
	}
	if c.Health.Interval <= 0 {
		c.Health.Interval = 5 * time.Minute
	}
	if c.Health.ProbeTimeout <= 0 {
		c.Health.ProbeTimeout = 3 * time.Second
	}
	if c.Aggregator.FetchTimeout <= 0 {
		c.Aggregator.FetchTimeout = 20 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = string(logger.LevelInfo)
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.RateWindow <= 0 {
			s.RateWindow = time.Minute
		}
		if s.Kind == KindREST && s.MaxRetries == 0 {
			s.MaxRetries = 2
		}
	}
}

// applyEnv overrides file settings from POKERTOUR_* variables
func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"DATA_DIR":      &c.DataDir,
		"CACHE_BACKEND": &c.Cache.Backend,
		"CACHE_PATH":    &c.Cache.Path,
		"SERVER_ADDR":   &c.Server.Addr,
		"LOG_LEVEL":     &c.Log.Level,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(getenv(EnvPrefix + name)); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"CACHE_TTL":            &c.Cache.TTL,
		"HEALTH_INTERVAL":      &c.Health.Interval,
		"HEALTH_PROBE_TIMEOUT": &c.Health.ProbeTimeout,
		"FETCH_TIMEOUT":        &c.Aggregator.FetchTimeout,
	}
	for name, dst := range durations {
		v := strings.TrimSpace(getenv(EnvPrefix + name))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}
	return nil
}

func (c *Config) resolveSecrets(getenv func(string) string) error {
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.APIKeyEnv == "" || s.Disabled {
			continue
		}
		s.APIKey = getenv(s.APIKeyEnv)
		if s.APIKey == "" {
			return fmt.Errorf("source %s: environment variable %s is not set", s.Name, s.APIKeyEnv)
		}
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var problems []string

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Cache.Backend {
	case BackendNone, BackendFile, BackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q must be none, file or sqlite", c.Cache.Backend))
	}

	if len(c.EnabledSources()) == 0 {
		problems = append(problems, "at least one enabled source is required")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("sources[%d]", i)
			problems = append(problems, label+": name is required")
		} else if seen[s.Name] {
			problems = append(problems, fmt.Sprintf("duplicate source name %q", s.Name))
		}
		seen[s.Name] = true

		if strings.ContainsAny(s.Name, ": ") {
			problems = append(problems, fmt.Sprintf("%s: name must not contain ':' or spaces", label))
		}
		if s.URL == "" {
			problems = append(problems, label+": url is required")
		}
		switch s.Kind {
		case KindREST:
		case KindHTML, KindBrowser:
			if err := s.Selectors.Validate(); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", label, err))
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: kind %q must be rest, html or browser", label, s.Kind))
		}
		if _, err := s.CircuitValue(); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", label, err))
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				problems = append(problems, fmt.Sprintf("%s: unknown timezone %q", label, s.Timezone))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EnabledSources returns the sources that are not disabled, in priority order
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// CachePath returns the persistence path for the configured backend
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	switch c.Cache.Backend {
	case BackendSQLite:
		return filepath.Join(c.DataDir, "cache.db")
	case BackendFile:
		return filepath.Join(c.DataDir, "cache.json")
	}
	return ""
}
