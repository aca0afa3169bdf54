package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// RegistryConfig holds settings for the registry oracle and its HTTP fallback.
type RegistryConfig struct {
	// URL overrides the registry. Empty means npm's own configuration for the
	// CLI and the public registry for HTTP.
	URL              string        `mapstructure:"url"`
	CLI              string        `mapstructure:"cli"`
	CLITimeout       time.Duration `mapstructure:"cli_timeout"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	UserAgent        string        `mapstructure:"user_agent"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
}

type WorkspaceConfig struct {
	Root     string   `mapstructure:"root"`
	Patterns []string `mapstructure:"patterns"`
}

type OraclesConfig struct {
	BuildDirs        []string `mapstructure:"build_dirs"`
	WarningThreshold float64  `mapstructure:"warning_threshold"`
}

type LogConfig struct {
	Format string `mapstructure:"format"`
}

// Config holds all runtime configuration for pubcheck.
// Values are populated from .pubcheck.yaml, PUBCHECK_* env vars, and CLI flags.
type Config struct {
	Registry  RegistryConfig  `mapstructure:"registry"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Oracles   OraclesConfig   `mapstructure:"oracles"`
	Verbose   bool            `mapstructure:"verbose"`
	Log       LogConfig       `mapstructure:"log"`
}

// SetDefaults registers the built-in defaults with viper.
func SetDefaults() {
	viper.SetDefault("registry.url", "")
	viper.SetDefault("registry.cli", "npm")
	viper.SetDefault("registry.cli_timeout", 10*time.Second)
	viper.SetDefault("registry.http_timeout", 10*time.Second)
	viper.SetDefault("registry.cache_ttl", 5*time.Minute)
	viper.SetDefault("registry.user_agent", "pubcheck")
	viper.SetDefault("registry.breaker_threshold", 5)
	viper.SetDefault("workspace.root", ".")
	viper.SetDefault("workspace.patterns", []string{"packages/*"})
	viper.SetDefault("oracles.build_dirs", []string{"dist"})
	viper.SetDefault("oracles.warning_threshold", 0.7)
	viper.SetDefault("verbose", false)
	viper.SetDefault("log.format", "console")
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	SetDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting, joined into one error.
func (c Config) Validate() error {
	var errs []error
	if c.Registry.URL != "" {
		u, err := url.Parse(c.Registry.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("registry.url %q must be an http(s) URL", c.Registry.URL))
		}
	}
	if c.Registry.CLI == "" {
		errs = append(errs, errors.New("registry.cli must not be empty"))
	}
	if c.Registry.CLITimeout <= 0 {
		errs = append(errs, fmt.Errorf("registry.cli_timeout must be positive, got %s", c.Registry.CLITimeout))
	}
	if c.Registry.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("registry.http_timeout must be positive, got %s", c.Registry.HTTPTimeout))
	}
	if c.Registry.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("registry.cache_ttl must be positive, got %s", c.Registry.CacheTTL))
	}
	if c.Registry.BreakerThreshold < 1 {
		errs = append(errs, fmt.Errorf("registry.breaker_threshold must be at least 1, got %d", c.Registry.BreakerThreshold))
	}
	if t := c.Oracles.WarningThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("oracles.warning_threshold must be in (0, 1], got %v", t))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
