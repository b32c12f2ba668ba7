package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/git-pkgs/upmbridge/internal/framework"
)

const (
	DefaultRegistryURL     = "https://api.nuget.org/v3"
	DefaultUserAgent       = "upmbridge"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 5
	DefaultBreakerTrips    = 5
	DefaultTargetFramework = "netstandard2.0"
	DefaultTagPrefix       = "v"
	DefaultOutput          = "packages"
)

// Config is the top-level configuration for upmbridge.
type Config struct {
	Registry        RegistryConfig  `yaml:"registry"`
	TargetFramework string          `yaml:"target_framework"`
	TagPrefix       *string         `yaml:"tag_prefix"`
	Repository      string          `yaml:"repository"`
	Packages        []PackageConfig `yaml:"packages"`
	Output          string          `yaml:"output"`
}

// RegistryConfig describes the NuGet v3 feed packages are resolved from.
type RegistryConfig struct {
	URL        string        `yaml:"url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"`
	// BreakerTrips is the number of consecutive download failures after
	// which a host is no longer contacted for the rest of the run.
	BreakerTrips int `yaml:"breaker_trips"`
}

// PackageConfig names one root package. ID is a plain package id or a
// pkg:nuget PURL.
type PackageConfig struct {
	ID string `yaml:"id"`
}

// envVarPattern matches ${VAR_NAME} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// Load reads and parses a configuration file, expanding environment variables
// and filling in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	cfg.Registry.URL = expandEnv(cfg.Registry.URL)
	cfg.Repository = expandEnv(cfg.Repository)
	cfg.Output = expandEnv(cfg.Output)
	for i := range cfg.Packages {
		cfg.Packages[i].ID = strings.TrimSpace(expandEnv(cfg.Packages[i].ID))
	}
	cfg.applyDefaults()

	if validateErr := validate(&cfg); validateErr != nil {
		return nil, validateErr
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no packages.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Registry.URL == "" {
		c.Registry.URL = DefaultRegistryURL
	}
	if c.Registry.UserAgent == "" {
		c.Registry.UserAgent = DefaultUserAgent
	}
	if c.Registry.Timeout == 0 {
		c.Registry.Timeout = DefaultTimeout
	}
	if c.Registry.MaxRetries == nil {
		n := DefaultMaxRetries
		c.Registry.MaxRetries = &n
	}
	if c.Registry.BreakerTrips == 0 {
		c.Registry.BreakerTrips = DefaultBreakerTrips
	}
	if c.TargetFramework == "" {
		c.TargetFramework = DefaultTargetFramework
	}
	if c.TagPrefix == nil {
		p := DefaultTagPrefix
		c.TagPrefix = &p
	}
	if c.Repository == "" {
		c.Repository = "."
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
}

// Framework returns the parsed target framework.
func (c *Config) Framework() (framework.Framework, error) {
	return framework.Parse(c.TargetFramework)
}

// Roots returns the configured package ids in file order.
func (c *Config) Roots() []string {
	roots := make([]string, 0, len(c.Packages))
	for _, p := range c.Packages {
		roots = append(roots, p.ID)
	}
	return roots
}

// Prefix returns the tag prefix, which may be configured as empty.
func (c *Config) Prefix() string {
	if c.TagPrefix == nil {
		return DefaultTagPrefix
	}
	return *c.TagPrefix
}

// FindConfigFile searches for a configuration file in standard locations.
// Returns the path to the first file found or an error if none is found.
func FindConfigFile() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}

	locations := []string{
		".",
		".config",
		"configs",
	}
	if homeDir != "" {
		locations = append(
			locations,
			homeDir,
			filepath.Join(homeDir, ".config"),
		)
	}

	patterns := []string{
		".upmbridge.yaml",
		".upmbridge.yml",
		"upmbridge.yaml",
		"upmbridge.yml",
	}

	for _, loc := range locations {
		for _, pat := range patterns {
			p := filepath.Join(loc, pat)
			if _, statErr := os.Stat(p); statErr == nil {
				return p, nil
			}
		}
	}

	return "", errors.New("config file not found in default locations")
}

// expandEnv replaces ${VAR} references with their environment values.
func expandEnv(raw string) string {
	if raw == "" {
		return raw
	}
	return envVarPattern.ReplaceAllStringFunc(raw, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		logger.Warnf("Environment variable %q is not set", varName)
		return ""
	})
}

// validate checks for required configuration values.
func validate(cfg *Config) error {
	if len(cfg.Packages) == 0 {
		return errors.New("at least one package must be configured")
	}

	seen := make(map[string]int, len(cfg.Packages))
	for i, p := range cfg.Packages {
		if p.ID == "" {
			return fmt.Errorf("packages[%d].id is required", i)
		}
		key := strings.ToLower(p.ID)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("packages[%d].id duplicates packages[%d].id (%s)", i, prev, p.ID)
		}
		seen[key] = i
	}

	if _, err := framework.Parse(cfg.TargetFramework); err != nil {
		return fmt.Errorf("target_framework: %w", err)
	}
	if !strings.HasPrefix(cfg.Registry.URL, "http://") && !strings.HasPrefix(cfg.Registry.URL, "https://") {
		return fmt.Errorf("registry.url must be an http(s) URL, got %q", cfg.Registry.URL)
	}
	if cfg.Registry.Timeout < 0 {
		return errors.New("registry.timeout must not be negative")
	}
	if *cfg.Registry.MaxRetries < 0 {
		return errors.New("registry.max_retries must not be negative")
	}
	if cfg.Registry.BreakerTrips < 0 {
		return errors.New("registry.breaker_trips must not be negative")
	}

	return nil
}
