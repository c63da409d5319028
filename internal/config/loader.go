package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("logging: invalid level %q (must be debug, info, warn, or error)", cfg.Logging.Level)
	}
	if cfg.Logging.Rotation.MaxSize < 0 {
		return fmt.Errorf("logging: rotation max_size must be >= 0")
	}

	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis: db must be >= 0")
	}
	if cfg.Redis.DialTimeout < 0 {
		return fmt.Errorf("redis: dial_timeout must be >= 0")
	}

	for name, c := range cfg.Caches {
		if name == "" {
			return fmt.Errorf("caches: name must not be empty")
		}
		if c.DefaultTTL < 0 {
			return fmt.Errorf("cache %s: default_ttl must be >= 0", name)
		}
		if c.MaxEntries < 0 {
			return fmt.Errorf("cache %s: max_entries must be >= 0", name)
		}
		if c.MaxValueSize < 0 {
			return fmt.Errorf("cache %s: max_value_size must be >= 0", name)
		}
		if c.SweepInterval < 0 {
			return fmt.Errorf("cache %s: sweep_interval must be >= 0", name)
		}
	}

	for name, b := range cfg.Breakers {
		if name == "" {
			return fmt.Errorf("circuit_breakers: name must not be empty")
		}
		if b.FailureThreshold < 0 {
			return fmt.Errorf("circuit breaker %s: failure_threshold must be >= 1", name)
		}
		if b.RecoveryTimeout < 0 {
			return fmt.Errorf("circuit breaker %s: recovery_timeout must be >= 0", name)
		}
		if b.MonitoringWindow < 0 {
			return fmt.Errorf("circuit breaker %s: monitoring_window must be >= 0", name)
		}
	}

	return nil
}
