// Package config loads and validates the resilience layer's YAML
// configuration: logging, the durable Redis backend, per-cache settings,
// and named circuit breaker configs. Files support ${ENV_VAR} expansion
// and hot reload.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Logging  LoggingConfig            `yaml:"logging"`
	Redis    RedisConfig              `yaml:"redis"`
	Caches   map[string]CacheConfig   `yaml:"caches"`
	Breakers map[string]BreakerConfig `yaml:"circuit_breakers"`
}

// LoggingConfig defines logger settings.
type LoggingConfig struct {
	Level    string            `yaml:"level"`  // debug, info, warn, error
	Output   string            `yaml:"output"` // empty = stdout, otherwise a file path
	Rotation LogRotationConfig `yaml:"rotation"`
}

// LogRotationConfig defines log file rotation settings (powered by lumberjack).
type LogRotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // max megabytes before rotation (default 100)
	MaxBackups int  `yaml:"max_backups"` // old rotated files to keep (default 3)
	MaxAge     int  `yaml:"max_age"`     // days to retain old files (default 28)
	Compress   bool `yaml:"compress"`    // gzip rotated files
}

// RedisConfig defines the durable storage connection.
type RedisConfig struct {
	Address     string        `yaml:"address"` // empty = no durable fallback
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// CacheConfig defines one named cache.
type CacheConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`    // 0 = 5m
	MaxEntries    int           `yaml:"max_entries"`    // 0 = unbounded
	MaxValueSize  int           `yaml:"max_value_size"` // serialized bytes; 0 = unbounded
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 = 1m
	KeyPrefix     string        `yaml:"key_prefix"`     // 0 = mintenance:cache:<name>:
}

// BreakerConfig defines one named circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"` // 0 = 5
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`  // 0 = 30s
	MonitoringWindow time.Duration `yaml:"monitoring_window"` // 0 = 60s
	ExpectedErrors   []string      `yaml:"expected_errors"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Caches:   make(map[string]CacheConfig),
		Breakers: make(map[string]BreakerConfig),
	}
}
