package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all harness configuration.
type Config struct {
	Tool     ToolConfig     `yaml:"tool"`
	Harness  HarnessConfig  `yaml:"harness"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ToolConfig describes how the external import tool is launched.
type ToolConfig struct {
	Path       string            `yaml:"path"`
	Subcommand string            `yaml:"subcommand"`
	Timeout    time.Duration     `yaml:"timeout"`
	LogDirEnv  string            `yaml:"log_dir_env"`
	License    string            `yaml:"license"` // forwarded as REPO_LICENSE when set
	Env        map[string]string `yaml:"env"`
}

type HarnessConfig struct {
	Workers     int               `yaml:"workers"`
	LogRoot     string            `yaml:"log_root"` // empty means log_<timestamp> in the working directory
	PassCodes   []int             `yaml:"pass_codes"`
	Excludes    []string          `yaml:"excludes"` // doublestar patterns relative to the corpus root
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
}

type FingerprintConfig struct {
	BlockSize int `yaml:"block_size"`
	MaxBlocks int `yaml:"max_blocks"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	BufferSize      int           `yaml:"buffer_size"`
}

// MetricsConfig controls the Prometheus textfile export written at the end of a batch.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or env
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the historical defaults of the import-test harness.
func DefaultConfig() *Config {
	return &Config{
		Tool: ToolConfig{
			Path:       "3drepobouncerTool",
			Subcommand: "testImport",
			Timeout:    360 * time.Second,
			LogDirEnv:  "REPO_LOG_DIR",
		},
		Harness: HarnessConfig{
			Workers:   1,
			PassCodes: []int{0, 7, 10},
			Fingerprint: FingerprintConfig{
				BlockSize: 1 << 20,
				MaxBlocks: 10,
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BufferSize:      1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Tool.Path == "" {
		return fmt.Errorf("tool.path is required")
	}
	if c.Tool.Subcommand == "" {
		return fmt.Errorf("tool.subcommand is required")
	}
	if c.Tool.Timeout <= 0 {
		return fmt.Errorf("tool.timeout must be > 0, got %s", c.Tool.Timeout)
	}
	if c.Tool.LogDirEnv == "" {
		return fmt.Errorf("tool.log_dir_env is required")
	}
	for key := range c.Tool.Env {
		if key == "" || strings.ContainsAny(key, "= ") {
			return fmt.Errorf("tool.env: invalid variable name %q", key)
		}
		if key == c.Tool.LogDirEnv {
			return fmt.Errorf("tool.env: %q is set per invocation and cannot be overridden", key)
		}
	}
	if c.Harness.Workers < 1 {
		return fmt.Errorf("harness.workers must be >= 1")
	}
	if len(c.Harness.PassCodes) == 0 {
		return fmt.Errorf("harness.pass_codes must not be empty")
	}
	if c.Harness.Fingerprint.BlockSize < 1 {
		return fmt.Errorf("harness.fingerprint.block_size must be >= 1")
	}
	if c.Harness.Fingerprint.MaxBlocks < 1 {
		return fmt.Errorf("harness.fingerprint.max_blocks must be >= 1")
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics.textfile is required when metrics are enabled")
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, audit connections to Postgres are unencrypted")
	}
	return nil
}
