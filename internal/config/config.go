package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/scanner"
)

// EnvPrefix prefixes every environment override, e.g. WPSPECTRE_SCAN_RECENT_DAYS.
const EnvPrefix = "WPSPECTRE"

// Config holds all configuration for wpspectre
type Config struct {
	// WordPress document root (default: current directory)
	Root string `mapstructure:"root" yaml:"root"`

	// Storage configuration
	StorageDir string `mapstructure:"storage_dir" yaml:"storage_dir"`

	// Output format (text, json, markdown, both)
	Format string `mapstructure:"format" yaml:"format"`

	// Findings cap per scanner run
	MaxFindings int `mapstructure:"max_findings" yaml:"max_findings"`

	// Widen database option scans
	Deep bool `mapstructure:"deep" yaml:"deep"`

	// Exit 1 when a finding at or above this severity exists (empty disables)
	FailOn string `mapstructure:"fail_on" yaml:"fail_on"`

	// Scanners to run, in order (empty runs all)
	Scanners []string `mapstructure:"scanners" yaml:"scanners"`

	// Per-scanner timeout
	Timeout time.Duration `mapstructure:"timeout" yaml:"-"`

	// Files read per second, 0 for unlimited
	IORate float64 `mapstructure:"io_rate" yaml:"io_rate"`

	DB DBConfig `mapstructure:"db" yaml:"db"`

	// Scanner thresholds
	Scan scanner.Options `mapstructure:"scan" yaml:"scan"`

	// Prometheus textfile written after each scan
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"`

	// OTLP gRPC endpoint for traces (empty disables tracing)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`

	// Number of last runs to analyze
	LastRuns int `mapstructure:"last_runs" yaml:"last_runs"`

	// Stored reports to keep, 0 keeps all
	KeepRuns int `mapstructure:"keep_runs" yaml:"keep_runs"`

	// Verbose output
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// DBConfig selects the database to audit. Without a DSN the credentials
// from wp-config.php are used.
type DBConfig struct {
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Schema string `mapstructure:"schema" yaml:"schema"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Root:        ".",
		StorageDir:  ".wpspectre",
		Format:      "text",
		MaxFindings: collector.DefaultMax,
		Scanners:    append([]string{}, scanner.DefaultNames...),
		Timeout:     5 * time.Minute,
		Scan:        scanner.DefaultOptions(),
		LastRuns:    7,
	}
}

// LoadFromFile loads configuration with the following precedence (lowest to highest):
// 1. Default values
// 2. Config file (path, or ./wpspectre.yaml, ~/wpspectre.yaml, $XDG_CONFIG_HOME/wpspectre/wpspectre.yaml when empty)
// 3. Environment variables (WPSPECTRE_*)
// 4. CLI flags (handled by caller)
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()

	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}

	v.SetConfigName("wpspectre")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			v.AddConfigPath(filepath.Join(xdgConfig, "wpspectre"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every leaf of the default config as a dotted key
// so nested values such as scan.recent_days can be overridden from the
// environment.
func setDefaults(v *viper.Viper, defaults *Config) error {
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	flatten("", tree, func(key string, value any) { v.SetDefault(key, value) })
	v.SetDefault("timeout", defaults.Timeout)
	return nil
}

func flatten(prefix string, tree map[string]any, set func(string, any)) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}

var validFormats = map[string]bool{
	"text":     true,
	"json":     true,
	"markdown": true,
	"both":     true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid format: %s (must be text, json, markdown, or both)", c.Format)
	}
	if c.FailOn != "" {
		if _, err := models.ParseSeverity(c.FailOn); err != nil {
			return fmt.Errorf("invalid fail_on: %w", err)
		}
	}
	if c.MaxFindings <= 0 {
		return fmt.Errorf("max_findings must be positive")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.IORate < 0 {
		return fmt.Errorf("io_rate cannot be negative")
	}
	if c.LastRuns <= 0 {
		return fmt.Errorf("last_runs must be positive")
	}
	if c.KeepRuns < 0 {
		return fmt.Errorf("keep_runs cannot be negative")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir cannot be empty")
	}

	known := scanner.NewRegistry().Names()
	for _, name := range c.Scanners {
		n := strings.ToLower(strings.TrimSpace(name))
		if i := sort.SearchStrings(known, n); i == len(known) || known[i] != n {
			return fmt.Errorf("unknown scanner %q (available: %s)", name, strings.Join(known, ", "))
		}
	}
	return nil
}

// ScanOptions returns the scanner thresholds with the top-level deep flag applied.
func (c *Config) ScanOptions() scanner.Options {
	opts := c.Scan
	if c.Deep {
		opts.Deep = true
	}
	return opts
}

// FailSeverity returns the parsed fail_on level.
func (c *Config) FailSeverity() (models.Severity, bool) {
	if c.FailOn == "" {
		return "", false
	}
	s, err := models.ParseSeverity(c.FailOn)
	if err != nil {
		return "", false
	}
	return s, true
}

// GetStoragePath returns the absolute path to the storage directory
func (c *Config) GetStoragePath() (string, error) {
	return ExpandPath(c.StorageDir)
}

// ExpandPath resolves ~/ and makes p absolute.
func ExpandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, p[2:]), nil
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

const sampleHeader = `# wpspectre configuration
# Save this file as ./wpspectre.yaml, ~/wpspectre.yaml or
# $XDG_CONFIG_HOME/wpspectre/wpspectre.yaml.
# Every key can be overridden with WPSPECTRE_<KEY>, nested keys joined
# by underscores (WPSPECTRE_SCAN_RECENT_DAYS=30, WPSPECTRE_DB_DSN=...).
#
# format: text, json, markdown, or both
# fail_on: INFO, ALERTE, or CRITIQUE (empty disables)
# scanners: any of config, uploads, headers, files, db
# db.dsn: MySQL DSN; empty uses the credentials in wp-config.php
# io_rate: files read per second, 0 for unlimited
# sizes under scan are in bytes

`

// GenerateSampleConfig generates a sample configuration file content
func GenerateSampleConfig() (string, error) {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode sample config: %w", err)
	}
	return sampleHeader + "timeout: " + cfg.Timeout.String() + "\n" + string(data), nil
}
