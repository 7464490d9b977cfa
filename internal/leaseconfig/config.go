// Package leaseconfig loads leasecrawlerd's configuration: logging,
// LeaseDB backend selection, storage backend selection, expiration policy,
// and crawler scheduling. Values come from the config file, and
// LEASECRAWLERD_* environment variables override keys the file sets. When no
// config file is found, Load returns the defaults and reads no environment
// variables. No CLI flags are bound.
package leaseconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/sharelease/pkg/expiration"
	"github.com/marmos91/sharelease/pkg/leasedb"
)

// Config is leasecrawlerd's static configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	LeaseDB    leasedb.Config   `mapstructure:"leasedb" yaml:"leasedb"`
	Backend    BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Expiration ExpirationConfig `mapstructure:"expiration" yaml:"expiration"`
	Crawler    CrawlerConfig    `mapstructure:"crawler" yaml:"crawler"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// BackendConfig selects the share storage backend the crawler enumerates.
type BackendConfig struct {
	// Type is "disk" or "s3".
	Type string       `mapstructure:"type" yaml:"type"`
	Disk DiskConfig   `mapstructure:"disk" yaml:"disk"`
	S3   S3ConfigYAML `mapstructure:"s3" yaml:"s3"`
}

// DiskConfig configures the local-disk backend.
type DiskConfig struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// S3ConfigYAML configures the S3 backend.
type S3ConfigYAML struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Region string `mapstructure:"region" yaml:"region"`
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// ExpirationConfig configures the expiration.Policy the crawler enforces.
type ExpirationConfig struct {
	Enabled               bool   `mapstructure:"enabled" yaml:"enabled"`
	Mode                  string `mapstructure:"mode" yaml:"mode"`
	OverrideLeaseDuration *int64 `mapstructure:"override_lease_duration" yaml:"override_lease_duration,omitempty"`
	CutoffDate            *int64 `mapstructure:"cutoff_date" yaml:"cutoff_date,omitempty"`
}

// Policy constructs the expiration.Policy this configuration describes.
func (c ExpirationConfig) Policy() (*expiration.Policy, error) {
	mode := expiration.Mode(c.Mode)
	if mode == "" {
		mode = expiration.ModeAge
	}
	return expiration.New(c.Enabled, mode, c.OverrideLeaseDuration, c.CutoffDate)
}

// CrawlerConfig configures the base sharecrawler schedule.
type CrawlerConfig struct {
	StatefilePath    string        `mapstructure:"statefile_path" yaml:"statefile_path"`
	MinimumCycleTime int64         `mapstructure:"minimum_cycle_time" yaml:"minimum_cycle_time"`
	SlowStart        int64         `mapstructure:"slow_start" yaml:"slow_start"`
	SlicePause       time.Duration `mapstructure:"slice_pause" yaml:"slice_pause"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// Load reads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("leaseconfig: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("leaseconfig: validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes cfg as YAML to path.
func SaveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("leaseconfig: create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("leaseconfig: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("leaseconfig: write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("LEASECRAWLERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("leaseconfig: read config file: %w", err)
	}
	return true, nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "leasecrawlerd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "leasecrawlerd")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// ApplyDefaults fills in missing configuration values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	cfg.LeaseDB.ApplyDefaults()

	if cfg.Backend.Type == "" {
		cfg.Backend.Type = "disk"
	}
	if cfg.Backend.Type == "disk" && cfg.Backend.Disk.BaseDir == "" {
		cfg.Backend.Disk.BaseDir = "/var/lib/leasecrawlerd/shares"
	}

	if cfg.Expiration.Mode == "" {
		cfg.Expiration.Mode = string(expiration.ModeAge)
	}

	if cfg.Crawler.StatefilePath == "" {
		cfg.Crawler.StatefilePath = "/var/lib/leasecrawlerd/crawler-state.json"
	}
	if cfg.Crawler.MinimumCycleTime == 0 {
		cfg.Crawler.MinimumCycleTime = 12 * 60 * 60
	}
	if cfg.Crawler.SlowStart == 0 {
		cfg.Crawler.SlowStart = 300
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// Validate checks the configuration is internally consistent.
func Validate(cfg *Config) error {
	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("leaseconfig: invalid logging level %q", cfg.Logging.Level)
	}

	if err := cfg.LeaseDB.Validate(); err != nil {
		return err
	}

	switch cfg.Backend.Type {
	case "disk":
		if cfg.Backend.Disk.BaseDir == "" {
			return fmt.Errorf("leaseconfig: backend.disk.base_dir is required")
		}
	case "s3":
		if cfg.Backend.S3.Bucket == "" {
			return fmt.Errorf("leaseconfig: backend.s3.bucket is required")
		}
		if cfg.Backend.S3.Region == "" {
			return fmt.Errorf("leaseconfig: backend.s3.region is required")
		}
	default:
		return fmt.Errorf("leaseconfig: unsupported backend type %q", cfg.Backend.Type)
	}

	if _, err := cfg.Expiration.Policy(); err != nil {
		return err
	}

	if cfg.Crawler.MinimumCycleTime <= 0 {
		return fmt.Errorf("leaseconfig: crawler.minimum_cycle_time must be positive")
	}

	return nil
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
