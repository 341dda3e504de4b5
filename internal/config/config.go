// Package config resolves runtime settings from defaults, an optional YAML
// file, environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/lotas/hidenobids/internal/agent"
	"github.com/lotas/hidenobids/internal/coordinator"
	"github.com/lotas/hidenobids/internal/matcher"
	"github.com/lotas/hidenobids/internal/server"
)

// AppName names the XDG subdirectories.
const AppName = "hidenobids"

const DefaultCacheMaxAge = time.Hour

// Environment overrides.
const (
	EnvPort   = "HIDENOBIDS_PORT"
	EnvDB     = "HIDENOBIDS_DB"
	EnvLogDir = "HIDENOBIDS_LOG_DIR"
)

var (
	ErrInvalidPort     = errors.New("invalid port: must be 1-65535")
	ErrNoPatterns      = errors.New("allowed_patterns must not be empty")
	ErrNoSelectors     = errors.New("listing and bid_count selectors are required")
	ErrInvalidMaxAge   = errors.New("cache_max_age must be non-negative")
	ErrEmptyBadgeColor = errors.New("badge colors must not be empty")
)

// Config holds everything the commands need to wire the coordinator,
// relay and agent.
type Config struct {
	Port            int             `yaml:"port"`
	DB              string          `yaml:"db"`
	LogDir          string          `yaml:"log_dir"`
	DefaultEnabled  bool            `yaml:"default_enabled"`
	AllowedPatterns []string        `yaml:"allowed_patterns"`
	Selectors       agent.Selectors `yaml:"selectors"`
	BadgeBackground string          `yaml:"badge_background"`
	BadgeText       string          `yaml:"badge_text"`
	CacheDir        string          `yaml:"cache_dir"`
	CacheMaxAge     time.Duration   `yaml:"cache_max_age"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := coordinator.DefaultOptions()
	return &Config{
		Port:            server.DefaultPort,
		DB:              filepath.Join(xdg.DataHome, AppName, AppName+".db"),
		LogDir:          filepath.Join(xdg.StateHome, AppName),
		AllowedPatterns: append([]string(nil), matcher.DefaultPatterns...),
		Selectors:       agent.DefaultSelectors(),
		BadgeBackground: opts.BadgeBackground,
		BadgeText:       opts.BadgeText,
		CacheDir:        filepath.Join(xdg.CacheHome, AppName),
		CacheMaxAge:     DefaultCacheMaxAge,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/hidenobids/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load reads defaults, then the file at path, then the environment. A
// missing file is not an error unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path, required); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Port = port
	}
	if v := getenv(EnvDB); v != "" {
		c.DB = v
	}
	if v := getenv(EnvLogDir); v != "" {
		c.LogDir = v
	}
	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if len(c.AllowedPatterns) == 0 {
		return ErrNoPatterns
	}
	if _, err := matcher.New(c.AllowedPatterns); err != nil {
		return fmt.Errorf("allowed_patterns: %w", err)
	}
	if c.Selectors.Listing == "" || c.Selectors.BidCount == "" {
		return ErrNoSelectors
	}
	if c.CacheMaxAge < 0 {
		return ErrInvalidMaxAge
	}
	if c.BadgeBackground == "" || c.BadgeText == "" {
		return ErrEmptyBadgeColor
	}
	return nil
}

// Matcher compiles AllowedPatterns.
func (c *Config) Matcher() (*matcher.Matcher, error) {
	return matcher.New(c.AllowedPatterns)
}

// CoordinatorOptions returns the coordinator settings from c.
func (c *Config) CoordinatorOptions() coordinator.Options {
	return coordinator.Options{
		DefaultEnabled:  c.DefaultEnabled,
		BadgeBackground: c.BadgeBackground,
		BadgeText:       c.BadgeText,
	}
}

// Write saves c as YAML, creating the directory if needed.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
