package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotas/hidenobids/internal/matcher"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 19191, cfg.Port)
	assert.False(t, cfg.DefaultEnabled)
	assert.Equal(t, matcher.DefaultPatterns, cfg.AllowedPatterns)
	assert.Equal(t, "li.s-item", cfg.Selectors.Listing)
	assert.Equal(t, "#808080", cfg.BadgeBackground)
	assert.Equal(t, "#FFFFFF", cfg.BadgeText)
	assert.Equal(t, time.Hour, cfg.CacheMaxAge)
	assert.Equal(t, "hidenobids.db", filepath.Base(cfg.DB))
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.yaml")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)

	_, err = Load(path, true)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 20000
default_enabled: true
allowed_patterns:
  - "*://*.example.com/search/*"
selectors:
  listing: div.result
  bid_count: span.bids
badge_background: "#000000"
cache_max_age: 30m
`), 0o644))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, 20000, cfg.Port)
	assert.True(t, cfg.DefaultEnabled)
	assert.Equal(t, []string{"*://*.example.com/search/*"}, cfg.AllowedPatterns)
	assert.Equal(t, "div.result", cfg.Selectors.Listing)
	assert.Equal(t, "span.bids", cfg.Selectors.BidCount)
	assert.Equal(t, "#000000", cfg.BadgeBackground)
	// Unset keys keep their defaults.
	assert.Equal(t, "#FFFFFF", cfg.BadgeText)
	assert.Equal(t, 30*time.Minute, cfg.CacheMaxAge)
	require.NoError(t, cfg.Validate())

	m, err := cfg.Matcher()
	require.NoError(t, err)
	assert.True(t, m.Match("https://www.example.com/search/lamps"))
	assert.True(t, cfg.CoordinatorOptions().DefaultEnabled)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1, 2"), 0o644))
	_, err := Load(path, true)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 20000\ndb: /from/file.db\n"), 0o644))
	t.Setenv(EnvPort, "20001")
	t.Setenv(EnvDB, "/from/env.db")
	t.Setenv(EnvLogDir, "/tmp/hnb-logs")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, 20001, cfg.Port)
	assert.Equal(t, "/from/env.db", cfg.DB)
	assert.Equal(t, "/tmp/hnb-logs", cfg.LogDir)
}

func TestEnvBadPort(t *testing.T) {
	t.Setenv(EnvPort, "abc")
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"), false)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"port zero", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"port too high", func(c *Config) { c.Port = 70000 }, ErrInvalidPort},
		{"no patterns", func(c *Config) { c.AllowedPatterns = nil }, ErrNoPatterns},
		{"no listing selector", func(c *Config) { c.Selectors.Listing = "" }, ErrNoSelectors},
		{"negative max age", func(c *Config) { c.CacheMaxAge = -time.Second }, ErrInvalidMaxAge},
		{"empty badge color", func(c *Config) { c.BadgeText = "" }, ErrEmptyBadgeColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	cfg.AllowedPatterns = []string{"ebay.com/sch/*"}
	assert.Error(t, cfg.Validate(), "pattern without scheme accepted")
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Port = 21000
	cfg.DefaultEnabled = true
	require.NoError(t, cfg.Write(path))

	got, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
