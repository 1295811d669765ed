package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOMPROBE_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultTargetURL, cfg.Pipeline.TargetURL)
	assert.Equal(t, "event", cfg.Pipeline.WaitStrategy)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.LoadTimeout)
	assert.True(t, cfg.Pipeline.Inject)
	assert.Equal(t, "rod", cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DOMPROBE_CONFIG", "")
	t.Setenv("DOMPROBE_URL", "https://example.com")
	t.Setenv("DOMPROBE_WAIT", "poll")
	t.Setenv("DOMPROBE_LOAD_TIMEOUT", "0")
	t.Setenv("DOMPROBE_BLOCKED_RESOURCES", "Image, Font ,")
	t.Setenv("DOMPROBE_INJECT", "false")
	t.Setenv("DOMPROBE_MAX_PAGES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", cfg.Pipeline.TargetURL)
	assert.Equal(t, "poll", cfg.Pipeline.WaitStrategy)
	assert.Zero(t, cfg.Pipeline.LoadTimeout, "zero disables the load timeout")
	assert.Equal(t, []string{"Image", "Font"}, cfg.Browser.BlockedResourceTypes)
	assert.False(t, cfg.Pipeline.Inject)
	assert.Equal(t, 4, cfg.Browser.MaxPages, "unparseable values keep the fallback")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domprobe.yaml")
	body := `
browser:
  driver: cdp
  cdp_url: ws://127.0.0.1:9222/devtools/browser/abc
pipeline:
  target_url: https://file.example
  poll_interval: 250ms
  tag_summary: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("DOMPROBE_CONFIG", path)
	t.Setenv("DOMPROBE_URL", "https://env.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cdp", cfg.Browser.Driver)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.CDPURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.PollInterval)
	assert.True(t, cfg.Pipeline.TagSummary)
	assert.Equal(t, "https://env.example", cfg.Pipeline.TargetURL, "env wins over file")
	assert.Equal(t, 20, cfg.Pipeline.TagSummaryLimit, "unset file keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("DOMPROBE_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown driver", func(c *Config) { c.Browser.Driver = "webkit" }, false},
		{"unknown wait", func(c *Config) { c.Pipeline.WaitStrategy = "sleep" }, false},
		{"zero poll interval", func(c *Config) { c.Pipeline.PollInterval = 0 }, false},
		{"negative timeout", func(c *Config) { c.Pipeline.LoadTimeout = -time.Second }, false},
		{"unbounded timeout", func(c *Config) { c.Pipeline.LoadTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_ClampsMaxPages(t *testing.T) {
	cfg := Defaults()
	cfg.Browser.MaxPages = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Browser.MaxPages)
}
