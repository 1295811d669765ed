package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTargetURL is the page the CLI loads when no URL is given.
const DefaultTargetURL = "https://chatgpt.com"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Static    StaticConfig    `yaml:"static"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"

	// MaxTimeout caps the per-request timeout a client may ask for.
	MaxTimeout time.Duration `yaml:"max_timeout"` // default: 120s
}

// BrowserConfig controls the browser driver.
type BrowserConfig struct {
	// Driver selects the browser backend: "rod" or "cdp".
	Driver string `yaml:"driver"` // default: "rod"

	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int `yaml:"max_pages"` // default: 4

	// Proxy is the proxy URL used by the browser and the static fetcher.
	Proxy string `yaml:"proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// CDPURL attaches to an already running browser instead of launching
	// one (ws://host:port/devtools/browser/<id>).
	CDPURL string `yaml:"cdp_url"`

	// Stealth injects anti-detection evasions before every navigation.
	Stealth bool `yaml:"stealth"` // default: false

	// BlockedResourceTypes lists resource types to block (rod driver).
	// default: ["Image", "Media", "Font"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	// BlockAds blocks requests to well-known ad and tracking domains.
	BlockAds bool `yaml:"block_ads"` // default: false
}

// PipelineConfig controls the load → inject → extract session.
type PipelineConfig struct {
	// TargetURL is the page loaded by `domprobe run`.
	TargetURL string `yaml:"target_url"` // default: DefaultTargetURL

	// WaitStrategy is "event" or "poll".
	WaitStrategy string `yaml:"wait_strategy"` // default: "event"

	// PollInterval is the loading-flag poll period.
	PollInterval time.Duration `yaml:"poll_interval"` // default: 100ms

	// LoadTimeout bounds the load wait. Zero waits forever.
	LoadTimeout time.Duration `yaml:"load_timeout"` // default: 30s

	// Inject toggles the vertical-only CSS override.
	Inject bool `yaml:"inject"` // default: true

	// TagSummary appends the most-common-tags table to the report.
	TagSummary bool `yaml:"tag_summary"` // default: false

	// TagSummaryLimit is the number of tags listed in the summary.
	TagSummaryLimit int `yaml:"tag_summary_limit"` // default: 20
}

// StaticConfig controls the plain HTTP snapshot fetcher.
type StaticConfig struct {
	Timeout time.Duration `yaml:"timeout"` // default: 15s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 2

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 5
}

// CacheConfig controls the elements response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int `yaml:"max_entries"` // default: 500
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "text"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			Mode:       "release",
			MaxTimeout: 120 * time.Second,
		},
		Browser: BrowserConfig{
			Driver:               "rod",
			Headless:             true,
			MaxPages:             4,
			BlockedResourceTypes: []string{"Image", "Media", "Font"},
		},
		Pipeline: PipelineConfig{
			TargetURL:       DefaultTargetURL,
			WaitStrategy:    "event",
			PollInterval:    100 * time.Millisecond,
			LoadTimeout:     30 * time.Second,
			Inject:          true,
			TagSummaryLimit: 20,
		},
		Static: StaticConfig{
			Timeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Cache: CacheConfig{
			MaxEntries: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by DOMPROBE_CONFIG, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("DOMPROBE_CONFIG"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "rod", "cdp":
	default:
		return fmt.Errorf("config: unknown browser driver %q (want rod or cdp)", c.Browser.Driver)
	}
	switch c.Pipeline.WaitStrategy {
	case "event", "poll":
	default:
		return fmt.Errorf("config: unknown wait strategy %q (want event or poll)", c.Pipeline.WaitStrategy)
	}
	if c.Pipeline.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive, got %s", c.Pipeline.PollInterval)
	}
	if c.Pipeline.LoadTimeout < 0 {
		return fmt.Errorf("config: load timeout must not be negative, got %s", c.Pipeline.LoadTimeout)
	}
	if c.Browser.MaxPages < 1 {
		c.Browser.MaxPages = 1
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("DOMPROBE_HOST", c.Server.Host)
	c.Server.Port = envIntOr("DOMPROBE_PORT", c.Server.Port)
	c.Server.Mode = envOr("DOMPROBE_MODE", c.Server.Mode)
	c.Server.MaxTimeout = envDurationOr("DOMPROBE_MAX_TIMEOUT", c.Server.MaxTimeout)

	c.Browser.Driver = envOr("DOMPROBE_DRIVER", c.Browser.Driver)
	c.Browser.Headless = envBoolOr("DOMPROBE_HEADLESS", c.Browser.Headless)
	c.Browser.MaxPages = envIntOr("DOMPROBE_MAX_PAGES", c.Browser.MaxPages)
	c.Browser.Proxy = envOr("DOMPROBE_PROXY", c.Browser.Proxy)
	c.Browser.NoSandbox = envBoolOr("DOMPROBE_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("DOMPROBE_BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.CDPURL = envOr("DOMPROBE_CDP_URL", c.Browser.CDPURL)
	c.Browser.Stealth = envBoolOr("DOMPROBE_STEALTH", c.Browser.Stealth)
	c.Browser.BlockedResourceTypes = envSliceOr("DOMPROBE_BLOCKED_RESOURCES", c.Browser.BlockedResourceTypes)
	c.Browser.BlockAds = envBoolOr("DOMPROBE_BLOCK_ADS", c.Browser.BlockAds)

	c.Pipeline.TargetURL = envOr("DOMPROBE_URL", c.Pipeline.TargetURL)
	c.Pipeline.WaitStrategy = envOr("DOMPROBE_WAIT", c.Pipeline.WaitStrategy)
	c.Pipeline.PollInterval = envDurationOr("DOMPROBE_POLL_INTERVAL", c.Pipeline.PollInterval)
	c.Pipeline.LoadTimeout = envDurationOr("DOMPROBE_LOAD_TIMEOUT", c.Pipeline.LoadTimeout)
	c.Pipeline.Inject = envBoolOr("DOMPROBE_INJECT", c.Pipeline.Inject)
	c.Pipeline.TagSummary = envBoolOr("DOMPROBE_TAG_SUMMARY", c.Pipeline.TagSummary)
	c.Pipeline.TagSummaryLimit = envIntOr("DOMPROBE_TAG_SUMMARY_LIMIT", c.Pipeline.TagSummaryLimit)

	c.Static.Timeout = envDurationOr("DOMPROBE_STATIC_TIMEOUT", c.Static.Timeout)

	c.Auth.Enabled = envBoolOr("DOMPROBE_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("DOMPROBE_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("DOMPROBE_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("DOMPROBE_RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("DOMPROBE_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)

	c.Log.Level = envOr("DOMPROBE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("DOMPROBE_LOG_FORMAT", c.Log.Format)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
