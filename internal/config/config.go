package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Batch     BatchConfig
	Cache     CacheConfig
	LOC       LOCConfig
	Roster    RosterConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	// TokenEnv names the environment variable carrying a personal access
	// token. An empty variable means anonymous access.
	TokenEnv string
	App      GitHubAppConfig
}

// GitHubAppConfig configures GitHub App installation authentication. When
// fully set it takes precedence over a token.
type GitHubAppConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Enabled reports whether any app credential field is set.
func (a GitHubAppConfig) Enabled() bool {
	return a.AppID > 0 || a.InstallationID > 0 || a.PrivateKeyPath != ""
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig configures retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// BatchConfig sizes roster batches per credential tier.
type BatchConfig struct {
	AuthenticatedSize  int
	AuthenticatedDelay time.Duration
	AnonymousSize      int
	AnonymousDelay     time.Duration
	IncludeLOC         bool
}

// CacheConfig configures the in-memory bundle cache.
type CacheConfig struct {
	TTL time.Duration
}

// LOCConfig configures lines-of-code estimation. Mode "fast" estimates from
// per-language byte totals; "accurate" polls the weekly statistics endpoint.
type LOCConfig struct {
	Mode         string
	BytesPerLine int
	PollAttempts int
	PollBackoff  time.Duration
}

// RosterConfig locates the static roster source.
type RosterConfig struct {
	Path    string `yaml:"path"`
	Section string `yaml:"section"`
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	if c.Roster.Path == "" {
		errs = append(errs, "roster.path is required")
	}

	if c.GitHub.App.Enabled() {
		if c.GitHub.App.AppID <= 0 {
			errs = append(errs, "github.app.app_id must be > 0")
		}
		if c.GitHub.App.InstallationID <= 0 {
			errs = append(errs, "github.app.installation_id must be > 0")
		}
		if c.GitHub.App.PrivateKeyPath == "" {
			errs = append(errs, "github.app.private_key_path is required")
		}
	}

	if c.Batch.AuthenticatedSize <= 0 {
		errs = append(errs, "batch.authenticated_size must be > 0")
	}
	if c.Batch.AnonymousSize <= 0 {
		errs = append(errs, "batch.anonymous_size must be > 0")
	}
	if c.Batch.AuthenticatedDelay < 0 {
		errs = append(errs, "batch.authenticated_delay must be >= 0")
	}
	if c.Batch.AnonymousDelay < 0 {
		errs = append(errs, "batch.anonymous_delay must be >= 0")
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be > 0")
	}

	if c.LOC.Mode != "fast" && c.LOC.Mode != "accurate" {
		errs = append(errs, "loc.mode must be fast or accurate")
	}
	if c.LOC.BytesPerLine <= 0 {
		errs = append(errs, "loc.bytes_per_line must be > 0")
	}
	if c.LOC.PollAttempts <= 0 {
		errs = append(errs, "loc.poll_attempts must be > 0")
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be > 0")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.TokenEnv == "" {
		cfg.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
	if cfg.RateLimit.MinRemainingThreshold <= 0 {
		cfg.RateLimit.MinRemainingThreshold = 5
	}
	if cfg.RateLimit.SecondaryLimitBackoff <= 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 10 * time.Second
	}
	if cfg.Batch.AuthenticatedSize <= 0 {
		cfg.Batch.AuthenticatedSize = 50
	}
	if cfg.Batch.AuthenticatedDelay <= 0 {
		cfg.Batch.AuthenticatedDelay = 50 * time.Millisecond
	}
	if cfg.Batch.AnonymousSize <= 0 {
		cfg.Batch.AnonymousSize = 5
	}
	if cfg.Batch.AnonymousDelay <= 0 {
		cfg.Batch.AnonymousDelay = 2 * time.Second
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 30 * time.Minute
	}
	if cfg.LOC.Mode == "" {
		cfg.LOC.Mode = "fast"
	}
	if cfg.LOC.BytesPerLine <= 0 {
		cfg.LOC.BytesPerLine = 40
	}
	if cfg.LOC.PollAttempts <= 0 {
		cfg.LOC.PollAttempts = 6
	}
	if cfg.LOC.PollBackoff <= 0 {
		cfg.LOC.PollBackoff = 1500 * time.Millisecond
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    ServerConfig `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Batch     rawBatch     `yaml:"batch"`
	Cache     rawCache     `yaml:"cache"`
	LOC       rawLOC       `yaml:"loc"`
	Roster    RosterConfig `yaml:"roster"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL     string          `yaml:"api_base_url"`
	RequestTimeout duration        `yaml:"request_timeout"`
	TokenEnv       string          `yaml:"token_env"`
	App            GitHubAppConfig `yaml:"app"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawBatch struct {
	AuthenticatedSize  int      `yaml:"authenticated_size"`
	AuthenticatedDelay duration `yaml:"authenticated_delay"`
	AnonymousSize      int      `yaml:"anonymous_size"`
	AnonymousDelay     duration `yaml:"anonymous_delay"`
	IncludeLOC         bool     `yaml:"include_loc"`
}

type rawCache struct {
	TTL duration `yaml:"ttl"`
}

type rawLOC struct {
	Mode         string   `yaml:"mode"`
	BytesPerLine int      `yaml:"bytes_per_line"`
	PollAttempts int      `yaml:"poll_attempts"`
	PollBackoff  duration `yaml:"poll_backoff"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: r.Server,
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			TokenEnv:       r.GitHub.TokenEnv,
			App:            r.GitHub.App,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Batch: BatchConfig{
			AuthenticatedSize:  r.Batch.AuthenticatedSize,
			AuthenticatedDelay: r.Batch.AuthenticatedDelay.Duration,
			AnonymousSize:      r.Batch.AnonymousSize,
			AnonymousDelay:     r.Batch.AnonymousDelay.Duration,
			IncludeLOC:         r.Batch.IncludeLOC,
		},
		Cache: CacheConfig{
			TTL: r.Cache.TTL.Duration,
		},
		LOC: LOCConfig{
			Mode:         r.LOC.Mode,
			BytesPerLine: r.LOC.BytesPerLine,
			PollAttempts: r.LOC.PollAttempts,
			PollBackoff:  r.LOC.PollBackoff.Duration,
		},
		Roster: r.Roster,
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
