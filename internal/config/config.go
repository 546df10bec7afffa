// Package config loads and validates monitor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key read from the environment.
const EnvPrefix = "MONITOR"

// ErrMissingWebhook is returned when no webhook URL is configured.
var ErrMissingWebhook = errors.New("DISCORD_WEBHOOK_URL is not set")

// Report policy names.
const (
	PolicyInterval = "interval"
	PolicyDaily    = "daily"
)

// State backends.
const (
	StateFile     = "file"
	StatePostgres = "postgres"
)

// Snapshot backends.
const (
	SnapshotNone  = ""
	SnapshotLocal = "local"
	SnapshotGCS   = "gcs"
)

// Config captures all monitor configuration knobs loaded via Viper.
type Config struct {
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Report    ReportConfig    `mapstructure:"report"`
	Trial     TrialConfig     `mapstructure:"trial"`
	Approvals ApprovalsConfig `mapstructure:"approvals"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	State     StateConfig     `mapstructure:"state"`
	Snapshots SnapshotConfig  `mapstructure:"snapshots"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// WebhookConfig controls notification delivery.
type WebhookConfig struct {
	URL                  string  `mapstructure:"url"`
	MaxAttempts          int     `mapstructure:"max_attempts"`
	BackoffInitialMs     int     `mapstructure:"backoff_initial_ms"`
	RateLimitWaitSeconds int     `mapstructure:"rate_limit_wait_seconds"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"`
}

// ReportConfig selects the periodic report policy.
type ReportConfig struct {
	Policy   string `mapstructure:"policy"`
	Interval int    `mapstructure:"interval"`
	Hour     int    `mapstructure:"hour"`
	Timezone string `mapstructure:"timezone"`
}

// TrialConfig configures the trial monitor.
type TrialConfig struct {
	Sources        []string `mapstructure:"sources"`
	Target         string   `mapstructure:"target"`
	TargetVariants []string `mapstructure:"target_variants"`
	PhaseKeywords  []string `mapstructure:"phase_keywords"`
	StartKeywords  []string `mapstructure:"start_keywords"`
	TextBlocks     bool     `mapstructure:"text_blocks"`
}

// ApprovalsConfig configures the approval news monitor.
type ApprovalsConfig struct {
	Sources  []string `mapstructure:"sources"`
	MaxItems int      `mapstructure:"max_items"`
	Phrases  []string `mapstructure:"phrases"`
}

// HTTPConfig configures page fetching.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	RespectRobots    bool   `mapstructure:"respect_robots"`
	// Headers are added to every page request. Keys are case-insensitive.
	Headers map[string]string `mapstructure:"headers"`
}

// DefaultRequestHeaders match what a desktop browser sends for a page load.
var DefaultRequestHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// StateConfig selects where run state is persisted.
type StateConfig struct {
	Backend  string         `mapstructure:"backend"`
	Dir      string         `mapstructure:"dir"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls the optional Postgres state backend.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SnapshotConfig controls optional raw page snapshots.
type SnapshotConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig controls the optional Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// TracingConfig selects the OpenTelemetry span exporter ("" or "stdout").
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter"`
	ServiceName string `mapstructure:"service_name"`
}

// EventsConfig enables mirroring notification events to Pub/Sub.
type EventsConfig struct {
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// Enabled reports whether event publishing is configured.
func (e EventsConfig) Enabled() bool {
	return e.PubSubTopic != ""
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindLegacyEnv maps the unprefixed variables used by existing deployments.
// The prefixed name is listed first and wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"webhook.url":         {"MONITOR_WEBHOOK_URL", "DISCORD_WEBHOOK_URL"},
		"report.interval":     {"MONITOR_REPORT_INTERVAL", "STATUS_REPORT_INTERVAL"},
		"approvals.max_items": {"MONITOR_APPROVALS_MAX_ITEMS", "MAX_NEWS_ITEMS"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.backoff_initial_ms", 1000)
	v.SetDefault("webhook.rate_limit_wait_seconds", 5)
	v.SetDefault("webhook.requests_per_second", 0)
	v.SetDefault("report.policy", PolicyInterval)
	v.SetDefault("report.interval", 4)
	v.SetDefault("report.hour", 21)
	v.SetDefault("report.timezone", "Asia/Tokyo")
	v.SetDefault("trial.sources", []string{
		"https://www.ema.europa.eu/en/news",
		"https://www.ema.europa.eu/en/human-regulatory/research-development/clinical-trials",
	})
	v.SetDefault("trial.target", "CBP501")
	v.SetDefault("trial.text_blocks", true)
	v.SetDefault("approvals.sources", []string{
		"https://www.ema.europa.eu/en/news",
		"https://www.ema.europa.eu/en/search?search_api_views_fulltext=CHMP%20highlights",
	})
	v.SetDefault("approvals.max_items", 10)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.respect_robots", false)
	headers := make(map[string]any, len(DefaultRequestHeaders))
	for key, value := range DefaultRequestHeaders {
		headers[key] = value
	}
	v.SetDefault("http.headers", headers)
	v.SetDefault("state.backend", StateFile)
	v.SetDefault("state.dir", "state")
	v.SetDefault("state.postgres.table", "monitor_state")
	v.SetDefault("snapshots.backend", SnapshotNone)
	v.SetDefault("snapshots.dir", "snapshots")
	v.SetDefault("metrics.job", "ema_monitor")
	v.SetDefault("tracing.exporter", "")
	v.SetDefault("tracing.service_name", "ema-monitor")
	v.SetDefault("events.pubsub_project", "")
	v.SetDefault("events.pubsub_topic", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Webhook.URL) == "" {
		return ErrMissingWebhook
	}
	if c.Webhook.MaxAttempts <= 0 {
		return fmt.Errorf("webhook.max_attempts must be > 0")
	}
	switch c.Report.Policy {
	case PolicyInterval:
		if c.Report.Interval <= 0 {
			return fmt.Errorf("report.interval must be > 0")
		}
	case PolicyDaily:
		if c.Report.Hour < 0 || c.Report.Hour > 23 {
			return fmt.Errorf("report.hour must be between 0 and 23")
		}
	default:
		return fmt.Errorf("report.policy must be %q or %q", PolicyInterval, PolicyDaily)
	}
	if c.Approvals.MaxItems <= 0 {
		return fmt.Errorf("approvals.max_items must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	switch c.State.Backend {
	case StateFile:
		if strings.TrimSpace(c.State.Dir) == "" {
			return fmt.Errorf("state.dir must be set for the file backend")
		}
	case StatePostgres:
		if c.State.Postgres.DSN == "" {
			return fmt.Errorf("state.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("state.backend must be %q or %q", StateFile, StatePostgres)
	}
	switch c.Snapshots.Backend {
	case SnapshotNone:
	case SnapshotLocal:
		if strings.TrimSpace(c.Snapshots.Dir) == "" {
			return fmt.Errorf("snapshots.dir must be set for the local backend")
		}
	case SnapshotGCS:
		if c.Snapshots.GCSBucket == "" {
			return fmt.Errorf("snapshots.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("snapshots.backend must be empty, %q or %q", SnapshotLocal, SnapshotGCS)
	}
	if c.Tracing.Exporter != "" && c.Tracing.Exporter != "stdout" {
		return fmt.Errorf("tracing.exporter must be empty or \"stdout\"")
	}
	if c.Events.Enabled() && c.Events.PubSubProject == "" {
		return fmt.Errorf("events.pubsub_project must be set when events.pubsub_topic is")
	}
	return nil
}

// HTTPTimeout returns the per-request fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestHeaders returns the configured page request headers with
// canonical keys. Empty values are dropped.
func (c Config) RequestHeaders() http.Header {
	h := make(http.Header, len(c.HTTP.Headers))
	for key, value := range c.HTTP.Headers {
		if key == "" || value == "" {
			continue
		}
		h.Set(key, value)
	}
	return h
}

// FetchBackoff returns the initial fetch retry delay.
func (c Config) FetchBackoff() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// WebhookBackoff returns the initial webhook network retry delay.
func (c Config) WebhookBackoff() time.Duration {
	return time.Duration(c.Webhook.BackoffInitialMs) * time.Millisecond
}

// RateLimitWait returns the pause applied after a 429 response.
func (c Config) RateLimitWait() time.Duration {
	return time.Duration(c.Webhook.RateLimitWaitSeconds) * time.Second
}
