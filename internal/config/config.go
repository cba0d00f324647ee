// Package config loads the jobmatch YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Schedule     ScheduleConfig
	Sources      []SourceConfig
	Filters      FilterConfig
	Store        StoreConfig
	Queue        QueueConfig
	RateLimit    RateLimitConfig
	AI           AIConfig
	Resume       ResumeConfig
	Notification NotificationConfig
	Lock         LockConfig
	Server       ServerConfig
	Telemetry    TelemetryConfig
}

// ScheduleConfig controls the daemon loop.
type ScheduleConfig struct {
	Interval  time.Duration
	StartHour int // inclusive, local time
	EndHour   int // exclusive, local time
}

// SourceConfig describes a single job board to ingest.
type SourceConfig struct {
	Name       string `yaml:"name"`
	ATS        string `yaml:"ats"` // greenhouse, lever or ashby
	BoardToken string `yaml:"board_token"`
	Enabled    bool   `yaml:"enabled"`
}

// FilterConfig holds title and location keyword filters.
type FilterConfig struct {
	TitleKeywords        []string `yaml:"title_keywords"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
	Locations            []string `yaml:"locations"`
}

// StoreConfig selects the queue backend. Seen URLs always live in SQLite.
type StoreConfig struct {
	Driver  string        // sqlite or postgres
	Path    string        // sqlite file, also used for seen URLs
	DSN     string        // postgres connection string
	SeenTTL time.Duration // how long ingested URLs are remembered
}

// QueueConfig controls queue processing pace and retries.
type QueueConfig struct {
	BatchSize      int
	MaxRetries     int
	Throttle       time.Duration
	ThrottleJitter time.Duration
	FailureDelay   time.Duration
	RetryJitterMin time.Duration
	RetryJitterMax time.Duration
}

// RateLimitConfig holds the AI quota backoff and the per-ATS request gap.
type RateLimitConfig struct {
	BaseCooldown  time.Duration
	MaxMultiplier int
	MinDelay      time.Duration            // minimum gap between requests to the same ATS
	ATSOverrides  map[string]time.Duration // per-ATS overrides, keyed by ATS name
}

// MinDelayFor returns the configured delay for the given ATS, falling back to MinDelay.
func (r RateLimitConfig) MinDelayFor(ats string) time.Duration {
	if d, ok := r.ATSOverrides[ats]; ok {
		return d
	}
	return r.MinDelay
}

// AIConfig selects the LLM provider used for comparisons.
type AIConfig struct {
	Provider       string // openai or gemini
	BaseURL        string
	Model          string
	APIKey         string
	Timeout        time.Duration // per-request timeout
	MaxResumeChars int
}

// ResumeConfig points at the candidate resume.
type ResumeConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string // "log" or "slack"
	WebhookURL string // required if type is "slack"
	MinMatch   int    // lowest match percent that is notified, 0 notifies all
}

// LockConfig selects the single-flight guard for queue runs.
type LockConfig struct {
	Type          string // local or redis
	RedisAddr     string
	RedisPassword string
	Key           string
	TTL           time.Duration
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string
}

// TelemetryConfig selects the OpenTelemetry exporter.
type TelemetryConfig struct {
	Exporter string        // none or stdout
	Interval time.Duration // metric export period
	Output   string        // file the stdout exporter appends to, empty for stderr
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	slackWebhookPrefix   = "https://hooks.slack.com/"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Schedule     rawScheduleConfig     `yaml:"schedule"`
	Sources      []SourceConfig        `yaml:"sources"`
	Filters      FilterConfig          `yaml:"filters"`
	Store        rawStoreConfig        `yaml:"store"`
	Queue        rawQueueConfig        `yaml:"queue"`
	RateLimit    rawRateLimitConfig    `yaml:"rate_limit"`
	AI           rawAIConfig           `yaml:"ai"`
	Resume       ResumeConfig          `yaml:"resume"`
	Notification rawNotificationConfig `yaml:"notification"`
	Lock         rawLockConfig         `yaml:"lock"`
	Server       ServerConfig          `yaml:"server"`
	Telemetry    rawTelemetryConfig    `yaml:"telemetry"`
}

type rawTelemetryConfig struct {
	Exporter string `yaml:"exporter"`
	Interval string `yaml:"interval"`
	Output   string `yaml:"output"`
}

type rawNotificationConfig struct {
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	MinMatch   *int   `yaml:"min_match"` // nil means unset; 0 notifies every match
}

type rawScheduleConfig struct {
	Interval  string `yaml:"interval"`
	StartHour *int   `yaml:"start_hour"`
	EndHour   *int   `yaml:"end_hour"`
}

type rawStoreConfig struct {
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
	SeenTTL string `yaml:"seen_ttl"`
}

type rawQueueConfig struct {
	BatchSize      int    `yaml:"batch_size"`
	MaxRetries     *int   `yaml:"max_retries"`
	Throttle       string `yaml:"throttle"`
	ThrottleJitter string `yaml:"throttle_jitter"`
	FailureDelay   string `yaml:"failure_delay"`
	RetryJitterMin string `yaml:"retry_jitter_min"`
	RetryJitterMax string `yaml:"retry_jitter_max"`
}

type rawRateLimitConfig struct {
	BaseCooldown  string            `yaml:"base_cooldown"`
	MaxMultiplier int               `yaml:"max_multiplier"`
	MinDelay      string            `yaml:"min_delay"`
	ATSOverrides  map[string]string `yaml:"ats_overrides"`
}

type rawAIConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	Timeout        string `yaml:"timeout"`
	MaxResumeChars int    `yaml:"max_resume_chars"`
}

type rawLockConfig struct {
	Type          string `yaml:"type"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	Key           string `yaml:"key"`
	TTL           string `yaml:"ttl"`
}

// envOverrides are secrets and endpoints that the environment may supply
// instead of the file. Set values win over the YAML.
type envOverrides struct {
	AIAPIKey      string `env:"JOBMATCH_AI_API_KEY"`
	WebhookURL    string `env:"JOBMATCH_SLACK_WEBHOOK_URL"`
	PostgresDSN   string `env:"JOBMATCH_POSTGRES_DSN"`
	RedisAddr     string `env:"JOBMATCH_REDIS_ADDR"`
	RedisPassword string `env:"JOBMATCH_REDIS_PASSWORD"`
	ResumePath    string `env:"JOBMATCH_RESUME_PATH"`
}

// Load reads and parses the YAML config file at path, applies environment
// overrides and defaults, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg, err := build(raw)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, ov)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durationParser parses YAML duration fields, remembering the first error.
type durationParser struct {
	err error
}

func (p *durationParser) parse(field, value string, def time.Duration) time.Duration {
	if p.err != nil || value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.err = fmt.Errorf("parse %s %q: %w", field, value, err)
		return def
	}
	return d
}

func build(raw rawConfig) (*Config, error) {
	var dp durationParser

	cfg := &Config{
		Schedule: ScheduleConfig{
			Interval:  dp.parse("schedule.interval", raw.Schedule.Interval, 30*time.Minute),
			StartHour: intOr(raw.Schedule.StartHour, 7),
			EndHour:   intOr(raw.Schedule.EndHour, 17),
		},
		Sources: raw.Sources,
		Filters: raw.Filters,
		Store: StoreConfig{
			Driver:  stringOr(strings.ToLower(raw.Store.Driver), "sqlite"),
			Path:    stringOr(raw.Store.Path, "jobmatch.db"),
			DSN:     raw.Store.DSN,
			SeenTTL: dp.parse("store.seen_ttl", raw.Store.SeenTTL, 30*24*time.Hour),
		},
		Queue: QueueConfig{
			BatchSize:      positiveOr(raw.Queue.BatchSize, 2),
			MaxRetries:     intOr(raw.Queue.MaxRetries, 2),
			Throttle:       dp.parse("queue.throttle", raw.Queue.Throttle, 4*time.Second),
			ThrottleJitter: dp.parse("queue.throttle_jitter", raw.Queue.ThrottleJitter, time.Second),
			FailureDelay:   dp.parse("queue.failure_delay", raw.Queue.FailureDelay, time.Second),
			RetryJitterMin: dp.parse("queue.retry_jitter_min", raw.Queue.RetryJitterMin, 2*time.Second),
			RetryJitterMax: dp.parse("queue.retry_jitter_max", raw.Queue.RetryJitterMax, 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			BaseCooldown:  dp.parse("rate_limit.base_cooldown", raw.RateLimit.BaseCooldown, 60*time.Second),
			MaxMultiplier: positiveOr(raw.RateLimit.MaxMultiplier, 16),
			MinDelay:      dp.parse("rate_limit.min_delay", raw.RateLimit.MinDelay, 2*time.Second),
			ATSOverrides:  make(map[string]time.Duration),
		},
		AI: AIConfig{
			Provider:       stringOr(strings.ToLower(raw.AI.Provider), "openai"),
			BaseURL:        raw.AI.BaseURL,
			Model:          raw.AI.Model,
			APIKey:         raw.AI.APIKey,
			Timeout:        dp.parse("ai.timeout", raw.AI.Timeout, 60*time.Second),
			MaxResumeChars: positiveOr(raw.AI.MaxResumeChars, 3000),
		},
		Resume: raw.Resume,
		Notification: NotificationConfig{
			Type:       stringOr(raw.Notification.Type, "log"),
			WebhookURL: raw.Notification.WebhookURL,
			MinMatch:   intOr(raw.Notification.MinMatch, 40),
		},
		Lock: LockConfig{
			Type:          stringOr(strings.ToLower(raw.Lock.Type), "local"),
			RedisAddr:     raw.Lock.RedisAddr,
			RedisPassword: raw.Lock.RedisPassword,
			Key:           stringOr(raw.Lock.Key, "jobmatch:queue:run"),
			TTL:           dp.parse("lock.ttl", raw.Lock.TTL, 5*time.Minute),
		},
		Server: ServerConfig{Addr: stringOr(raw.Server.Addr, ":8080")},
		Telemetry: TelemetryConfig{
			Exporter: stringOr(strings.ToLower(raw.Telemetry.Exporter), "none"),
			Interval: dp.parse("telemetry.interval", raw.Telemetry.Interval, time.Minute),
			Output:   raw.Telemetry.Output,
		},
	}
	if dp.err != nil {
		return nil, dp.err
	}

	for ats, value := range raw.RateLimit.ATSOverrides {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.ats_overrides[%q]: %w", ats, err)
		}
		cfg.RateLimit.ATSOverrides[ats] = d
	}

	if cfg.AI.BaseURL == "" {
		switch cfg.AI.Provider {
		case "openai":
			cfg.AI.BaseURL = defaultOpenAIBaseURL
		case "gemini":
			cfg.AI.BaseURL = defaultGeminiBaseURL
		}
	}
	return cfg, nil
}

func applyOverrides(cfg *Config, ov envOverrides) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.AI.APIKey, ov.AIAPIKey)
	set(&cfg.Notification.WebhookURL, ov.WebhookURL)
	set(&cfg.Store.DSN, ov.PostgresDSN)
	set(&cfg.Lock.RedisAddr, ov.RedisAddr)
	set(&cfg.Lock.RedisPassword, ov.RedisPassword)
	set(&cfg.Resume.Path, ov.ResumePath)
}

func validate(cfg *Config) error {
	if cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive, got %v", cfg.Schedule.Interval)
	}
	if !validHour(cfg.Schedule.StartHour) || !validHour(cfg.Schedule.EndHour) {
		return fmt.Errorf("schedule hours must be within 0-23, got %d-%d", cfg.Schedule.StartHour, cfg.Schedule.EndHour)
	}

	for i, s := range cfg.Sources {
		switch s.ATS {
		case "greenhouse", "lever", "ashby":
		default:
			return fmt.Errorf("sources[%d] (%s): unsupported ats %q", i, s.Name, s.ATS)
		}
		if s.Enabled && s.BoardToken == "" {
			return fmt.Errorf("sources[%d] (%s): board_token is required", i, s.Name)
		}
	}

	switch cfg.Store.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when store.driver is \"postgres\"")
		}
	default:
		return fmt.Errorf("store.driver must be \"sqlite\" or \"postgres\", got %q", cfg.Store.Driver)
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	if cfg.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative, got %d", cfg.Queue.MaxRetries)
	}
	if cfg.Queue.RetryJitterMin > cfg.Queue.RetryJitterMax {
		return fmt.Errorf("queue.retry_jitter_min (%v) exceeds retry_jitter_max (%v)", cfg.Queue.RetryJitterMin, cfg.Queue.RetryJitterMax)
	}
	if cfg.RateLimit.BaseCooldown <= 0 {
		return fmt.Errorf("rate_limit.base_cooldown must be positive, got %v", cfg.RateLimit.BaseCooldown)
	}

	switch cfg.AI.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("ai.provider must be \"openai\" or \"gemini\", got %q", cfg.AI.Provider)
	}
	if cfg.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required (or set JOBMATCH_AI_API_KEY)")
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}

	if cfg.Resume.Path == "" {
		return fmt.Errorf("resume.path is required")
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, slackWebhookPrefix) {
			return fmt.Errorf("notification.webhook_url must start with %s", slackWebhookPrefix)
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}
	if cfg.Notification.MinMatch < 0 || cfg.Notification.MinMatch > 100 {
		return fmt.Errorf("notification.min_match must be between 0 and 100, got %d", cfg.Notification.MinMatch)
	}

	switch cfg.Lock.Type {
	case "local":
	case "redis":
		if cfg.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required when lock.type is \"redis\"")
		}
		if cfg.Lock.TTL < time.Second {
			return fmt.Errorf("lock.ttl must be at least 1s, got %v", cfg.Lock.TTL)
		}
	default:
		return fmt.Errorf("lock.type must be \"local\" or \"redis\", got %q", cfg.Lock.Type)
	}

	switch cfg.Telemetry.Exporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("telemetry.exporter must be \"none\" or \"stdout\", got %q", cfg.Telemetry.Exporter)
	}
	if cfg.Telemetry.Interval <= 0 {
		return fmt.Errorf("telemetry.interval must be positive, got %v", cfg.Telemetry.Interval)
	}

	return nil
}

// EnabledSources returns the sources with enabled set.
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func validHour(h int) bool { return h >= 0 && h <= 23 }

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func stringOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
