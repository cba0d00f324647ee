package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
ai:
  model: gpt-4o-mini
  api_key: sk-test
resume:
  path: resume.md
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
schedule:
  interval: 15m
  start_hour: 8
  end_hour: 18
sources:
  - name: acme
    ats: greenhouse
    board_token: "acme"
    enabled: true
  - name: beta
    ats: lever
    board_token: beta
    enabled: false
filters:
  title_keywords:
    - engineer
  title_exclude_keywords:
    - manager
  locations:
    - Remote
queue:
  batch_size: 5
  max_retries: 0
  throttle: 10s
rate_limit:
  base_cooldown: 30s
  ats_overrides:
    lever: 5s
ai:
  provider: gemini
  model: gemini-2.0-flash
  api_key: key
resume:
  path: /tmp/resume.md
notification:
  type: slack
  webhook_url: https://hooks.slack.com/services/T/B/X
  min_match: 60
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule.Interval != 15*time.Minute || cfg.Schedule.StartHour != 8 || cfg.Schedule.EndHour != 18 {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].BoardToken != "acme" {
		t.Errorf("Sources = %+v", cfg.Sources)
	}
	if got := cfg.EnabledSources(); len(got) != 1 || got[0].Name != "acme" {
		t.Errorf("EnabledSources = %+v", got)
	}
	if len(cfg.Filters.TitleExcludeKeywords) != 1 || cfg.Filters.TitleExcludeKeywords[0] != "manager" {
		t.Errorf("TitleExcludeKeywords = %v", cfg.Filters.TitleExcludeKeywords)
	}
	if cfg.Queue.BatchSize != 5 || cfg.Queue.MaxRetries != 0 || cfg.Queue.Throttle != 10*time.Second {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.RateLimit.BaseCooldown != 30*time.Second {
		t.Errorf("BaseCooldown = %v", cfg.RateLimit.BaseCooldown)
	}
	if cfg.RateLimit.MinDelayFor("lever") != 5*time.Second || cfg.RateLimit.MinDelayFor("greenhouse") != 2*time.Second {
		t.Errorf("MinDelayFor mismatch: %+v", cfg.RateLimit)
	}
	if cfg.AI.BaseURL != defaultGeminiBaseURL {
		t.Errorf("AI.BaseURL = %q, want gemini default", cfg.AI.BaseURL)
	}
	if cfg.Notification.MinMatch != 60 {
		t.Errorf("MinMatch = %d", cfg.Notification.MinMatch)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule.Interval != 30*time.Minute || cfg.Schedule.StartHour != 7 || cfg.Schedule.EndHour != 17 {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "jobmatch.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	want := QueueConfig{
		BatchSize:      2,
		MaxRetries:     2,
		Throttle:       4 * time.Second,
		ThrottleJitter: time.Second,
		FailureDelay:   time.Second,
		RetryJitterMin: 2 * time.Second,
		RetryJitterMax: 3 * time.Second,
	}
	if cfg.Queue != want {
		t.Errorf("Queue = %+v, want %+v", cfg.Queue, want)
	}
	if cfg.RateLimit.BaseCooldown != 60*time.Second || cfg.RateLimit.MaxMultiplier != 16 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.AI.Provider != "openai" || cfg.AI.BaseURL != defaultOpenAIBaseURL || cfg.AI.MaxResumeChars != 3000 {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.Notification.Type != "log" || cfg.Notification.MinMatch != 40 {
		t.Errorf("Notification = %+v", cfg.Notification)
	}
	if cfg.Lock.Type != "local" || cfg.Server.Addr != ":8080" {
		t.Errorf("Lock/Server = %+v %+v", cfg.Lock, cfg.Server)
	}
	if cfg.Telemetry.Exporter != "none" || cfg.Telemetry.Interval != time.Minute {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoad_ExpandsEnvInYAML(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	cfg, err := Load(writeConfig(t, `
ai:
  model: gpt-4o-mini
  api_key: ${TEST_OPENAI_KEY}
resume:
  path: resume.md
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q", cfg.AI.APIKey)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JOBMATCH_AI_API_KEY", "sk-override")
	t.Setenv("JOBMATCH_POSTGRES_DSN", "postgres://localhost/jobs")
	t.Setenv("JOBMATCH_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(writeConfig(t, minimalConfig+`
store:
  driver: postgres
lock:
  type: redis
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.APIKey != "sk-override" {
		t.Errorf("APIKey = %q, want override", cfg.AI.APIKey)
	}
	if cfg.Store.DSN != "postgres://localhost/jobs" {
		t.Errorf("DSN = %q", cfg.Store.DSN)
	}
	if cfg.Lock.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.Lock.RedisAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "schedule: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"bad duration", "queue:\n  throttle: soon\n", "queue.throttle"},
		{"zero interval", "schedule:\n  interval: 0s\n", "schedule.interval"},
		{"hour out of range", "schedule:\n  end_hour: 24\n", "schedule hours"},
		{"unknown ats", "sources:\n  - name: x\n    ats: workday\n    enabled: true\n", "unsupported ats"},
		{"missing board token", "sources:\n  - name: x\n    ats: lever\n    enabled: true\n", "board_token"},
		{"postgres without dsn", "store:\n  driver: postgres\n", "store.dsn"},
		{"unknown driver", "store:\n  driver: mysql\n", "store.driver"},
		{"jitter inverted", "queue:\n  retry_jitter_min: 5s\n  retry_jitter_max: 1s\n", "retry_jitter_min"},
		{"negative retries", "queue:\n  max_retries: -1\n", "max_retries"},
		{"slack without webhook", "notification:\n  type: slack\n", "webhook_url is required"},
		{"slack bad webhook", "notification:\n  type: slack\n  webhook_url: https://example.com/x\n", "must start with"},
		{"redis without addr", "lock:\n  type: redis\n", "lock.redis_addr"},
		{"redis ttl too short", "lock:\n  type: redis\n  redis_addr: localhost:6379\n  ttl: 2ns\n", "lock.ttl"},
		{"min match above 100", "notification:\n  min_match: 101\n", "notification.min_match"},
		{"negative min match", "notification:\n  min_match: -5\n", "notification.min_match"},
		{"unknown exporter", "telemetry:\n  exporter: jaeger\n", "telemetry.exporter"},
		{"zero telemetry interval", "telemetry:\n  exporter: stdout\n  interval: 0s\n", "telemetry.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, minimalConfig+tt.extra))
			if err == nil {
				t.Fatalf("Load: expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	_, err := Load(writeConfig(t, "ai:\n  provider: claude\n  model: m\n  api_key: k\nresume:\n  path: r.md\n"))
	if err == nil || !strings.Contains(err.Error(), "ai.provider") {
		t.Fatalf("Load error = %v, want ai.provider", err)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	_, err := Load(writeConfig(t, "ai:\n  model: m\nresume:\n  path: r.md\n"))
	if err == nil || !strings.Contains(err.Error(), "ai.api_key") {
		t.Fatalf("Load error = %v, want ai.api_key", err)
	}
}

func TestLoad_ZeroMinMatchIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+"notification:\n  min_match: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notification.MinMatch != 0 {
		t.Errorf("MinMatch = %d, want 0", cfg.Notification.MinMatch)
	}
}

func TestLoad_StdoutTelemetry(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+"telemetry:\n  exporter: STDOUT\n  interval: 15s\n  output: otel.jsonl\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := TelemetryConfig{Exporter: "stdout", Interval: 15 * time.Second, Output: "otel.jsonl"}
	if cfg.Telemetry != want {
		t.Errorf("Telemetry = %+v, want %+v", cfg.Telemetry, want)
	}
}
