package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/adapter"
	"github.com/amishk599/jobmatch/internal/ai"
	"github.com/amishk599/jobmatch/internal/config"
	"github.com/amishk599/jobmatch/internal/filter"
	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/notifier"
	"github.com/amishk599/jobmatch/internal/observability"
	"github.com/amishk599/jobmatch/internal/poller"
	"github.com/amishk599/jobmatch/internal/queue"
	"github.com/amishk599/jobmatch/internal/ratelimit"
	"github.com/amishk599/jobmatch/internal/resume"
	"github.com/amishk599/jobmatch/internal/retry"
	"github.com/amishk599/jobmatch/internal/runlock"
	"github.com/amishk599/jobmatch/internal/store"
	"github.com/amishk599/jobmatch/internal/worker"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobmatch",
	Short: "Job queue that scores postings against your resume",
	Long:  "jobmatch ingests postings from ATS job boards, queues them, and rates each one against your resume with an LLM.",
	// Running the binary without a subcommand starts the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBMATCH_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBMATCH_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBMATCH_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// mustLoad is the common prologue of every command.
func mustLoad() (*config.Config, *slog.Logger) {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, cfg.Notification.MinMatch, httpClient, logger)
	default:
		return notifier.NewLogNotifier(cfg.Notification.MinMatch, logger)
	}
}

func openQueue(ctx context.Context, cfg *config.Config) (queue.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return queue.NewPostgresQueue(ctx, cfg.Store.DSN)
	default:
		return queue.NewSQLiteQueue(cfg.Store.Path)
	}
}

// setupGuard returns the run guard and a func closing whatever it opened.
func setupGuard(cfg *config.Config, logger *slog.Logger) (runlock.Guard, func() error) {
	if cfg.Lock.Type != "redis" {
		return runlock.NewLocal(), func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Lock.RedisAddr,
		Password: cfg.Lock.RedisPassword,
	})
	logger.Info("using redis run lock", "addr", cfg.Lock.RedisAddr, "key", cfg.Lock.Key)
	return runlock.NewRedis(client, cfg.Lock.Key, cfg.Lock.TTL, logger), client.Close
}

func setupProvider(cfg *config.Config) ai.LLMProvider {
	httpClient := &http.Client{Timeout: cfg.AI.Timeout}
	switch cfg.AI.Provider {
	case "gemini":
		return ai.NewGeminiProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient)
	default:
		return ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient)
	}
}

func setupEnricher(cfg *config.Config, controller *ratelimit.Controller, metrics *observability.Metrics, logger *slog.Logger) worker.Enricher {
	comparator := ai.NewLLMComparator(setupProvider(cfg), ai.JobMatchTemplate, cfg.AI.MaxResumeChars, logger)
	logger.Info("ai comparator enabled", "provider", cfg.AI.Provider, "model", cfg.AI.Model)
	return retry.NewRetryComparator(comparator, controller, retry.ComparatorConfig{
		MaxRetries:   cfg.Queue.MaxRetries,
		BaseCooldown: cfg.RateLimit.BaseCooldown,
		JitterMin:    cfg.Queue.RetryJitterMin,
		JitterMax:    cfg.Queue.RetryJitterMax,
	}, metrics, logger)
}

func createSource(src config.SourceConfig, httpClient *http.Client, logger *slog.Logger) (model.PostingSource, bool) {
	switch src.ATS {
	case "greenhouse":
		return adapter.NewGreenhouseSource(src.BoardToken, src.Name, httpClient), true
	case "lever":
		return adapter.NewLeverSource(src.BoardToken, src.Name, httpClient), true
	case "ashby":
		return adapter.NewAshbySource(src.BoardToken, src.Name, httpClient), true
	default:
		logger.Warn("unsupported ATS, skipping", "source", src.Name, "ats", src.ATS)
		return nil, false
	}
}

func buildIngester(cfg *config.Config, seen model.SeenStore, q poller.Enqueuer, logger *slog.Logger) (*poller.Ingester, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	postingFilter := filter.New(filter.Rules{
		TitleKeywords: cfg.Filters.TitleKeywords,
		TitleExclude:  cfg.Filters.TitleExcludeKeywords,
		Locations:     cfg.Filters.Locations,
	})

	limiter := ratelimit.NewSourceLimiter(cfg.RateLimit.MinDelay)
	for ats, d := range cfg.RateLimit.ATSOverrides {
		limiter.SetDelay(ats, d)
	}
	logger.Info("source min_delay", "min_delay", cfg.RateLimit.MinDelay.String())

	var pollers []*poller.SourcePoller
	for _, src := range cfg.EnabledSources() {
		source, ok := createSource(src, httpClient, logger)
		if !ok {
			continue
		}
		source = retry.NewRetrySource(source, 2, 5*time.Second, logger)
		source = ratelimit.NewLimitedSource(source, limiter, src.ATS)
		pollers = append(pollers, poller.NewSourcePoller(src.Name, source, postingFilter, seen, q, logger))
		logger.Info("registered source", "name", src.Name, "ats", src.ATS)
	}
	if len(pollers) == 0 {
		return nil, fmt.Errorf("no enabled sources to ingest")
	}
	return poller.NewIngester(pollers, seen, 0, cfg.Store.SeenTTL, logger), nil
}

// setupTelemetry installs the configured otel providers. The returned func
// flushes them and closes the output file.
func setupTelemetry(cfg *config.Config, logger *slog.Logger) (*observability.Providers, func() error, error) {
	var out io.Writer = os.Stderr
	var file *os.File
	if cfg.Telemetry.Exporter == observability.ExporterStdout && cfg.Telemetry.Output != "" {
		f, err := os.OpenFile(cfg.Telemetry.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open telemetry output: %w", err)
		}
		out, file = f, f
	}

	p, err := observability.Setup(observability.Options{
		Exporter: cfg.Telemetry.Exporter,
		Writer:   out,
		Interval: cfg.Telemetry.Interval,
	})
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, nil, err
	}
	if cfg.Telemetry.Exporter != observability.ExporterNone {
		logger.Info("telemetry enabled", "exporter", cfg.Telemetry.Exporter, "interval", cfg.Telemetry.Interval.String())
	}

	closeFn := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := p.Shutdown(ctx)
		if file != nil {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return p, closeFn, nil
}

func buildProcessor(cfg *config.Config, q model.QueueStore, guard runlock.Guard, n model.Notifier, telemetry *observability.Providers, logger *slog.Logger) *worker.QueueProcessor {
	controller := ratelimit.NewController(ratelimit.WithMaxMultiplier(cfg.RateLimit.MaxMultiplier))
	metrics := telemetry.Metrics
	tracer := telemetry.Tracer

	batch := worker.NewBatchProcessor(q, setupEnricher(cfg, controller, metrics, logger), n, worker.BatchConfig{
		Throttle:       cfg.Queue.Throttle,
		ThrottleJitter: cfg.Queue.ThrottleJitter,
		FailureDelay:   cfg.Queue.FailureDelay,
	}, metrics, tracer, logger)

	return worker.NewQueueProcessor(q, batch, resume.NewFileProvider(cfg.Resume.Path), n,
		controller, guard, cfg.Queue.BatchSize, tracer, logger)
}

// app holds the long-lived components shared by the daemon, the API and
// the one-shot commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	queue     queue.Store
	seen      *store.SQLiteStore
	notifier  model.Notifier
	ingester  *poller.Ingester
	processor *worker.QueueProcessor

	closers []func() error
}

// newApp opens the stores and wires the pipeline. withIngest controls
// whether the source pollers are built.
func newApp(ctx context.Context, cfg *config.Config, withIngest bool, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	telemetry, closeTelemetry, err := setupTelemetry(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeTelemetry)

	q, err := openQueue(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}
	a.queue = q
	a.closers = append(a.closers, q.Close)

	guard, closeGuard := setupGuard(cfg, logger)
	a.closers = append(a.closers, closeGuard)

	a.notifier = setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	a.processor = buildProcessor(cfg, q, guard, a.notifier, telemetry, logger)

	if withIngest {
		seen, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open seen store: %w", err)
		}
		a.seen = seen
		a.closers = append(a.closers, seen.Close)

		a.ingester, err = buildIngester(cfg, seen, q, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}
