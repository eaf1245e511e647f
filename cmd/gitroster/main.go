package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/gitroster/internal/app"
	"github.com/cam3ron2/gitroster/internal/batch"
	"github.com/cam3ron2/gitroster/internal/config"
	"github.com/cam3ron2/gitroster/internal/githubapi"
	"github.com/cam3ron2/gitroster/internal/metrics"
	"github.com/cam3ron2/gitroster/internal/roster"
	"github.com/cam3ron2/gitroster/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "gitroster: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to YAML config file")
	flag.Parse()

	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "gitroster",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	rosterFile, err := os.Open(cfg.Roster.Path)
	if err != nil {
		return fmt.Errorf("open roster file: %w", err)
	}
	source, err := roster.Load(rosterFile)
	_ = rosterFile.Close()
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	if cfg.Roster.Section != "" {
		source.Section = cfg.Roster.Section
	}

	client, err := githubapi.NewClient(githubapi.ClientConfig{
		APIBaseURL: cfg.GitHub.APIBaseURL,
		Token:      os.Getenv(cfg.GitHub.TokenEnv),
		App: githubapi.AppAuth{
			AppID:          cfg.GitHub.App.AppID,
			InstallationID: cfg.GitHub.App.InstallationID,
			PrivateKeyPath: cfg.GitHub.App.PrivateKeyPath,
		},
		RequestTimeout: cfg.GitHub.RequestTimeout,
		Retry: githubapi.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		Policy: githubapi.RateLimitPolicy{
			MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
			SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
		},
	})
	if err != nil {
		return fmt.Errorf("build github client: %w", err)
	}

	metricsClient, err := githubapi.NewMetricsClient(client, githubapi.LOCOptions{
		BytesPerLine: cfg.LOC.BytesPerLine,
		PollAttempts: cfg.LOC.PollAttempts,
		PollBackoff:  cfg.LOC.PollBackoff,
	})
	if err != nil {
		return fmt.Errorf("build metrics client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cache := metrics.NewBundleCache(cfg.Cache.TTL)
	fetcher := metrics.NewFetcher(
		metricsClient,
		cache,
		metrics.NewFetcherMetrics(registry),
		cfg.LOC.Mode == "accurate",
	)
	scheduler := batch.NewScheduler(
		fetcher,
		batch.TierConfig(cfg.Batch, client.Authenticated),
		logger,
		batch.NewSchedulerMetrics(registry),
	)

	runtime := app.NewRuntime(cfg, scheduler, fetcher, metricsClient, cache, logger)
	runtime.SetAuthenticated(client.Authenticated)
	runtime.LoadRoster(source)

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	handler := app.NewHTTPHandler(runtime, metricsHandler, logger)
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runtime.Start(rootCtx)
	logger.Info("runtime started",
		zap.String("section", source.Section),
		zap.Bool("authenticated", client.Authenticated),
		zap.String("loc_mode", cfg.LOC.Mode))

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	runtime.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
