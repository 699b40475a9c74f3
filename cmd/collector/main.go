package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/finbert-ci/collector/config"
	"github.com/finbert-ci/collector/internal/clients"
	"github.com/finbert-ci/collector/internal/collector"
	"github.com/finbert-ci/collector/internal/dedup"
	apperrors "github.com/finbert-ci/collector/internal/errors"
	"github.com/finbert-ci/collector/internal/logging"
	"github.com/finbert-ci/collector/internal/metrics"
	"github.com/finbert-ci/collector/internal/sentiment"
	"github.com/finbert-ci/collector/internal/sink"
)

// Overridden at build time via -ldflags "-X main.version=... ".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("[Main] Invalid configuration", slog.String("error", err.Error()))
		return apperrors.ExitCode(err)
	}
	logging.Init(cfg.LogLevel)

	slog.Info("[Main] Collector starting",
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("build_date", buildDate))

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
		m.SetBuildInfo(version, commit, buildDate)
		server := metrics.NewServer(cfg.MetricsPort, m)
		server.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				slog.Warn("[Main] Metrics server shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := dedup.Open(cfg.DedupDBPath, cfg.DedupCapacity)
	if err != nil {
		slog.Error("[Main] Failed to open dedup store", slog.String("error", err.Error()))
		m.SetUnhealthy()
		m.RecordError(apperrors.ComponentOf(err), string(apperrors.KindOf(err)))
		return apperrors.ExitCode(err)
	}
	defer store.Close()

	analyzer, err := buildAnalyzer(cfg, m)
	if err != nil {
		slog.Error("[Main] Failed to construct classifier", slog.String("error", err.Error()))
		m.SetUnhealthy()
		m.RecordError(apperrors.ComponentOf(err), string(apperrors.KindOf(err)))
		return apperrors.ExitCode(err)
	}
	defer analyzer.Close()

	source := clients.NewRedditClient(cfg)
	defer source.Close()

	writer := sink.NewWriter(cfg.OutputPath)
	defer writer.Close()

	coll := collector.New(cfg, source, store, analyzer, writer, m)
	if err := coll.Run(context.Background()); err != nil {
		slog.Error("[Main] Run failed",
			slog.String("run_id", coll.RunID()),
			slog.String("error", err.Error()))
		return apperrors.ExitCode(err)
	}
	return 0
}

// buildAnalyzer constructs the configured sentiment backend, or the
// neutral pass-through when sentiment is disabled.
func buildAnalyzer(cfg *config.Config, m *metrics.Metrics) (*sentiment.Analyzer, error) {
	if !cfg.EnableSentiment {
		slog.Info("[Main] Sentiment analysis disabled")
		return sentiment.NewAnalyzer(nil, cfg.SentimentBatchSize, cfg.SentimentMaxChars, m), nil
	}

	var (
		scorer sentiment.Scorer
		err    error
	)
	start := time.Now()
	switch cfg.SentimentBackend {
	case config.BackendVader:
		scorer = sentiment.NewVaderScorer()
	default:
		scorer, err = sentiment.NewFinBERTScorer(cfg.FinbertModel, cfg.ModelCacheDir)
	}
	if err != nil {
		return nil, err
	}
	m.ObserveModelLoad(time.Since(start))

	slog.Info("[Main] Sentiment backend ready",
		slog.String("backend", cfg.SentimentBackend),
		slog.Duration("load_time", time.Since(start)))
	return sentiment.NewAnalyzer(scorer, cfg.SentimentBatchSize, cfg.SentimentMaxChars, m), nil
}
