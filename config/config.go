package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"

	apperrors "github.com/finbert-ci/collector/internal/errors"
)

// Sentiment backends selectable via SENTIMENT_BACKEND.
const (
	BackendFinBERT = "finbert"
	BackendVader   = "vader"
)

// Config is the immutable run configuration, read once at process start.
type Config struct {
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	Subreddits         []string
	FetchLimit         int

	OutputPath string
	RunID      string

	DedupDBPath   string
	DedupCapacity int

	EnableSentiment    bool
	SentimentBackend   string
	FinbertModel       string
	SentimentBatchSize int
	SentimentMaxChars  int
	ModelCacheDir      string

	EnableMetrics bool
	MetricsPort   int

	RunDeadline   time.Duration
	SourceTimeout time.Duration
	RequestDelay  time.Duration
	MaxRetryAfter time.Duration

	LogLevel string
}

// LoadEnv loads config/envs/.env.<env> into the process environment,
// falling back to whatever the environment already holds.
func LoadEnv(env string) {
	envFile := "config/envs/.env." + env
	if err := gotenv.Load(envFile); err != nil {
		slog.Warn("No .env file found, using OS environment")
	}
}

// FromEnv reads the recognized environment variables into a Config and
// validates the required fields. Unrecognized variables are ignored.
func FromEnv() (*Config, error) {
	cfg := &Config{
		RedditClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		RedditClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", "finbert-ci/0.1"),
		Subreddits:         splitList(getEnv("SUBREDDITS", "CryptoCurrency,Bitcoin,ethereum")),
		FetchLimit:         getInt("FETCH_LIMIT", 100),
		OutputPath:         getEnv("OUTPUT_PATH", "/data/reddit_sentiment.csv"),
		RunID:              os.Getenv("RUN_ID"),
		DedupDBPath:        getEnv("DEDUP_DB_PATH", "/data/dupes.db"),
		DedupCapacity:      getInt("DEDUP_CAPACITY", 100000),
		EnableSentiment:    getBool("ENABLE_SENTIMENT", true),
		SentimentBackend:   strings.ToLower(getEnv("SENTIMENT_BACKEND", BackendFinBERT)),
		FinbertModel:       getEnv("FINBERT_MODEL", "ProsusAI/finbert"),
		SentimentBatchSize: getInt("SENTIMENT_BATCH_SIZE", 8),
		SentimentMaxChars:  getInt("SENTIMENT_MAX_CHARS", 400),
		ModelCacheDir:      getEnv("MODEL_CACHE_DIR", "/data/models"),
		EnableMetrics:      getBool("ENABLE_METRICS", true),
		MetricsPort:        getInt("METRICS_PORT", 8000),
		RunDeadline:        getDuration("RUN_DEADLINE", time.Hour),
		SourceTimeout:      getDuration("SOURCE_TIMEOUT", 30*time.Second),
		RequestDelay:       getDuration("REQUEST_DELAY", time.Second),
		MaxRetryAfter:      getDuration("MAX_RETRY_AFTER", time.Minute),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RedditClientID == "" {
		return apperrors.New(apperrors.KindConfig, apperrors.ComponentConfig, "REDDIT_CLIENT_ID is required")
	}
	if c.RedditClientSecret == "" {
		return apperrors.New(apperrors.KindConfig, apperrors.ComponentConfig, "REDDIT_CLIENT_SECRET is required")
	}
	if len(c.Subreddits) == 0 {
		return apperrors.New(apperrors.KindConfig, apperrors.ComponentConfig, "SUBREDDITS must name at least one community")
	}
	if c.SentimentBackend != BackendFinBERT && c.SentimentBackend != BackendVader {
		return apperrors.New(apperrors.KindConfig, apperrors.ComponentConfig,
			fmt.Sprintf("unknown SENTIMENT_BACKEND %q", c.SentimentBackend))
	}
	if c.FetchLimit < 1 {
		return apperrors.New(apperrors.KindConfig, apperrors.ComponentConfig, "FETCH_LIMIT must be positive")
	}
	if c.SentimentBatchSize < 1 {
		return apperrors.New(apperrors.KindConfig, apperrors.ComponentConfig, "SENTIMENT_BATCH_SIZE must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value",
			slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Ignoring unparseable duration environment value",
			slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
