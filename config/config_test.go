package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/finbert-ci/collector/internal/errors"
)

func setRequired(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_ID", "id")
	t.Setenv("REDDIT_CLIENT_SECRET", "secret")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "finbert-ci/0.1", cfg.RedditUserAgent)
	assert.Equal(t, []string{"CryptoCurrency", "Bitcoin", "ethereum"}, cfg.Subreddits)
	assert.Equal(t, 100, cfg.FetchLimit)
	assert.Equal(t, "/data/reddit_sentiment.csv", cfg.OutputPath)
	assert.Equal(t, "/data/dupes.db", cfg.DedupDBPath)
	assert.Equal(t, 100000, cfg.DedupCapacity)
	assert.True(t, cfg.EnableSentiment)
	assert.Equal(t, BackendFinBERT, cfg.SentimentBackend)
	assert.Equal(t, "ProsusAI/finbert", cfg.FinbertModel)
	assert.Equal(t, 8, cfg.SentimentBatchSize)
	assert.Equal(t, 400, cfg.SentimentMaxChars)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, 8000, cfg.MetricsPort)
	assert.Equal(t, time.Hour, cfg.RunDeadline)
	assert.Equal(t, 30*time.Second, cfg.SourceTimeout)
	assert.Equal(t, time.Second, cfg.RequestDelay)
	assert.Equal(t, time.Minute, cfg.MaxRetryAfter)
	assert.Empty(t, cfg.RunID)
}

func TestFromEnvMissingCredentials(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_ID", "")
	t.Setenv("REDDIT_CLIENT_SECRET", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
	assert.Equal(t, 2, apperrors.ExitCode(err))
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SUBREDDITS", " wallstreetbets , stocks ,, investing ")
	t.Setenv("FETCH_LIMIT", "25")
	t.Setenv("ENABLE_SENTIMENT", "false")
	t.Setenv("SENTIMENT_BACKEND", "VADER")
	t.Setenv("ENABLE_METRICS", "0")
	t.Setenv("RUN_DEADLINE", "90s")
	t.Setenv("RUN_ID", "backfill-7")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"wallstreetbets", "stocks", "investing"}, cfg.Subreddits)
	assert.Equal(t, 25, cfg.FetchLimit)
	assert.False(t, cfg.EnableSentiment)
	assert.Equal(t, BackendVader, cfg.SentimentBackend)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, 90*time.Second, cfg.RunDeadline)
	assert.Equal(t, "backfill-7", cfg.RunID)
}

func TestFromEnvRejectsEmptySubreddits(t *testing.T) {
	setRequired(t)
	t.Setenv("SUBREDDITS", " , ,")

	_, err := FromEnv()
	assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
}

func TestFromEnvRejectsUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("SENTIMENT_BACKEND", "bert-large")

	_, err := FromEnv()
	assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	setRequired(t)
	t.Setenv("FETCH_LIMIT", "many")
	t.Setenv("RUN_DEADLINE", "soon")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.FetchLimit)
	assert.Equal(t, time.Hour, cfg.RunDeadline)
}
