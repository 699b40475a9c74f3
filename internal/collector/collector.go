package collector

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/finbert-ci/collector/config"
	apperrors "github.com/finbert-ci/collector/internal/errors"
	"github.com/finbert-ci/collector/internal/metrics"
	"github.com/finbert-ci/collector/internal/models"
	"github.com/finbert-ci/collector/internal/sentiment"
)

// Collector executes one pipeline run from start to finish: fetch every
// configured community, drop already-seen submissions, score the rest,
// append them to the sink, and record metrics along the way. It holds no
// state across runs; everything durable lives in the dedup store and the
// sink. Recurrence belongs to the external invoker.
type Collector struct {
	cfg      *config.Config
	source   Source
	dedup    DedupStore
	analyzer Analyzer
	sink     Sink
	metrics  *metrics.Metrics
	runID    string
}

func New(cfg *config.Config, source Source, store DedupStore, analyzer Analyzer, sink Sink, m *metrics.Metrics) *Collector {
	runID := cfg.RunID
	if runID == "" {
		runID = NewRunID()
	}
	return &Collector{
		cfg:      cfg,
		source:   source,
		dedup:    store,
		analyzer: analyzer,
		sink:     sink,
		metrics:  m,
		runID:    runID,
	}
}

// RunID returns the identifier stamped on every record of this run.
func (c *Collector) RunID() string {
	return c.runID
}

// Run walks the communities, filters, classifies, and commits. The commit
// order per record is sink row first, seen-id second: a crash between the
// two re-emits one row on a future run instead of silently losing it.
func (c *Collector) Run(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunDeadline)
	defer cancel()

	slog.Info("[Collector] Starting run",
		slog.String("run_id", c.runID),
		slog.Any("subreddits", c.cfg.Subreddits),
		slog.Int("fetch_limit", c.cfg.FetchLimit))

	pending, err := c.fetchAll(ctx)
	if err != nil && apperrors.KindOf(err) != apperrors.KindDeadlineExceeded {
		c.metrics.SetUnhealthy()
		c.metrics.RecordError(apperrors.ComponentOf(err), string(apperrors.KindOf(err)))
		return err
	}
	deadlineHit := err != nil

	records := c.classify(ctx, pending)
	c.commit(records)

	c.logStats()
	c.recordMemoryUsage()

	if deadlineHit {
		c.metrics.SetUnhealthy()
		c.metrics.RecordError(apperrors.ComponentPipeline, string(apperrors.KindDeadlineExceeded))
		c.metrics.ObservePipelineDuration(time.Since(start))
		slog.Error("[Collector] Run deadline exceeded",
			slog.String("run_id", c.runID),
			slog.Duration("deadline", c.cfg.RunDeadline))
		return err
	}

	c.metrics.RecordSuccessfulRun(time.Since(start))
	slog.Info("[Collector] Run completed",
		slog.String("run_id", c.runID),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// fetchAll walks the configured communities in order and returns the
// unseen submissions. Source errors are community-scoped except auth
// failures; dedup read errors and the run deadline abort the walk.
func (c *Collector) fetchAll(ctx context.Context) ([]models.Submission, error) {
	var pending []models.Submission

	for _, community := range c.cfg.Subreddits {
		if ctx.Err() != nil {
			return pending, apperrors.New(apperrors.KindDeadlineExceeded, apperrors.ComponentPipeline,
				"run deadline exceeded before community "+community)
		}

		posts, err := c.fetchCommunity(ctx, community)
		if err != nil {
			kind := apperrors.KindOf(err)
			if kind == apperrors.KindSourceAuth {
				return pending, err
			}
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return pending, apperrors.Wrap(apperrors.KindDeadlineExceeded, apperrors.ComponentPipeline,
					"run deadline exceeded while fetching "+community, err)
			}
			slog.Warn("[Collector] Skipping community after fetch failure",
				slog.String("community", community),
				slog.String("error", err.Error()))
			c.metrics.RecordError(apperrors.ComponentSource, string(kind))
			continue
		}

		c.metrics.RecordPostsFetched(community, len(posts))

		for _, post := range posts {
			seen, err := c.dedup.Seen(post.PostID)
			if err != nil {
				return pending, err
			}
			if seen {
				c.metrics.RecordDeduplicated()
				continue
			}
			pending = append(pending, post)
		}
	}
	return pending, nil
}

// fetchCommunity fetches once, honouring a single rate-limit retry with
// the upstream's suggested back-off capped at the configured maximum.
func (c *Collector) fetchCommunity(ctx context.Context, community string) ([]models.Submission, error) {
	posts, err := c.source.Fetch(ctx, community, c.cfg.FetchLimit)
	if err == nil || apperrors.KindOf(err) != apperrors.KindSourceRateLimit {
		return posts, err
	}

	wait := apperrors.RetryAfterOf(err)
	if wait <= 0 {
		wait = c.cfg.RequestDelay
	}
	if wait > c.cfg.MaxRetryAfter {
		wait = c.cfg.MaxRetryAfter
	}
	c.metrics.RecordError(apperrors.ComponentSource, string(apperrors.KindSourceRateLimit))
	slog.Warn("[Collector] Rate limited, retrying once",
		slog.String("community", community),
		slog.Duration("backoff", wait))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}
	return c.source.Fetch(ctx, community, c.cfg.FetchLimit)
}

// classify scores the pending submissions and assembles enriched records
// in fetch order. Sub-batching and classifier fallbacks live in the
// analyzer.
func (c *Collector) classify(ctx context.Context, pending []models.Submission) []models.EnrichedRecord {
	if len(pending) == 0 {
		return nil
	}

	texts := make([]string, len(pending))
	for i, post := range pending {
		texts[i] = sentiment.InputText(post.Title, post.Content)
	}

	results := c.analyzer.Analyze(ctx, texts)

	records := make([]models.EnrichedRecord, len(pending))
	for i, post := range pending {
		records[i] = models.EnrichedRecord{
			Submission: post,
			Sentiment:  results[i],
			RunID:      c.runID,
		}
	}
	return records
}

// commit writes each record through the sink and, only on write success,
// marks its id seen and counts it. A failed sink write drops the record
// and leaves the id unmarked so a later run can retry it.
func (c *Collector) commit(records []models.EnrichedRecord) {
	for _, record := range records {
		if err := c.sink.Append([]models.EnrichedRecord{record}); err != nil {
			slog.Error("[Collector] Dropping record after sink failure",
				slog.String("post_id", record.PostID),
				slog.String("error", err.Error()))
			c.metrics.RecordError(apperrors.ComponentSink, string(apperrors.KindSinkWrite))
			continue
		}

		if err := c.dedup.MarkSeen(record.PostID, record.CreatedUTC); err != nil {
			slog.Error("[Collector] Failed to mark record as seen",
				slog.String("post_id", record.PostID),
				slog.String("error", err.Error()))
			c.metrics.RecordError(apperrors.ComponentDedup, string(apperrors.KindDedupWrite))
			continue
		}

		c.metrics.RecordProcessed(record.Sentiment.Label)
	}
}

func (c *Collector) logStats() {
	stats, err := c.dedup.Stats()
	if err != nil {
		slog.Warn("[Collector] Failed to read dedup stats", slog.String("error", err.Error()))
		return
	}
	slog.Info("[Collector] Dedup store stats",
		slog.Int64("total_seen", stats.TotalSeen),
		slog.Int64("oldest_seen_utc", stats.OldestSeenUTC),
		slog.Int64("newest_seen_utc", stats.NewestSeenUTC),
		slog.Int("filter_capacity", stats.Capacity),
		slog.Float64("filter_error_rate", stats.ErrorRate))
}

func (c *Collector) recordMemoryUsage() {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return
	}
	c.metrics.RecordMemoryUsage(info.RSS)
}
