package collector

import (
	"context"

	"github.com/finbert-ci/collector/internal/dedup"
	"github.com/finbert-ci/collector/internal/models"
)

// Source yields recent submissions for one community per call.
type Source interface {
	Fetch(ctx context.Context, community string, limit int) ([]models.Submission, error)
	Close()
}

// DedupStore is the two-tier seen-post membership store.
type DedupStore interface {
	Seen(id string) (bool, error)
	MarkSeen(id string, firstSeenUTC int64) error
	Stats() (dedup.Stats, error)
	Close() error
}

// Analyzer scores submission texts, order- and length-preserving.
type Analyzer interface {
	Analyze(ctx context.Context, texts []string) []models.SentimentResult
	Close() error
}

// Sink appends enriched records to the tabular output.
type Sink interface {
	Append(rows []models.EnrichedRecord) error
	Close() error
}
