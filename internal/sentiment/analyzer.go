package sentiment

import (
	"context"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/finbert-ci/collector/internal/errors"
	"github.com/finbert-ci/collector/internal/metrics"
	"github.com/finbert-ci/collector/internal/models"
	"github.com/finbert-ci/collector/internal/utils"
)

// Analyzer turns submission text into sentiment results. It owns everything
// backend-independent: preprocessing, the character ceiling, batching,
// label selection, and failure fallbacks. The scorer behind it may be the
// FinBERT pipeline, the VADER lexicon, or nothing at all when sentiment is
// disabled.
type Analyzer struct {
	scorer    Scorer // nil when sentiment is disabled
	batchSize int
	maxChars  int
	metrics   *metrics.Metrics
}

func NewAnalyzer(scorer Scorer, batchSize, maxChars int, m *metrics.Metrics) *Analyzer {
	return &Analyzer{
		scorer:    scorer,
		batchSize: batchSize,
		maxChars:  maxChars,
		metrics:   m,
	}
}

// InputText builds the classifier input for a submission: title and body
// joined with a single space, whitespace-trimmed.
func InputText(title, body string) string {
	return strings.TrimSpace(title + " " + body)
}

// NeutralResult is the fallback result used for empty inputs, disabled
// sentiment, and failed batches.
func NeutralResult() models.SentimentResult {
	return models.SentimentResult{
		Label:      models.LabelNeutral,
		Confidence: 1.0,
		Neutral:    1.0,
	}
}

// Analyze scores texts in configured-size batches, preserving order and
// length. Inputs that are empty after preprocessing become neutral without
// touching the scorer; a failed batch becomes neutral for every input in
// it and the run continues.
func (a *Analyzer) Analyze(ctx context.Context, texts []string) []models.SentimentResult {
	results := make([]models.SentimentResult, len(texts))

	// Indexes still needing the scorer after the empty-input shortcut.
	pending := make([]int, 0, len(texts))
	prepared := make([]string, len(texts))
	for i, text := range texts {
		prepared[i] = a.preprocess(text)
		if prepared[i] == "" || a.scorer == nil {
			results[i] = NeutralResult()
			continue
		}
		pending = append(pending, i)
	}
	if a.scorer == nil || len(pending) == 0 {
		return results
	}

	for _, batch := range utils.Chunk(pending, a.batchSize) {
		batchTexts := make([]string, len(batch))
		for j, idx := range batch {
			batchTexts[j] = prepared[idx]
		}

		start := time.Now()
		scores, err := a.scorer.Score(ctx, batchTexts)
		a.metrics.ObserveSentimentBatch(time.Since(start), len(batchTexts))

		if err != nil || len(scores) != len(batchTexts) {
			if err != nil {
				slog.Warn("[Analyzer] Batch failed, falling back to neutral",
					slog.Int("batch_size", len(batchTexts)),
					slog.String("error", err.Error()))
			} else {
				slog.Warn("[Analyzer] Scorer returned wrong result count, falling back to neutral",
					slog.Int("want", len(batchTexts)),
					slog.Int("got", len(scores)))
			}
			a.metrics.RecordError(apperrors.ComponentClassifier, string(apperrors.KindClassifierRuntime))
			for _, idx := range batch {
				results[idx] = NeutralResult()
			}
			continue
		}

		for j, idx := range batch {
			results[idx] = resultFromScores(scores[j])
		}
	}
	return results
}

// AnalyzeOne scores a single text.
func (a *Analyzer) AnalyzeOne(ctx context.Context, text string) models.SentimentResult {
	return a.Analyze(ctx, []string{text})[0]
}

// Close tears down the scorer, if any.
func (a *Analyzer) Close() error {
	if a.scorer == nil {
		return nil
	}
	return a.scorer.Close()
}

// preprocess cleans markdown and links out of the text, trims it, and
// applies the character ceiling. The ceiling is on top of the model's own
// token limit, which the scorer enforces.
func (a *Analyzer) preprocess(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = strings.TrimSpace(markdownToText(text))
	if runes := []rune(text); a.maxChars > 0 && len(runes) > a.maxChars {
		text = string(runes[:a.maxChars])
	}
	return text
}

// resultFromScores picks the label by argmax with ties broken in the fixed
// order neutral > positive > negative. A zero vector means the backend
// could not score this input, which maps to the neutral fallback.
func resultFromScores(s Scores) models.SentimentResult {
	if s[ClassPositive] == 0 && s[ClassNegative] == 0 && s[ClassNeutral] == 0 {
		return NeutralResult()
	}

	label, confidence := models.LabelNeutral, s[ClassNeutral]
	if s[ClassPositive] > confidence {
		label, confidence = models.LabelPositive, s[ClassPositive]
	}
	if s[ClassNegative] > confidence {
		label, confidence = models.LabelNegative, s[ClassNegative]
	}

	return models.SentimentResult{
		Label:      label,
		Confidence: confidence,
		Positive:   s[ClassPositive],
		Negative:   s[ClassNegative],
		Neutral:    s[ClassNeutral],
	}
}
