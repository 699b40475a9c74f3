package sink

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/finbert-ci/collector/internal/errors"
	"github.com/finbert-ci/collector/internal/models"
)

// Column order is a compatibility contract with downstream consumers of
// the CSV; do not reorder.
var header = []string{
	"post_id", "title", "content", "score", "created_utc", "subreddit",
	"url", "num_comments", "sentiment_label", "sentiment_confidence",
	"sentiment_positive", "sentiment_negative", "sentiment_neutral",
	"sentiment_score", "run_id",
}

// Writer appends enriched records to a CSV file, writing the header row
// the first time it touches a new or empty file. Each Append is encoded
// into memory first and lands on disk as a single write followed by fsync,
// so a failed call never leaves a partial row behind.
type Writer struct {
	path string
	file *os.File
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Append encodes rows and flushes them durably. All errors are
// KindSinkWrite; the caller decides how to scope them.
func (w *Writer) Append(rows []models.EnrichedRecord) error {
	if len(rows) == 0 {
		return nil
	}

	if err := w.ensureOpen(); err != nil {
		return err
	}

	info, err := w.file.Stat()
	if err != nil {
		return apperrors.Wrap(apperrors.KindSinkWrite, apperrors.ComponentSink,
			"failed to stat sink file", err)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := cw.Write(header); err != nil {
			return apperrors.Wrap(apperrors.KindSinkWrite, apperrors.ComponentSink,
				"failed to encode header row", err)
		}
	}
	for _, row := range rows {
		if err := cw.Write(fields(row)); err != nil {
			return apperrors.Wrap(apperrors.KindSinkWrite, apperrors.ComponentSink,
				"failed to encode record", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperrors.Wrap(apperrors.KindSinkWrite, apperrors.ComponentSink,
			"failed to encode records", err)
	}

	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.KindSinkWrite, apperrors.ComponentSink,
			"failed to append to sink file", err)
	}
	if err := w.file.Sync(); err != nil {
		return apperrors.Wrap(apperrors.KindSinkWrite, apperrors.ComponentSink,
			"failed to flush sink file", err)
	}
	return nil
}

// Close closes the underlying file if one was opened.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// ensureOpen opens the sink lazily so an unwritable path surfaces as a
// record-scoped write error rather than a startup failure.
func (w *Writer) ensureOpen() error {
	if w.file != nil {
		return nil
	}

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Wrap(apperrors.KindSinkWrite, apperrors.ComponentSink,
				"failed to create sink directory", err)
		}
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.Wrap(apperrors.KindSinkWrite, apperrors.ComponentSink,
			"failed to open sink file", err)
	}
	w.file = f
	return nil
}

func fields(r models.EnrichedRecord) []string {
	return []string{
		r.PostID,
		r.Title,
		r.Content,
		strconv.Itoa(r.Score),
		strconv.FormatInt(r.CreatedUTC, 10),
		r.Subreddit,
		r.URL,
		strconv.Itoa(r.NumComments),
		r.Sentiment.Label,
		formatFloat(r.Sentiment.Confidence),
		formatFloat(r.Sentiment.Positive),
		formatFloat(r.Sentiment.Negative),
		formatFloat(r.Sentiment.Neutral),
		formatFloat(r.Sentiment.SentimentScore()),
		r.RunID,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
