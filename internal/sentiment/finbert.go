package sentiment

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	apperrors "github.com/finbert-ci/collector/internal/errors"
)

// FinBERTScorer runs a financial-domain sequence classifier through an ONNX
// runtime session. The pipeline owns the tokenizer and enforces the model's
// token limit; softmax over the three class logits happens inside the
// pipeline so Score returns probabilities directly.
type FinBERTScorer struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	model    string
}

// NewFinBERTScorer resolves model to a local ONNX directory (downloading it
// into cacheDir when model names a hub repository), then brings up the
// runtime session and classification pipeline. The session is created with
// hugot's default options: no accelerator execution provider is requested,
// so inference runs on the CPU.
func NewFinBERTScorer(model, cacheDir string) (*FinBERTScorer, error) {
	modelPath, err := resolveModelPath(model, cacheDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewORTSession()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindClassifierLoad, apperrors.ComponentClassifier,
			"failed to initialize inference session", err)
	}

	cfg := hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "finbertSentimentPipeline",
		Options: []hugot.TextClassificationOption{
			pipelines.WithMultiLabel(),
			pipelines.WithSoftmax(),
		},
	}
	pipeline, err := hugot.NewPipeline(session, cfg)
	if err != nil {
		session.Destroy()
		return nil, apperrors.Wrap(apperrors.KindClassifierLoad, apperrors.ComponentClassifier,
			"failed to initialize classification pipeline", err)
	}

	slog.Info("[FinBERT] Classifier ready",
		slog.String("model", model),
		slog.String("path", modelPath))

	return &FinBERTScorer{session: session, pipeline: pipeline, model: model}, nil
}

func (f *FinBERTScorer) Score(_ context.Context, texts []string) ([]Scores, error) {
	out, err := f.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindClassifierRuntime, apperrors.ComponentClassifier,
			"forward call failed", err)
	}

	scores := make([]Scores, len(texts))
	for i, classOutputs := range out.ClassificationOutputs {
		if i >= len(scores) {
			break
		}
		for _, c := range classOutputs {
			switch strings.ToLower(c.Label) {
			case "positive":
				scores[i][ClassPositive] = float64(c.Score)
			case "negative":
				scores[i][ClassNegative] = float64(c.Score)
			case "neutral":
				scores[i][ClassNeutral] = float64(c.Score)
			}
		}
	}
	return scores, nil
}

func (f *FinBERTScorer) Close() error {
	return f.session.Destroy()
}

// resolveModelPath treats model as a filesystem path first; anything that
// does not exist locally is assumed to be a hub repository id and is
// downloaded into cacheDir once, then reused on later runs.
func resolveModelPath(model, cacheDir string) (string, error) {
	if _, err := os.Stat(model); err == nil {
		return model, nil
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.KindClassifierLoad, apperrors.ComponentClassifier,
			"failed to create model cache directory", err)
	}

	cached := filepath.Join(cacheDir, strings.ReplaceAll(model, "/", "_"))
	if _, err := os.Stat(cached); err == nil {
		slog.Info("[FinBERT] Using cached model", slog.String("path", cached))
		return cached, nil
	}

	slog.Info("[FinBERT] Model not cached, downloading",
		slog.String("model", model),
		slog.String("cache_dir", cacheDir))
	downloaded, err := hugot.DownloadModel(model, cacheDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindClassifierLoad, apperrors.ComponentClassifier,
			"model download failed", err)
	}
	return downloaded, nil
}
