package sentiment

import (
	"context"

	"github.com/jonreiter/govader"
)

// VaderScorer scores text with the VADER lexicon. It needs no model files
// and no accelerator, which makes it the fallback backend for environments
// where shipping an ONNX runtime is not worth it. VADER's polarity
// proportions already form a distribution over the three classes.
type VaderScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewVaderScorer() *VaderScorer {
	return &VaderScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *VaderScorer) Score(_ context.Context, texts []string) ([]Scores, error) {
	out := make([]Scores, len(texts))
	for i, text := range texts {
		polarity := v.analyzer.PolarityScores(text)
		out[i][ClassPositive] = polarity.Positive
		out[i][ClassNegative] = polarity.Negative
		out[i][ClassNeutral] = polarity.Neutral
	}
	return out, nil
}

func (v *VaderScorer) Close() error {
	return nil
}
