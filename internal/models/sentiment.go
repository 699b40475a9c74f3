package models

// Sentiment labels in the classifier's fixed class order.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// SentimentResult holds the per-class probabilities for one input together
// with the winning label and its probability. The three class probabilities
// sum to ~1 within model rounding.
type SentimentResult struct {
	Label      string  `json:"sentiment_label"`
	Confidence float64 `json:"sentiment_confidence"`
	Positive   float64 `json:"sentiment_positive"`
	Negative   float64 `json:"sentiment_negative"`
	Neutral    float64 `json:"sentiment_neutral"`
}

// SentimentScore is the legacy signed score, positive minus negative.
func (r SentimentResult) SentimentScore() float64 {
	return r.Positive - r.Negative
}
