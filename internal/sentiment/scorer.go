package sentiment

import "context"

// Class indexes into a score vector, fixed order.
const (
	ClassPositive = iota
	ClassNegative
	ClassNeutral
	numClasses
)

// Scores holds per-class probabilities for one input. A zero vector marks
// an input the backend could not score; the analyzer substitutes a neutral
// result for it without failing the batch.
type Scores [numClasses]float64

// Scorer is the model abstraction behind the analyzer. Implementations
// receive one batch per call and must return exactly one score vector per
// input, in input order. Tokenization and the model's own input-length
// limit live inside the implementation.
type Scorer interface {
	Score(ctx context.Context, texts []string) ([]Scores, error)
	Close() error
}
