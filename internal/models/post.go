package models

// Submission is a single Reddit post as returned by the source client.
type Submission struct {
	PostID      string `json:"post_id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Score       int    `json:"score"`
	CreatedUTC  int64  `json:"created_utc"`
	Subreddit   string `json:"subreddit"`
	URL         string `json:"url"`
	NumComments int    `json:"num_comments"`
}

// EnrichedRecord is a Submission plus its sentiment scores and the id of
// the run that produced it. This is the sink's row type; rows are immutable
// once written.
type EnrichedRecord struct {
	Submission
	Sentiment SentimentResult `json:"sentiment"`
	RunID     string          `json:"run_id"`
}
