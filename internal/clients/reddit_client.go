package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/finbert-ci/collector/config"
	apperrors "github.com/finbert-ci/collector/internal/errors"
	"github.com/finbert-ci/collector/internal/models"
)

const (
	redditAuthURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL  = "https://oauth.reddit.com"
)

// RedditClient reads recent submissions from subreddits through the OAuth
// API. Construction binds it to the client credentials without a network
// call; the access token is requested on the first Fetch and then reused
// (and refreshed on expiry) by the oauth2 transport. A failed token request
// surfaces from Fetch as a transport error (KindSourceTransient). Errors are
// returned to the caller without retrying; retry policy belongs to the
// orchestrator.
type RedditClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	delay     time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// NewRedditClient builds a client authenticated via the client-credentials
// grant, as Reddit script apps require.
func NewRedditClient(cfg *config.Config) *RedditClient {
	oauthConf := &clientcredentials.Config{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		TokenURL:     redditAuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	httpClient := oauthConf.Client(context.Background())
	httpClient.Timeout = cfg.SourceTimeout

	return &RedditClient{
		client:    httpClient,
		baseURL:   redditAPIURL,
		userAgent: cfg.RedditUserAgent,
		delay:     cfg.RequestDelay,
	}
}

// Fetch reads the most recent limit submissions from one community in a
// single listing call.
func (rc *RedditClient) Fetch(ctx context.Context, community string, limit int) ([]models.Submission, error) {
	if err := rc.waitTurn(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceTransient, apperrors.ComponentSource,
			"cancelled while waiting for request slot", err)
	}

	reqURL := fmt.Sprintf("%s/r/%s/new", rc.baseURL, url.PathEscape(community))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceFatal, apperrors.ComponentSource,
			"failed to build listing request", err)
	}
	q := req.URL.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceTransient, apperrors.ComponentSource,
			fmt.Sprintf("listing request for r/%s failed", community), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.New(apperrors.KindSourceAuth, apperrors.ComponentSource,
			fmt.Sprintf("credentials rejected with status %d", resp.StatusCode))

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		slog.Warn("[RedditClient] Throttled by upstream",
			slog.String("community", community),
			slog.Duration("retry_after", retryAfter))
		perr := apperrors.New(apperrors.KindSourceRateLimit, apperrors.ComponentSource,
			"upstream signalled throttling")
		perr.RetryAfter = retryAfter
		return nil, perr

	case resp.StatusCode >= 500:
		return nil, apperrors.New(apperrors.KindSourceTransient, apperrors.ComponentSource,
			fmt.Sprintf("upstream returned status %d", resp.StatusCode))

	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.New(apperrors.KindSourceFatal, apperrors.ComponentSource,
			fmt.Sprintf("unexpected status %d from listing endpoint", resp.StatusCode))
	}

	var listing models.RedditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceFatal, apperrors.ComponentSource,
			"malformed listing response", err)
	}

	posts := make([]models.Submission, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, submissionFromChild(community, child.Data))
	}

	slog.Info("[RedditClient] Fetched submissions",
		slog.String("community", community),
		slog.Int("count", len(posts)))
	return posts, nil
}

// Close releases pooled connections.
func (rc *RedditClient) Close() {
	rc.client.CloseIdleConnections()
}

// waitTurn enforces the per-process minimum inter-request delay.
func (rc *RedditClient) waitTurn(ctx context.Context) error {
	rc.mu.Lock()
	now := time.Now()
	wait := rc.lastCall.Add(rc.delay).Sub(now)
	if wait < 0 {
		wait = 0
	}
	rc.lastCall = now.Add(wait)
	rc.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func submissionFromChild(community string, data models.RedditChildData) models.Submission {
	link := data.URL
	if link == "" && data.Permalink != "" {
		link = "https://www.reddit.com" + data.Permalink
	}
	subreddit := data.Subreddit
	if subreddit == "" {
		subreddit = community
	}
	return models.Submission{
		PostID:      data.ID,
		Title:       data.Title,
		Content:     data.Selftext,
		Score:       data.Score,
		CreatedUTC:  int64(math.Floor(data.CreatedUTC)),
		Subreddit:   subreddit,
		URL:         link,
		NumComments: data.NumComments,
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
