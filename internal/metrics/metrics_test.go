package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	// None of these may panic when metrics are disabled.
	m.RecordPostsFetched("test", 3)
	m.RecordDeduplicated()
	m.RecordProcessed("neutral")
	m.RecordError("source", "source_transient")
	m.ObserveSentimentBatch(time.Second, 8)
	m.ObserveModelLoad(time.Second)
	m.SetUnhealthy()
	m.RecordSuccessfulRun(time.Second)
	m.RecordMemoryUsage(1 << 20)
	m.SetBuildInfo("v1", "abc", "2026-01-01")
}

func TestCountersAndLabels(t *testing.T) {
	m := New()

	m.RecordPostsFetched("test", 2)
	m.RecordDeduplicated()
	m.RecordProcessed("positive")
	m.RecordProcessed("positive")
	m.RecordProcessed("negative")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PostsFetched.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostsDeduplicated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PostsProcessed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SentimentDistribution.WithLabelValues("positive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SentimentDistribution.WithLabelValues("negative")))
}

func TestSourceErrorsCountedTwice(t *testing.T) {
	m := New()

	m.RecordError("source", "source_transient")
	m.RecordError("sink", "sink_write")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineErrors.WithLabelValues("source", "source_transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceErrors.WithLabelValues("source_transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineErrors.WithLabelValues("sink", "sink_write")))
	// Non-source errors stay off source_errors_total.
	assert.Equal(t, 1, testutil.CollectAndCount(m.SourceErrors))
}

func TestHealthLatch(t *testing.T) {
	m := New()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineStatus))

	m.SetUnhealthy()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PipelineStatus))

	m.RecordSuccessfulRun(3 * time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineStatus))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessfulRun), 0.0)
}

func TestScrapeEndpoints(t *testing.T) {
	m := New()
	m.SetBuildInfo("v1.2.3", "abc123", "2026-08-01")
	m.RecordPostsFetched("test", 1)

	s := NewServer(0, m)
	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `posts_fetched_total{community="test"} 1`)
	assert.Contains(t, string(body), `build_info{build_date="2026-08-01",commit="abc123",version="v1.2.3"} 1`)
	assert.Contains(t, string(body), "pipeline_status 1")

	resp, err = ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "healthy"}`, string(body))
}
