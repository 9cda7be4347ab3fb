package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/radicai/ad-agent-api/internal/history"
	"github.com/radicai/ad-agent-api/internal/metrics"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() models.RequestMetrics {
	return models.RequestMetrics{
		RequestID:  "req_1",
		CampaignID: "cmp_1",
		Tokens:     models.TokenCounts{Prompt: 100, Completion: 50, Total: 150},
		Latency:    1200,
		Provider:   "groq",
		Model:      "llama",
		Attempts:   1,
		Grounded:   true,
		HallucinationFlags: models.HallucinationFlags{
			ProductFeaturesInvented: true,
			Score:                   0.2,
		},
		ValidationErrors: []string{"price mismatch"},
	}
}

func TestRecorder_Record(t *testing.T) {
	h := history.NewRequestLog(10)
	r := metrics.NewRecorder(h)

	r.Record(sample())
	r.Record(sample())

	assert.Equal(t, 2, h.Len())

	body := scrape(t, r)
	assert.Contains(t, body, `ad_planner_requests_total{outcome="success"} 2`)
	assert.Contains(t, body, `ad_planner_tokens_total{kind="prompt",provider="groq"} 200`)
	assert.Contains(t, body, `ad_planner_tokens_total{kind="completion",provider="groq"} 100`)
	assert.Contains(t, body, `ad_planner_validation_errors_total 2`)
	assert.Contains(t, body, `ad_planner_grounded_requests_total{grounded="true"} 2`)
	assert.Contains(t, body, `ad_planner_hallucination_score_count 2`)
}

func TestRecorder_RecordFailure(t *testing.T) {
	r := metrics.NewRecorder(nil)
	r.RecordFailure("generation")
	r.RecordFailure("generation")
	r.RecordFailure("parse")

	body := scrape(t, r)
	assert.Contains(t, body, `ad_planner_requests_total{outcome="generation"} 2`)
	assert.Contains(t, body, `ad_planner_requests_total{outcome="parse"} 1`)
	assert.Nil(t, r.History())
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a := metrics.NewRecorder(nil)
	b := metrics.NewRecorder(nil)
	a.RecordFailure("parse")

	assert.Contains(t, scrape(t, a), `outcome="parse"`)
	assert.NotContains(t, scrape(t, b), `outcome="parse"`)
}

func scrape(t *testing.T, r *metrics.Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(data)
}
