// Package metrics records per-request planner metrics.
//
// Every record goes three places: a structured "request_metrics" log
// event, Prometheus collectors on the recorder's own registry, and the
// in-memory request history.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/radicai/ad-agent-api/internal/history"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/rs/zerolog/log"
)

const namespace = "ad_planner"

// OutcomeSuccess labels requests that produced a plan.
const OutcomeSuccess = "success"

// Recorder implements contracts.MetricsRecorder.
type Recorder struct {
	registry *prometheus.Registry
	history  *history.RequestLog

	requests          *prometheus.CounterVec
	latency           *prometheus.HistogramVec
	tokens            *prometheus.CounterVec
	hallucination     prometheus.Histogram
	validationErrors  prometheus.Counter
	groundedRequests  *prometheus.CounterVec
	generationAttempt *prometheus.HistogramVec
}

// NewRecorder creates a recorder with a private registry. history may be nil.
func NewRecorder(h *history.RequestLog) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		history:  h,

		// Labels: outcome (success or the failing stage)
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Plan requests by outcome",
		}, []string{"outcome"}),

		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "End-to-end plan generation latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"provider"}),

		// Labels: provider, kind (prompt, completion)
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Generation tokens by provider and kind",
		}, []string{"provider", "kind"}),

		hallucination: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hallucination_score",
			Help:      "Distribution of plan hallucination scores",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
		}),

		validationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Validation error strings reported on generated plans",
		}),

		groundedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grounded_requests_total",
			Help:      "Successful requests by whether grounding context was injected",
		}, []string{"grounded"}),

		generationAttempt: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts",
			Help:      "Attempts needed before a provider returned a completion",
			Buckets:   []float64{1, 2},
		}, []string{"provider"}),
	}
}

// Record logs, counts and stores a completed request.
func (r *Recorder) Record(m models.RequestMetrics) {
	r.requests.WithLabelValues(OutcomeSuccess).Inc()
	r.latency.WithLabelValues(m.Provider).Observe(float64(m.Latency) / 1000)
	r.tokens.WithLabelValues(m.Provider, "prompt").Add(float64(m.Tokens.Prompt))
	r.tokens.WithLabelValues(m.Provider, "completion").Add(float64(m.Tokens.Completion))
	r.hallucination.Observe(m.HallucinationFlags.Score)
	r.validationErrors.Add(float64(len(m.ValidationErrors)))
	r.groundedRequests.WithLabelValues(fmt.Sprint(m.Grounded)).Inc()
	if m.Attempts > 0 {
		r.generationAttempt.WithLabelValues(m.Provider).Observe(float64(m.Attempts))
	}

	if r.history != nil {
		r.history.Add(m)
	}

	logSummary(m)
}

// RecordFailure counts a request that failed at stage.
func (r *Recorder) RecordFailure(stage string) {
	r.requests.WithLabelValues(stage).Inc()
}

// History returns the recorder's request log, or nil.
func (r *Recorder) History() *history.RequestLog { return r.history }

// Registry exposes the recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func logSummary(m models.RequestMetrics) {
	ev := log.Info()
	if m.HallucinationFlags.Score > 0 || len(m.ValidationErrors) > 0 {
		ev = log.Warn()
	}
	ev.Str("type", "request_metrics").
		Str("request_id", m.RequestID).
		Str("campaign_id", m.CampaignID).
		Int64("tokens_total", m.Tokens.Total).
		Int64("tokens_prompt", m.Tokens.Prompt).
		Int64("tokens_completion", m.Tokens.Completion).
		Int64("latency_ms", m.Latency).
		Str("provider", m.Provider).
		Str("model", m.Model).
		Int("attempts", m.Attempts).
		Bool("grounded", m.Grounded).
		Str("hallucination", fmt.Sprintf("%.1f%%", m.HallucinationFlags.Score*100)).
		Bool("features_invented", m.HallucinationFlags.ProductFeaturesInvented).
		Bool("invalid_channels", m.HallucinationFlags.InvalidChannels).
		Strs("validation_errors", m.ValidationErrors).
		Msg("📊 Request metrics")
}
