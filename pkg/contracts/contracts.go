// Package contracts defines the service interfaces of the ad planner.
//
// The planner depends on these interfaces rather than concrete types so
// that the text-generation backend, the knowledge base source, and the
// metrics sink can be swapped in tests and in the offline CLI.
package contracts

import (
	"context"

	"github.com/radicai/ad-agent-api/pkg/models"
)

// ── Text Generation ─────────────────────────────────────────

// Generator turns an ordered list of chat messages into completion text.
// Implementation: internal/router.ModelRouter (primary + fallback attempt).
type Generator interface {
	// Route sends the request and returns the completion with token usage.
	Route(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error)
}

// ProviderDriver is the integration for one kind of generation backend.
// Drivers are registered in the model router via RegisterDriver().
type ProviderDriver interface {
	// Kind returns the provider identifier (e.g., "groq", "openai").
	Kind() string

	// Call sends a chat completion request to the provider.
	Call(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error)
}

// ── Knowledge Base ──────────────────────────────────────────

// KnowledgeSource yields the grounding corpus. Implementations must return
// the same immutable value on every successful call.
type KnowledgeSource interface {
	Get(ctx context.Context) (*models.KnowledgeBase, error)
}

// ── Metrics ─────────────────────────────────────────────────

// MetricsRecorder receives the per-request metrics record.
// Implementation: internal/metrics.Recorder (zerolog + prometheus + history).
type MetricsRecorder interface {
	// Record stores a completed request's metrics.
	Record(m models.RequestMetrics)

	// RecordFailure counts a request that failed at the given stage.
	RecordFailure(stage string)
}
