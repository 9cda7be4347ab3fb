// Package handlers implements the HTTP handlers for the ad planner API.
//
// Plan generation, offline validation and draft endpoints delegate to
// internal/planner; the observability endpoints read the request history
// and the model router's usage counters.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/radicai/ad-agent-api/internal/history"
	"github.com/radicai/ad-agent-api/internal/knowledge"
	"github.com/radicai/ad-agent-api/internal/planner"
	"github.com/radicai/ad-agent-api/internal/router"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/rs/zerolog/log"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

const (
	defaultHistoryLimit = 50
	streamBacklog       = 20
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Planner *planner.Planner
	Router  *router.ModelRouter
	History *history.RequestLog
}

// New creates a new Handlers instance. mr and h may be nil; the endpoints
// that need them then answer 503.
func New(p *planner.Planner, mr *router.ModelRouter, h *history.RequestLog) *Handlers {
	return &Handlers{Planner: p, Router: mr, History: h}
}

// ══════════════════════════════════════════════════════════════
// ── Plan Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// GeneratePlan builds a campaign plan from a brief.
// POST /api/chat/completions
// POST /api/v1/plans?model=<override>
func (h *Handlers) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	brief, ok := decodeBrief(w, r)
	if !ok {
		return
	}

	res, err := h.Planner.Generate(r.Context(), brief, planner.Options{
		Model: r.URL.Query().Get("model"),
	})
	if err != nil {
		respondPlannerError(w, err)
		return
	}

	w.Header().Set("X-Request-Id", res.Metrics.RequestID)
	respondJSON(w, http.StatusOK, res.Plan)
}

// validateRequest is the body of the offline validation endpoint.
type validateRequest struct {
	Brief json.RawMessage `json:"brief"`
	Plan  json.RawMessage `json:"plan"`
}

// ValidatePlan finalizes, scores and checks a caller-supplied plan without
// calling a model.
// POST /api/v1/plans/validate
func (h *Handlers) ValidatePlan(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var req validateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Brief) == 0 || len(req.Plan) == 0 {
		respondError(w, http.StatusBadRequest, "brief and plan are required")
		return
	}

	brief, err := planner.ParseBrief(req.Brief)
	if err != nil {
		respondValidationError(w, http.StatusBadRequest, err)
		return
	}
	plan, err := planner.ParsePlan(req.Plan)
	if err != nil {
		respondValidationError(w, http.StatusBadRequest, err)
		return
	}

	eval, err := h.Planner.Evaluate(r.Context(), brief, plan)
	if err != nil {
		if planner.IsValidationError(err, "") {
			respondValidationError(w, http.StatusBadRequest, err)
			return
		}
		respondPlannerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, eval)
}

// DraftPlan returns a deterministic template plan for a brief, evaluated
// the same way as a generated one. A draft that cannot be finalized (no
// supported channel in the brief) is 422; no model is involved.
// POST /api/v1/plans/draft
func (h *Handlers) DraftPlan(w http.ResponseWriter, r *http.Request) {
	brief, ok := decodeBrief(w, r)
	if !ok {
		return
	}

	eval, err := h.Planner.Evaluate(r.Context(), brief, planner.DraftPlan(brief))
	if err != nil {
		if planner.IsValidationError(err, planner.SubjectPlan) {
			respondValidationError(w, http.StatusUnprocessableEntity, err)
			return
		}
		respondPlannerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, eval)
}

// ══════════════════════════════════════════════════════════════
// ── Retrieval Handlers ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// RetrievalContext previews the grounding block a brief would receive.
// POST /api/v1/retrieval/context
func (h *Handlers) RetrievalContext(w http.ResponseWriter, r *http.Request) {
	brief, ok := decodeBrief(w, r)
	if !ok {
		return
	}

	g, err := h.Planner.Retriever().Ground(r.Context(), brief)
	if err != nil {
		respondPlannerError(w, err)
		return
	}
	if g.Metrics == nil {
		g.Metrics = []models.AdMetric{}
	}
	respondJSON(w, http.StatusOK, g)
}

// ══════════════════════════════════════════════════════════════
// ── Metrics Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListRequestMetrics returns recent per-request metrics, oldest first.
// GET /api/v1/metrics/requests?limit=N (0 returns everything retained)
func (h *Handlers) ListRequestMetrics(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondError(w, http.StatusServiceUnavailable, "request history not available")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	respondJSON(w, http.StatusOK, h.History.Recent(limit))
}

// GetRequestMetrics returns one request's metrics.
// GET /api/v1/metrics/requests/{requestId}
func (h *Handlers) GetRequestMetrics(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondError(w, http.StatusServiceUnavailable, "request history not available")
		return
	}

	id := chi.URLParam(r, "requestId")
	m, ok := h.History.Find(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no metrics for request '%s'", id))
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// StreamRequestMetrics streams request metrics via Server-Sent Events,
// starting with a short backlog.
// GET /api/v1/metrics/requests/stream
func (h *Handlers) StreamRequestMetrics(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondError(w, http.StatusServiceUnavailable, "request history not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Streams outlive the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug().Err(err).Msg("Could not clear write deadline for metrics stream")
	}

	ch := h.History.Subscribe()
	defer h.History.Unsubscribe(ch)

	for _, m := range h.History.Recent(streamBacklog) {
		writeEvent(w, m)
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, m)
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, m models.RequestMetrics) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// ══════════════════════════════════════════════════════════════
// ── Model Router Handlers ────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// providerInfo is a configured provider as shown to API consumers.
type providerInfo struct {
	models.ModelProvider
	Configured bool   `json:"configured"`
	Role       string `json:"role,omitempty"`
}

// ListProviders returns the configured providers with their attempt roles.
// API keys are never included.
// GET /api/v1/models/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	if h.Router == nil {
		respondError(w, http.StatusServiceUnavailable, "model router not available")
		return
	}

	policy := h.Router.Policy()
	providers := h.Router.Providers()
	out := make([]providerInfo, len(providers))
	for i, p := range providers {
		info := providerInfo{ModelProvider: p, Configured: p.APIKey != ""}
		switch {
		case p.Name == policy.Primary.Provider:
			info.Role = "primary"
		case policy.Fallback != nil && p.Name == policy.Fallback.Provider:
			info.Role = "fallback"
		}
		out[i] = info
	}
	respondJSON(w, http.StatusOK, out)
}

// ModelUsage returns per-provider attempt, failure and token totals.
// GET /api/v1/models/usage
func (h *Handlers) ModelUsage(w http.ResponseWriter, r *http.Request) {
	if h.Router == nil {
		respondError(w, http.StatusServiceUnavailable, "model router not available")
		return
	}
	respondJSON(w, http.StatusOK, h.Router.Usage())
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	return body, true
}

func decodeBrief(w http.ResponseWriter, r *http.Request) (*models.Brief, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	brief, err := planner.ParseBrief(body)
	if err != nil {
		respondValidationError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return brief, true
}

// respondPlannerError maps planner failures to HTTP statuses: brief
// problems are 400, model output problems 502, knowledge base and other
// failures 500.
func respondPlannerError(w http.ResponseWriter, err error) {
	var ve *planner.ValidationError
	switch {
	case errors.As(err, &ve) && ve.Subject == planner.SubjectBrief:
		respondValidationError(w, http.StatusBadRequest, err)
	case errors.As(err, &ve):
		respondValidationError(w, http.StatusBadGateway, err)
	case errors.Is(err, planner.ErrNonJSON),
		errors.Is(err, planner.ErrEmptyCompletion),
		errors.Is(err, planner.ErrGeneration):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusServiceUnavailable, "request canceled")
	case errors.Is(err, knowledge.ErrLoad):
		log.Error().Err(err).Msg("Knowledge base unavailable")
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Error().Err(err).Msg("Plan request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondValidationError(w http.ResponseWriter, status int, err error) {
	var ve *planner.ValidationError
	if !errors.As(err, &ve) {
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, status, map[string]interface{}{
		"error":   fmt.Sprintf("invalid %s", ve.Subject),
		"details": ve.Issues,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
