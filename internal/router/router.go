// Package router implements the generation model router.
//
// The router holds the configured providers and the driver registry, and
// runs each request through an AttemptPolicy: the primary target first,
// then at most one fallback target. It tracks per-provider latency and
// token usage.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/radicai/ad-agent-api/pkg/contracts"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("ad-agent-api/router")

var (
	// ErrAllAttemptsFailed wraps the last attempt's error when no target succeeded.
	ErrAllAttemptsFailed = errors.New("all generation attempts failed")
	// ErrEmptyResponse is returned when a provider answers without content.
	ErrEmptyResponse = errors.New("empty response")
	// ErrUnknownProvider is returned for a target naming no registered provider.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ModelRouter routes generation requests to configured providers.
type ModelRouter struct {
	policy AttemptPolicy

	driversMu sync.RWMutex
	drivers   map[string]contracts.ProviderDriver

	providersMu sync.RWMutex
	providers   map[string]models.ModelProvider

	// Latency tracking: provider name → rolling avg ms
	latencyMu sync.RWMutex
	latencies map[string]int64

	usageMu sync.RWMutex
	usage   map[string]*models.ProviderUsage
}

// NewModelRouter creates a router with the built-in OpenAI-compatible
// drivers registered.
func NewModelRouter(policy AttemptPolicy) *ModelRouter {
	mr := &ModelRouter{
		policy:    policy,
		drivers:   make(map[string]contracts.ProviderDriver),
		providers: make(map[string]models.ModelProvider),
		latencies: make(map[string]int64),
		usage:     make(map[string]*models.ProviderUsage),
	}
	mr.RegisterDriver(NewOpenAIDriver(KindGroq, DefaultGroqBaseURL))
	mr.RegisterDriver(NewOpenAIDriver(KindOpenAI, DefaultOpenAIBaseURL))
	return mr
}

// ── Driver Registry ─────────────────────────────────────────

// RegisterDriver adds or replaces the driver for its kind.
func (mr *ModelRouter) RegisterDriver(d contracts.ProviderDriver) {
	mr.driversMu.Lock()
	defer mr.driversMu.Unlock()
	mr.drivers[d.Kind()] = d
}

// GetDriver returns the driver for kind, or nil.
func (mr *ModelRouter) GetDriver(kind string) contracts.ProviderDriver {
	mr.driversMu.RLock()
	defer mr.driversMu.RUnlock()
	return mr.drivers[kind]
}

// ListDrivers returns the registered driver kinds in sorted order.
func (mr *ModelRouter) ListDrivers() []string {
	mr.driversMu.RLock()
	defer mr.driversMu.RUnlock()
	kinds := make([]string, 0, len(mr.drivers))
	for k := range mr.drivers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ── Providers ───────────────────────────────────────────────

// RegisterProvider adds or replaces a provider by name.
func (mr *ModelRouter) RegisterProvider(p models.ModelProvider) {
	mr.providersMu.Lock()
	defer mr.providersMu.Unlock()
	mr.providers[p.Name] = p
}

// Providers returns the configured providers sorted by name.
func (mr *ModelRouter) Providers() []models.ModelProvider {
	mr.providersMu.RLock()
	defer mr.providersMu.RUnlock()
	out := make([]models.ModelProvider, 0, len(mr.providers))
	for _, p := range mr.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Policy returns the router's attempt policy.
func (mr *ModelRouter) Policy() AttemptPolicy {
	return mr.policy
}

// ── Routing ─────────────────────────────────────────────────

// Route sends the request to the primary target and, if that attempt fails,
// once to the fallback target. Cancellation of ctx stops immediately; a
// per-attempt deadline counts as a failed attempt and falls through.
func (mr *ModelRouter) Route(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error) {
	attempts := mr.policy.Attempts(req.Model)

	var lastErr error
	for i, target := range attempts {
		resp, err := mr.attempt(ctx, i+1, target, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrAllAttemptsFailed, ctx.Err())
		}
		if i+1 < len(attempts) {
			log.Warn().
				Err(err).
				Str("provider", target.Provider).
				Str("model", target.Model).
				Str("fallback_provider", attempts[i+1].Provider).
				Msg("Provider call failed, trying fallback")
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrAllAttemptsFailed, lastErr)
}

func (mr *ModelRouter) attempt(ctx context.Context, n int, target Target, req *models.RouteRequest) (*models.RouteResponse, error) {
	ctx, span := tracer.Start(ctx, "router.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.Int("router.attempt", n),
		attribute.String("router.provider", target.Provider),
	)

	provider, ok := mr.provider(target.Provider)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownProvider, target.Provider)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	driver := mr.GetDriver(provider.Kind)
	if driver == nil {
		err := fmt.Errorf("no driver registered for provider kind %q", provider.Kind)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	call := *req
	call.Model = target.Model
	if call.Model == "" {
		call.Model = provider.DefaultModel
	}
	span.SetAttributes(attribute.String("router.model", call.Model))

	if mr.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mr.policy.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := driver.Call(ctx, &provider, &call)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = fmt.Errorf("%w from %s", ErrEmptyResponse, provider.Name)
	}
	if err != nil {
		mr.trackFailure(provider.Name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	latencyMs := time.Since(start).Milliseconds()
	resp.LatencyMs = latencyMs
	resp.Attempt = n
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	if resp.Provider == "" {
		resp.Provider = provider.Name
	}
	if resp.Model == "" {
		resp.Model = call.Model
	}

	mr.trackLatency(provider.Name, latencyMs)
	mr.trackUsage(provider.Name, resp.Usage)

	span.SetAttributes(
		attribute.Int64("router.latency_ms", latencyMs),
		attribute.Int64("router.total_tokens", resp.Usage.TotalTokens),
	)
	return resp, nil
}

func (mr *ModelRouter) provider(name string) (models.ModelProvider, bool) {
	mr.providersMu.RLock()
	defer mr.providersMu.RUnlock()
	p, ok := mr.providers[name]
	return p, ok
}

// ── Usage Tracking ──────────────────────────────────────────

func (mr *ModelRouter) trackLatency(provider string, latencyMs int64) {
	mr.latencyMu.Lock()
	defer mr.latencyMu.Unlock()
	prev := mr.latencies[provider]
	if prev == 0 {
		mr.latencies[provider] = latencyMs
		return
	}
	// Exponential moving average
	mr.latencies[provider] = (prev*7 + latencyMs*3) / 10
}

func (mr *ModelRouter) trackUsage(provider string, u models.TokenUsage) {
	mr.usageMu.Lock()
	defer mr.usageMu.Unlock()
	s := mr.usageFor(provider)
	s.Attempts++
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
	s.TotalTokens += u.TotalTokens
}

func (mr *ModelRouter) trackFailure(provider string) {
	mr.usageMu.Lock()
	defer mr.usageMu.Unlock()
	s := mr.usageFor(provider)
	s.Attempts++
	s.Failures++
}

// usageFor must be called with usageMu held.
func (mr *ModelRouter) usageFor(provider string) *models.ProviderUsage {
	s, ok := mr.usage[provider]
	if !ok {
		s = &models.ProviderUsage{Provider: provider}
		mr.usage[provider] = s
	}
	return s
}

// Usage returns a snapshot of per-provider usage sorted by provider name,
// with the rolling average latency filled in.
func (mr *ModelRouter) Usage() []models.ProviderUsage {
	mr.usageMu.RLock()
	out := make([]models.ProviderUsage, 0, len(mr.usage))
	for _, s := range mr.usage {
		out = append(out, *s)
	}
	mr.usageMu.RUnlock()

	mr.latencyMu.RLock()
	for i := range out {
		out[i].AvgLatencyMs = mr.latencies[out[i].Provider]
	}
	mr.latencyMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
