// Package server provides the public entry point for initializing the
// ad planner API server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
//
// BuildPipeline assembles the same planning pipeline without HTTP, for
// the adplanner CLI and embedding callers.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/radicai/ad-agent-api/internal/api"
	"github.com/radicai/ad-agent-api/internal/api/handlers"
	"github.com/radicai/ad-agent-api/internal/api/middleware"
	"github.com/radicai/ad-agent-api/internal/config"
	"github.com/radicai/ad-agent-api/internal/guardrails"
	"github.com/radicai/ad-agent-api/internal/history"
	"github.com/radicai/ad-agent-api/internal/knowledge"
	"github.com/radicai/ad-agent-api/internal/metrics"
	"github.com/radicai/ad-agent-api/internal/planner"
	"github.com/radicai/ad-agent-api/internal/retrieval"
	modelrouter "github.com/radicai/ad-agent-api/internal/router"
	"github.com/radicai/ad-agent-api/internal/scoring"
	"github.com/radicai/ad-agent-api/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// Server holds the initialized ad planner API.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Pipeline is the planning pipeline behind the handlers.
	Pipeline *Pipeline

	// Config is the server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// Pipeline is the wired set of planning components.
type Pipeline struct {
	Knowledge *knowledge.Repository
	Retriever *retrieval.Retriever
	Router    *modelrouter.ModelRouter
	History   *history.RequestLog
	Recorder  *metrics.Recorder
	Planner   *planner.Planner
}

// LoadConfig loads configuration from the environment (and .env).
func LoadConfig() *config.Config {
	return config.Load()
}

// New initializes all components from the environment and returns a ready
// Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, LoadConfig())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	// Initialize telemetry
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	p, err := BuildPipeline(cfg)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	// Build handlers + API router
	h := handlers.New(p.Planner, p.Router, p.History)
	router := api.NewRouter(cfg, h, api.Options{
		Metrics: p.Recorder.Handler(),
		Auth:    middleware.NewAPIKeyAuth(cfg.APIKeys),
	})
	if len(cfg.APIKeys) > 0 {
		log.Info().Int("keys", len(cfg.APIKeys)).Msg("🔐 API key authentication enabled")
	}

	return &Server{
		Handler:      router,
		Pipeline:     p,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// BuildPipeline wires knowledge, retrieval, scoring, guardrails, the model
// router and metrics into a Planner. The knowledge base is loaded lazily on
// first use; policy files are read here and fail fast.
func BuildPipeline(cfg *config.Config) (*Pipeline, error) {
	kb := knowledge.NewFileRepository(cfg.KnowledgeBasePath)
	r := retrieval.NewRetriever(kb)
	log.Info().Str("path", cfg.KnowledgeBasePath).Msg("✅ Knowledge base configured")

	scoringPolicy, err := scoring.LoadPolicy(cfg.ScoringPolicyPath)
	if err != nil {
		return nil, err
	}
	guardrailPolicy, err := guardrails.LoadPolicy(cfg.GuardrailPolicyPath)
	if err != nil {
		return nil, err
	}

	mr := NewModelRouter(cfg.LLM)
	log.Info().
		Str("primary", cfg.LLM.Provider).
		Str("fallback", cfg.LLM.FallbackProvider).
		Msg("✅ Model Router initialized")

	h := history.NewRequestLog(cfg.HistorySize)
	rec := metrics.NewRecorder(h)

	temperature := cfg.LLM.Temperature
	p := planner.New(planner.Config{
		Generator:   mr,
		Retriever:   r,
		Scorer:      scoring.NewScorer(r, scoringPolicy),
		Detector:    guardrails.NewDetector(r, guardrailPolicy),
		Recorder:    rec,
		Temperature: &temperature,
	})
	log.Info().Msg("✅ Planner initialized")

	return &Pipeline{
		Knowledge: kb,
		Retriever: r,
		Router:    mr,
		History:   h,
		Recorder:  rec,
		Planner:   p,
	}, nil
}

// NewModelRouter builds the router for the configured providers. The
// fallback target is omitted when no fallback provider is set.
func NewModelRouter(c config.LLMConfig) *modelrouter.ModelRouter {
	policy := modelrouter.AttemptPolicy{
		Primary: modelrouter.Target{Provider: c.Provider, Model: c.DefaultModel(c.Provider)},
		Timeout: c.Timeout,
	}
	if c.FallbackProvider != "" {
		model := c.FallbackModel
		if model == "" {
			model = c.DefaultModel(c.FallbackProvider)
		}
		policy.Fallback = &modelrouter.Target{Provider: c.FallbackProvider, Model: model}
	}

	mr := modelrouter.NewModelRouter(policy)
	for _, p := range c.Providers() {
		mr.RegisterProvider(p)
	}
	return mr
}
