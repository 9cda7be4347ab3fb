// Package planner turns a campaign brief into a finalized, scored and
// checked ad campaign plan.
//
// Generate runs the full request path: ground the brief in the knowledge
// base, build the prompt, call the generator, parse and finalize its JSON,
// then score creatives, run the guardrail checks and record metrics.
// Evaluate runs the same post-generation steps on a caller-supplied plan.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/radicai/ad-agent-api/internal/guardrails"
	"github.com/radicai/ad-agent-api/internal/retrieval"
	"github.com/radicai/ad-agent-api/internal/scoring"
	"github.com/radicai/ad-agent-api/pkg/contracts"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ad-agent-api/planner")

// ErrGeneration wraps generator failures.
var ErrGeneration = errors.New("plan generation failed")

// Failure stages passed to MetricsRecorder.RecordFailure.
const (
	StageValidation = "validation"
	StageKnowledge  = "knowledge"
	StageGeneration = "generation"
	StageParse      = "parse"
	StageFinalize   = "finalize"
	StageEvaluation = "evaluation"
)

// Options tune one Generate call.
type Options struct {
	// Model overrides the primary target's model.
	Model string
}

// Evaluation is a finalized plan with its scores and checks.
type Evaluation struct {
	Plan               *models.Plan              `json:"plan"`
	Scores             []models.CreativeScore    `json:"scores"`
	HallucinationFlags models.HallucinationFlags `json:"hallucinationFlags"`
	ValidationErrors   []string                  `json:"validationErrors"`
}

// Result is the outcome of one Generate call.
type Result struct {
	Evaluation
	Metrics   models.RequestMetrics `json:"metrics"`
	Grounding *retrieval.Grounding  `json:"-"`
}

// Planner wires retrieval, generation, scoring and guardrails together.
type Planner struct {
	generator   contracts.Generator
	retriever   *retrieval.Retriever
	scorer      *scoring.Scorer
	detector    *guardrails.Detector
	recorder    contracts.MetricsRecorder
	temperature *float64
	now         func() time.Time
}

// Config holds the Planner's collaborators. Recorder may be nil.
type Config struct {
	Generator   contracts.Generator
	Retriever   *retrieval.Retriever
	Scorer      *scoring.Scorer
	Detector    *guardrails.Detector
	Recorder    contracts.MetricsRecorder
	Temperature *float64
}

// New creates a Planner.
func New(cfg Config) *Planner {
	return &Planner{
		generator:   cfg.Generator,
		retriever:   cfg.Retriever,
		scorer:      cfg.Scorer,
		detector:    cfg.Detector,
		recorder:    cfg.Recorder,
		temperature: cfg.Temperature,
		now:         time.Now,
	}
}

// Retriever returns the planner's retriever.
func (p *Planner) Retriever() *retrieval.Retriever { return p.retriever }

// Generate produces a plan for brief. Brief shape errors are
// *ValidationError with Subject "brief"; generator failures wrap
// ErrGeneration; unusable completions are ErrNonJSON, ErrEmptyCompletion or
// *ValidationError with Subject "plan". Budget, channel and knowledge base
// mismatches are reported in the result, not as errors.
func (p *Planner) Generate(ctx context.Context, brief *models.Brief, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "planner.generate")
	defer span.End()

	if err := ValidateBrief(brief); err != nil {
		p.fail(StageValidation)
		return nil, err
	}
	span.SetAttributes(attribute.String("campaign.id", brief.CampaignID))

	requestID := uuid.New().String()
	start := p.now()

	grounding, err := p.retriever.Ground(ctx, brief)
	if err != nil {
		p.fail(StageKnowledge)
		return nil, p.spanErr(span, err)
	}
	if grounding.Empty() {
		log.Info().
			Str("request_id", requestID).
			Str("campaign_id", brief.CampaignID).
			Msg("No knowledge base match; generating without grounding")
	} else {
		ev := log.Info().
			Str("request_id", requestID).
			Str("campaign_id", brief.CampaignID).
			Int("metrics", len(grounding.Metrics))
		if grounding.Product != nil {
			ev = ev.Str("product_id", grounding.Product.ProductID)
		}
		ev.Msg("Grounding context injected")
	}

	messages, err := BuildMessages(brief, grounding.Text)
	if err != nil {
		p.fail(StageGeneration)
		return nil, p.spanErr(span, err)
	}

	resp, err := p.generator.Route(ctx, &models.RouteRequest{
		Messages:    messages,
		Model:       opts.Model,
		Temperature: p.temperature,
		JSONMode:    true,
	})
	if err != nil {
		p.fail(StageGeneration)
		return nil, p.spanErr(span, fmt.Errorf("%w: %w", ErrGeneration, err))
	}

	raw, err := ParsePlan([]byte(resp.Content))
	if err != nil {
		p.fail(StageParse)
		return nil, p.spanErr(span, err)
	}

	eval, err := p.evaluate(ctx, brief, raw)
	if err != nil {
		return nil, p.spanErr(span, err)
	}

	metrics := models.RequestMetrics{
		RequestID:  requestID,
		CampaignID: brief.CampaignID,
		Timestamp:  p.now().UTC(),
		Tokens: models.TokenCounts{
			Prompt:     resp.Usage.InputTokens,
			Completion: resp.Usage.OutputTokens,
			Total:      resp.Usage.TotalTokens,
		},
		Latency:            p.now().Sub(start).Milliseconds(),
		Provider:           resp.Provider,
		Model:              resp.Model,
		Attempts:           resp.Attempt,
		Grounded:           !grounding.Empty(),
		HallucinationFlags: eval.HallucinationFlags,
		ValidationErrors:   eval.ValidationErrors,
	}
	if p.recorder != nil {
		p.recorder.Record(metrics)
	}

	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("provider", resp.Provider),
		attribute.Float64("hallucination.score", eval.HallucinationFlags.Score),
	)

	return &Result{Evaluation: *eval, Metrics: metrics, Grounding: grounding}, nil
}

// Evaluate finalizes a caller-supplied plan against brief and runs scoring
// and the guardrail checks. No generator call is made and no metrics are
// recorded.
func (p *Planner) Evaluate(ctx context.Context, brief *models.Brief, plan *models.Plan) (*Evaluation, error) {
	ctx, span := tracer.Start(ctx, "planner.evaluate")
	defer span.End()

	if err := ValidateBrief(brief); err != nil {
		return nil, err
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	eval, err := p.evaluate(ctx, brief, plan)
	if err != nil {
		return nil, p.spanErr(span, err)
	}
	return eval, nil
}

func (p *Planner) evaluate(ctx context.Context, brief *models.Brief, raw *models.Plan) (*Evaluation, error) {
	final, err := FinalizePlan(brief, raw)
	if err != nil {
		p.fail(StageFinalize)
		return nil, err
	}

	scored, scores, err := p.scorer.AddScoresToPlan(ctx, final, brief)
	if err != nil {
		p.fail(StageEvaluation)
		return nil, err
	}

	flags := p.detector.DetectHallucinations(brief, scored)
	kbErrs, err := p.detector.ValidateAgainstKB(ctx, brief, scored)
	if err != nil {
		p.fail(StageEvaluation)
		return nil, err
	}

	validationErrors := append(CheckMessages(scored), kbErrs...)
	if validationErrors == nil {
		validationErrors = []string{}
	}

	return &Evaluation{
		Plan:               scored,
		Scores:             scores,
		HallucinationFlags: flags,
		ValidationErrors:   validationErrors,
	}, nil
}

func (p *Planner) fail(stage string) {
	if p.recorder != nil {
		p.recorder.RecordFailure(stage)
	}
}

func (p *Planner) spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
