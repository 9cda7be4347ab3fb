package planner_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/radicai/ad-agent-api/internal/guardrails"
	"github.com/radicai/ad-agent-api/internal/knowledge"
	"github.com/radicai/ad-agent-api/internal/planner"
	"github.com/radicai/ad-agent-api/internal/retrieval"
	"github.com/radicai/ad-agent-api/internal/scoring"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Fakes ───────────────────────────────────────────────────

type fakeGenerator struct {
	content string
	err     error

	calls []*models.RouteRequest
}

func (g *fakeGenerator) Route(_ context.Context, req *models.RouteRequest) (*models.RouteResponse, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &models.RouteResponse{
		ID:       "resp_1",
		Provider: "groq",
		Model:    "llama-3.3-70b-versatile",
		Content:  g.content,
		Usage:    models.TokenUsage{InputTokens: 120, OutputTokens: 80, TotalTokens: 200},
		Attempt:  1,
	}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	records  []models.RequestMetrics
	failures []string
}

func (r *fakeRecorder) Record(m models.RequestMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, m)
}

func (r *fakeRecorder) RecordFailure(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage)
}

// ── Fixtures ────────────────────────────────────────────────

func trial() *string {
	s := "14 days"
	return &s
}

func testKB() *models.KnowledgeBase {
	return &models.KnowledgeBase{
		Products: []models.ProductFact{{
			ProductID:           "productivity_focusflow",
			ProductName:         "FocusFlow",
			VerifiedFeatures:    []string{"AI-assisted task prioritization", "Calendar integration"},
			OfficialPrice:       "$9.99/mo",
			TrialLength:         trial(),
			OfficialDescription: "Task manager that plans your day",
		}},
		AdMetrics: []models.AdMetric{
			{CampaignID: "h1", ProductCategory: "productivity", Channel: "search", HeadlineType: "trial-focused",
				HeadlineKeywords: []string{"free trial", "try"}, CTR: 0.06, ConversionRate: 0.08},
			{CampaignID: "h2", ProductCategory: "productivity", Channel: "social", HeadlineType: "benefit-focused",
				HeadlineKeywords: []string{"focus"}, CTR: 0.03, ConversionRate: 0.04},
		},
	}
}

func focusBrief() *models.Brief {
	return &models.Brief{
		CampaignID: "cmp_1",
		Goal:       "Drive trial signups",
		Product: models.Product{
			Name:        "FocusFlow",
			Category:    "productivity",
			KeyFeatures: []string{"AI-assisted task prioritization", "Calendar integration"},
			Price:       "$9.99/mo",
		},
		Budget:   5000,
		Channels: models.ChannelList{"search", "social"},
	}
}

const goodPlan = `{
	"campaign_id": "cmp_1",
	"campaign_name": "FocusFlow trial push",
	"objective": "trial_signups",
	"total_budget": 5000,
	"budget_breakdown": {"search": 3000, "social": 2000},
	"ad_groups": [
		{"target": {"age": "25-45"}, "creatives": [
			{"headline": "Try FocusFlow free for 14 days", "body": "Plan your day with AI-assisted task prioritization. Only $9.99/mo after your trial.", "cta": "Start Free Trial", "justification": "Trial framing performs on search"},
			{"headline": "Own your calendar", "body": "FocusFlow works with your calendar.", "cta": "Learn more", "justification": "Benefit framing"}
		]},
		{"id": "ag_social", "target": {}, "creatives": [
			{"headline": "Focus more", "body": "Calendar integration keeps priorities in view.", "cta": "Get Started", "justification": "Social users respond to focus"}
		]}
	],
	"checks": {"budget_sum_ok": false, "required_fields_present": false, "channel_valid": false}
}`

func newPlanner(gen *fakeGenerator, rec *fakeRecorder) *planner.Planner {
	r := retrieval.NewRetriever(knowledge.NewStaticRepository(testKB()))
	return planner.New(planner.Config{
		Generator: gen,
		Retriever: r,
		Scorer:    scoring.NewScorer(r, scoring.DefaultPolicy()),
		Detector:  guardrails.NewDetector(r, guardrails.DefaultPolicy()),
		Recorder:  rec,
	})
}

// ── Generate ────────────────────────────────────────────────

func TestGenerate_GroundedPlan(t *testing.T) {
	gen := &fakeGenerator{content: goodPlan}
	rec := &fakeRecorder{}
	p := newPlanner(gen, rec)

	res, err := p.Generate(context.Background(), focusBrief(), planner.Options{Model: "llama-3.1-8b-instant"})
	require.NoError(t, err)

	require.Len(t, gen.calls, 1)
	call := gen.calls[0]
	assert.True(t, call.JSONMode)
	assert.Equal(t, "llama-3.1-8b-instant", call.Model)
	require.Len(t, call.Messages, 2)
	assert.Contains(t, call.Messages[1].Content, "VERIFIED PRODUCT FACTS:")
	assert.Contains(t, call.Messages[1].Content, "HISTORICAL AD PERFORMANCE:")
	assert.Contains(t, call.Messages[1].Content, "IMPORTANT: Use only the verified")

	plan := res.Plan
	assert.Equal(t, "ag_1", plan.AdGroups[0].ID)
	assert.Equal(t, "search", plan.AdGroups[0].Channel)
	assert.Equal(t, "c_1a", plan.AdGroups[0].Creatives[0].ID)
	assert.Equal(t, "c_1b", plan.AdGroups[0].Creatives[1].ID)
	assert.Equal(t, "ag_social", plan.AdGroups[1].ID)
	assert.Equal(t, "social", plan.AdGroups[1].Channel)
	assert.Equal(t, models.PlanChecks{BudgetSumOK: true, RequiredFieldsPresent: true, ChannelValid: true}, plan.Checks)

	require.Len(t, res.Scores, 3)
	for i, s := range res.Scores {
		assert.Equal(t, i+1, s.Rank)
	}
	for _, ag := range plan.AdGroups {
		for _, c := range ag.Creatives {
			require.NotNil(t, c.RelativeScore, c.ID)
			require.NotNil(t, c.PerformanceRank, c.ID)
			require.NotNil(t, c.ScoreFactors, c.ID)
		}
	}

	assert.Equal(t, models.HallucinationFlags{}, res.HallucinationFlags)
	assert.Empty(t, res.ValidationErrors)
	assert.NotNil(t, res.ValidationErrors)
	require.NotNil(t, res.Grounding)
	require.NotNil(t, res.Grounding.Product)
	assert.Equal(t, "productivity_focusflow", res.Grounding.Product.ProductID)

	require.Len(t, rec.records, 1)
	m := rec.records[0]
	assert.Equal(t, m, res.Metrics)
	assert.NotEmpty(t, m.RequestID)
	assert.Equal(t, "cmp_1", m.CampaignID)
	assert.Equal(t, models.TokenCounts{Prompt: 120, Completion: 80, Total: 200}, m.Tokens)
	assert.Equal(t, "groq", m.Provider)
	assert.Equal(t, 1, m.Attempts)
	assert.True(t, m.Grounded)
	assert.GreaterOrEqual(t, m.Latency, int64(0))
	assert.Empty(t, rec.failures)
}

func TestGenerate_NoKnowledgeBaseMatch(t *testing.T) {
	gen := &fakeGenerator{content: strings.Replace(goodPlan, "$9.99/mo", "$19/mo", 1)}
	rec := &fakeRecorder{}
	p := newPlanner(gen, rec)

	brief := focusBrief()
	brief.Product = models.Product{Name: "Zentrix", Category: "gardening", KeyFeatures: []string{"soil moisture alerts"}, Price: "$19/mo"}

	res, err := p.Generate(context.Background(), brief, planner.Options{})
	require.NoError(t, err)

	assert.NotContains(t, gen.calls[0].Messages[1].Content, "VERIFIED PRODUCT FACTS:")
	user, err := planner.UserPrompt(brief)
	require.NoError(t, err)
	assert.Equal(t, user, gen.calls[0].Messages[1].Content)
	assert.False(t, res.Metrics.Grounded)
	assert.Empty(t, res.ValidationErrors, "no product means no price check")
}

func TestGenerate_SurfacesMismatchesAsData(t *testing.T) {
	plan := strings.Replace(goodPlan, `{"search": 3000, "social": 2000}`, `{"search": 3000, "tv": 1000}`, 1)
	plan = strings.Replace(plan, "Only $9.99/mo", "Only $14.99/month", 1)
	plan = strings.Replace(plan, "Focus more", "Real-time focus analytics", 1)

	rec := &fakeRecorder{}
	p := newPlanner(&fakeGenerator{content: plan}, rec)

	res, err := p.Generate(context.Background(), focusBrief(), planner.Options{})
	require.NoError(t, err)

	assert.False(t, res.Plan.Checks.BudgetSumOK)
	assert.False(t, res.Plan.Checks.ChannelValid)
	assert.True(t, res.HallucinationFlags.InvalidChannels)
	assert.True(t, res.HallucinationFlags.ProductFeaturesInvented)
	assert.Greater(t, res.HallucinationFlags.Score, 0.0)

	require.Len(t, res.ValidationErrors, 3)
	assert.Contains(t, res.ValidationErrors[0], "budget_breakdown sums to 4000.00")
	assert.Contains(t, res.ValidationErrors[1], "tv")
	assert.Contains(t, res.ValidationErrors[2], "doesn't match KB price ($9.99/mo)")
	assert.Equal(t, res.ValidationErrors, rec.records[0].ValidationErrors)
}

func TestGenerate_InvalidBrief(t *testing.T) {
	gen := &fakeGenerator{content: goodPlan}
	rec := &fakeRecorder{}
	p := newPlanner(gen, rec)

	brief := focusBrief()
	brief.Channels = nil

	_, err := p.Generate(context.Background(), brief, planner.Options{})
	require.Error(t, err)
	assert.True(t, planner.IsValidationError(err, planner.SubjectBrief))
	assert.Empty(t, gen.calls)
	assert.Equal(t, []string{planner.StageValidation}, rec.failures)
}

func TestGenerate_GeneratorFailure(t *testing.T) {
	upstream := errors.New("all generation attempts failed: 503")
	rec := &fakeRecorder{}
	p := newPlanner(&fakeGenerator{err: upstream}, rec)

	_, err := p.Generate(context.Background(), focusBrief(), planner.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrGeneration)
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, []string{planner.StageGeneration}, rec.failures)
	assert.Empty(t, rec.records)
}

func TestGenerate_NonJSONCompletion(t *testing.T) {
	rec := &fakeRecorder{}
	p := newPlanner(&fakeGenerator{content: "Sure! Here is a great plan for FocusFlow."}, rec)

	_, err := p.Generate(context.Background(), focusBrief(), planner.Options{})
	assert.ErrorIs(t, err, planner.ErrNonJSON)
	assert.Equal(t, []string{planner.StageParse}, rec.failures)
}

func TestGenerate_PlanShapeError(t *testing.T) {
	rec := &fakeRecorder{}
	p := newPlanner(&fakeGenerator{content: `{"campaign_id": "cmp_1", "total_budget": 5000}`}, rec)

	_, err := p.Generate(context.Background(), focusBrief(), planner.Options{})
	require.Error(t, err)
	assert.True(t, planner.IsValidationError(err, planner.SubjectPlan))
	assert.Equal(t, []string{planner.StageParse}, rec.failures)
}

func TestGenerate_KnowledgeBaseFailure(t *testing.T) {
	loadErr := errors.New("disk gone")
	repo := knowledge.NewRepository("broken", func(context.Context) (*models.KnowledgeBase, error) {
		return nil, loadErr
	})
	r := retrieval.NewRetriever(repo)
	gen := &fakeGenerator{content: goodPlan}
	rec := &fakeRecorder{}
	p := planner.New(planner.Config{
		Generator: gen,
		Retriever: r,
		Scorer:    scoring.NewScorer(r, scoring.DefaultPolicy()),
		Detector:  guardrails.NewDetector(r, guardrails.DefaultPolicy()),
		Recorder:  rec,
	})

	_, err := p.Generate(context.Background(), focusBrief(), planner.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, knowledge.ErrLoad)
	assert.Empty(t, gen.calls)
	assert.Equal(t, []string{planner.StageKnowledge}, rec.failures)
}

// ── Evaluate ────────────────────────────────────────────────

func TestEvaluate_DraftPlan(t *testing.T) {
	gen := &fakeGenerator{}
	rec := &fakeRecorder{}
	p := newPlanner(gen, rec)

	brief := focusBrief()
	eval, err := p.Evaluate(context.Background(), brief, planner.DraftPlan(brief))
	require.NoError(t, err)

	assert.Empty(t, gen.calls)
	assert.Empty(t, rec.records)
	assert.True(t, eval.Plan.Checks.BudgetSumOK)
	assert.Len(t, eval.Scores, 2)
	assert.Empty(t, eval.ValidationErrors)
}

func TestEvaluate_InvalidPlan(t *testing.T) {
	p := newPlanner(&fakeGenerator{}, &fakeRecorder{})
	_, err := p.Evaluate(context.Background(), focusBrief(), &models.Plan{CampaignID: "cmp_1"})
	require.Error(t, err)
	assert.True(t, planner.IsValidationError(err, planner.SubjectPlan))
}
