package guardrails_test

import (
	"context"
	"errors"
	"testing"

	"github.com/radicai/ad-agent-api/internal/guardrails"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducts struct {
	product *models.ProductFact
	err     error
}

func (f *fakeProducts) RetrieveProductFacts(ctx context.Context, brief *models.Brief) (*models.ProductFact, error) {
	return f.product, f.err
}

var focusFlow = &models.ProductFact{
	ProductID:        "productivity_focusflow",
	ProductName:      "FocusFlow",
	VerifiedFeatures: []string{"AI-assisted task prioritization"},
	OfficialPrice:    "$9.99/mo",
}

func newTestBrief(features ...string) *models.Brief {
	return &models.Brief{
		CampaignID: "cmp_1",
		Goal:       "Drive trial signups",
		Product:    models.Product{Name: "FocusFlow", Category: "productivity", KeyFeatures: features, Price: "$9.99/mo"},
		Budget:     5000,
		Channels:   models.ChannelList{"search", "social"},
	}
}

func newTestPlan(breakdown map[string]float64, creatives ...models.Creative) *models.Plan {
	return &models.Plan{
		CampaignID:      "cmp_1",
		CampaignName:    "FocusFlow launch",
		Objective:       models.ObjectiveTrialSignups,
		TotalBudget:     5000,
		BudgetBreakdown: breakdown,
		AdGroups: []models.AdGroup{{
			ID:        "ag_1",
			Channel:   "search",
			Target:    map[string]interface{}{},
			Creatives: creatives,
		}},
	}
}

func creative(headline, body string) models.Creative {
	return models.Creative{ID: "c_1a", Headline: headline, Body: body, CTA: "Start", Justification: "j"}
}

func newTestDetector(t *testing.T, products guardrails.ProductSource) *guardrails.Detector {
	t.Helper()
	return guardrails.NewDetector(products, guardrails.DefaultPolicy())
}

var evenSplit = map[string]float64{"search": 2500, "social": 2500}

// ── Hallucinations ──────────────────────────────────────────

func TestDetectHallucinations_InventedFeature(t *testing.T) {
	d := newTestDetector(t, nil)
	plan := newTestPlan(evenSplit, creative("Focus on what matters", "Plan your day with real-time collaboration for teams."))

	flags := d.DetectHallucinations(newTestBrief("AI-assisted task prioritization"), plan)
	assert.True(t, flags.ProductFeaturesInvented)
	assert.False(t, flags.InvalidChannels)
	assert.GreaterOrEqual(t, flags.Score, 0.1)
	// real-time and collaboration
	assert.InDelta(t, 0.2, flags.Score, 1e-9)
}

func TestDetectHallucinations_FeatureCoveredByBrief(t *testing.T) {
	d := newTestDetector(t, nil)
	plan := newTestPlan(evenSplit, creative("Stay in step", "Real-time sync across every device."))

	flags := d.DetectHallucinations(newTestBrief("Real-time sync"), plan)
	assert.False(t, flags.ProductFeaturesInvented)
	assert.Zero(t, flags.Score)
}

func TestDetectHallucinations_PenaltyPerCreative(t *testing.T) {
	d := newTestDetector(t, nil)
	c := creative("Weekly reporting", "Plain copy.")
	plan := newTestPlan(evenSplit, c, c, c)

	flags := d.DetectHallucinations(newTestBrief("Focus timer"), plan)
	assert.True(t, flags.ProductFeaturesInvented)
	assert.InDelta(t, 0.3, flags.Score, 1e-9)
}

func TestDetectHallucinations_InvalidChannel(t *testing.T) {
	d := newTestDetector(t, nil)
	plan := newTestPlan(map[string]float64{"Search": 2500, "email": 2500}, creative("Hello", "World"))

	flags := d.DetectHallucinations(newTestBrief("Focus timer"), plan)
	assert.True(t, flags.InvalidChannels)
	assert.False(t, flags.ProductFeaturesInvented)
	assert.InDelta(t, 0.1, flags.Score, 1e-9)
}

func TestDetectHallucinations_ScoreCapped(t *testing.T) {
	d := newTestDetector(t, nil)
	everything := creative("Analytics, reporting and automation with ML",
		"Machine learning, encryption, backup, collaboration, real-time sync.")
	plan := newTestPlan(map[string]float64{"email": 1, "tv": 1, "radio": 1},
		everything, everything, everything)

	flags := d.DetectHallucinations(newTestBrief("zzz"), plan)
	assert.True(t, flags.ProductFeaturesInvented)
	assert.True(t, flags.InvalidChannels)
	assert.Equal(t, 1.0, flags.Score)
}

func TestDetectHallucinations_AllowedKeywordsNeverFlagged(t *testing.T) {
	p := guardrails.DefaultPolicy()
	p.SuspiciousKeywords = append(p.SuspiciousKeywords, "cloud")
	d := guardrails.NewDetector(nil, p)
	plan := newTestPlan(evenSplit, creative("Cloud planner", "Your tasks in the cloud."))

	flags := d.DetectHallucinations(newTestBrief("Focus timer"), plan)
	assert.False(t, flags.ProductFeaturesInvented)
}

// ── Knowledge base price check ──────────────────────────────

func TestValidateAgainstKB_MatchingPrice(t *testing.T) {
	d := newTestDetector(t, &fakeProducts{product: focusFlow})
	plan := newTestPlan(evenSplit, creative("Try FocusFlow", "Only $9.99/month after your trial."))

	errs, err := d.ValidateAgainstKB(context.Background(), newTestBrief("x"), plan)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateAgainstKB_MismatchedPrice(t *testing.T) {
	d := newTestDetector(t, &fakeProducts{product: focusFlow})
	plan := newTestPlan(evenSplit, creative("Try FocusFlow", "Only $14.99/month after your trial."))

	errs, err := d.ValidateAgainstKB(context.Background(), newTestBrief("x"), plan)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "Price in plan ($14.99/) doesn't match KB price ($9.99/mo)", errs[0])
}

func TestValidateAgainstKB_AnyMatchingAmountPasses(t *testing.T) {
	d := newTestDetector(t, &fakeProducts{product: focusFlow})
	plan := newTestPlan(evenSplit, creative("Try FocusFlow", "Was $14.99/month, now 9.99 per month."))

	errs, err := d.ValidateAgainstKB(context.Background(), newTestBrief("x"), plan)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateAgainstKB_NoPeriodPriceInPlan(t *testing.T) {
	d := newTestDetector(t, &fakeProducts{product: focusFlow})
	plan := newTestPlan(evenSplit, creative("Try FocusFlow", "Plan your day in minutes."))

	errs, err := d.ValidateAgainstKB(context.Background(), newTestBrief("x"), plan)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateAgainstKB_SkipsWithoutProduct(t *testing.T) {
	plan := newTestPlan(evenSplit, creative("Try it", "Only $14.99/month."))

	errs, err := newTestDetector(t, &fakeProducts{}).ValidateAgainstKB(context.Background(), newTestBrief("x"), plan)
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = newTestDetector(t, nil).ValidateAgainstKB(context.Background(), newTestBrief("x"), plan)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateAgainstKB_NonNumericOfficialPrice(t *testing.T) {
	free := *focusFlow
	free.OfficialPrice = "Free"
	d := newTestDetector(t, &fakeProducts{product: &free})
	plan := newTestPlan(evenSplit, creative("Try it", "Only $14.99/month."))

	errs, err := d.ValidateAgainstKB(context.Background(), newTestBrief("x"), plan)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateAgainstKB_RetrievalFailure(t *testing.T) {
	d := newTestDetector(t, &fakeProducts{err: errors.New("kb down")})

	_, err := d.ValidateAgainstKB(context.Background(), newTestBrief("x"), newTestPlan(evenSplit, creative("a", "b")))
	assert.Error(t, err)
}

// ── Policy ──────────────────────────────────────────────────

func TestParsePolicy(t *testing.T) {
	p, err := guardrails.ParsePolicy([]byte(`
guardrails:
  feature_penalty: 0.25
  allowed_channels: [search, social, display, email]
scoring:
  channel_default: 7
`))
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.FeaturePenalty)
	assert.Contains(t, p.AllowedChannels, "email")
	assert.Equal(t, 0.11, p.PriceTolerance)

	_, err = guardrails.ParsePolicy([]byte("guardrails:\n  allowed_channels: []\n"))
	assert.Error(t, err)
}
