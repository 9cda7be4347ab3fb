// Package scoring ranks generated ad creatives with a rule-based estimate of
// relative performance.
//
// Each creative gets four factors: keyword overlap with the best historical
// headline, headline archetype match, copywriting best practices, and a
// channel baseline. The factor tables live in Policy so the heuristic can be
// audited and tuned without touching code.
package scoring

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("ad-agent-api/scoring")

// UnknownCreativeID labels creatives scored without an id.
const UnknownCreativeID = "unknown"

var digitPattern = regexp.MustCompile(`\d`)

// MetricSource provides the historical metrics scoring compares against.
// Implementation: retrieval.Retriever.
type MetricSource interface {
	RetrieveAdMetrics(ctx context.Context, brief *models.Brief, channels []string) ([]models.AdMetric, error)
}

// Scorer scores creatives against historical metrics for the brief.
type Scorer struct {
	metrics MetricSource
	policy  Policy
}

// NewScorer creates a scorer with the given policy.
func NewScorer(metrics MetricSource, policy Policy) *Scorer {
	return &Scorer{metrics: metrics, policy: policy}
}

// Policy returns the scorer's policy.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// ScoreCreatives scores every creative in plan order and returns the scores
// best first with ranks 1..N.
func (s *Scorer) ScoreCreatives(ctx context.Context, plan *models.Plan, brief *models.Brief) ([]models.CreativeScore, error) {
	_, scores, err := s.score(ctx, plan, brief)
	return scores, err
}

// AddScoresToPlan returns a copy of plan whose creatives carry
// relative_score, performance_rank and score_factors. The input plan is
// not modified.
func (s *Scorer) AddScoresToPlan(ctx context.Context, plan *models.Plan, brief *models.Brief) (*models.Plan, []models.CreativeScore, error) {
	ranked, scores, err := s.score(ctx, plan, brief)
	if err != nil {
		return nil, nil, err
	}
	return annotate(plan, ranked), scores, nil
}

func (s *Scorer) score(ctx context.Context, plan *models.Plan, brief *models.Brief) ([]rankedScore, []models.CreativeScore, error) {
	ctx, span := tracer.Start(ctx, "scoring.score_creatives")
	defer span.End()

	history, err := s.metrics.RetrieveAdMetrics(ctx, brief, brief.Channels)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	ranked := rank(plan, history, s.policy)
	scores := make([]models.CreativeScore, len(ranked))
	for i, r := range ranked {
		scores[i] = r.CreativeScore
	}
	span.SetAttributes(attribute.Int("scoring.creatives", len(scores)))
	return ranked, scores, nil
}

// rankedScore remembers where a score's creative sits in the plan.
type rankedScore struct {
	models.CreativeScore
	group, index int
}

// rank scores every creative of plan against history and sorts best first.
// Equal scores keep plan order.
func rank(plan *models.Plan, history []models.AdMetric, policy Policy) []rankedScore {
	var out []rankedScore
	for gi, ag := range plan.AdGroups {
		for ci, c := range ag.Creatives {
			factors := ScoreCreative(c, ag.Channel, history, policy)
			id := c.ID
			if id == "" {
				id = UnknownCreativeID
			}
			total := math.Min(policy.MaxScore, math.Max(policy.MinScore, factors.Total()))
			out = append(out, rankedScore{
				CreativeScore: models.CreativeScore{
					CreativeID: id,
					Score:      round2(total),
					Factors:    factors,
				},
				group: gi,
				index: ci,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// annotate copies plan and writes each score onto the creative it was
// computed for.
func annotate(plan *models.Plan, ranked []rankedScore) *models.Plan {
	out := plan.Clone()
	for _, r := range ranked {
		c := &out.AdGroups[r.group].Creatives[r.index]
		score, pos, factors := r.Score, r.Rank, r.Factors
		c.RelativeScore = &score
		c.PerformanceRank = &pos
		c.ScoreFactors = &factors
	}
	return out
}

// ScoreCreative computes the four factors for one creative. channel is the
// creative's ad group channel and may be empty. Each factor is rounded to
// two decimals.
func ScoreCreative(c models.Creative, channel string, history []models.AdMetric, p Policy) models.ScoreFactors {
	headline := strings.ToLower(c.Headline)
	body := strings.ToLower(c.Body)
	fullText := headline + " " + body

	channelMetrics := history
	if channel != "" {
		channelMetrics = metricsForChannel(history, channel)
	}

	return models.ScoreFactors{
		KeywordMatch:       round2(keywordMatch(fullText, channelMetrics, p)),
		HeadlineTypeMatch:  round2(headlineTypeMatch(headline, channelMetrics, p)),
		BestPractices:      round2(bestPractices(c, headline, fullText, p)),
		ChannelPerformance: round2(channelPerformance(channel, history, p)),
	}
}

// ── Factors ─────────────────────────────────────────────────

func keywordMatch(fullText string, metrics []models.AdMetric, p Policy) float64 {
	if len(metrics) == 0 {
		return 0
	}
	best := metrics[0]
	for _, m := range metrics[1:] {
		if m.Performance() > best.Performance() {
			best = m
		}
	}
	if len(best.HeadlineKeywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range best.HeadlineKeywords {
		if strings.Contains(fullText, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(best.HeadlineKeywords)) * p.KeywordMatchMax
}

// headlineTypeMatch only considers the first archetype with a keyword hit.
// If no history carries that archetype, the factor is 0.
func headlineTypeMatch(headline string, metrics []models.AdMetric, p Policy) float64 {
	for _, a := range p.Archetypes {
		hits := countContained(headline, a.Keywords)
		if hits == 0 {
			continue
		}

		archetype := strings.ToLower(a.Type)
		var sum float64
		n := 0
		for _, m := range metrics {
			if strings.Contains(strings.ToLower(m.HeadlineType), archetype) {
				sum += m.Performance()
				n++
			}
		}
		if n == 0 {
			return 0
		}
		avg := sum / float64(n)
		return math.Min(p.HeadlineTypeMax, float64(hits)*p.HeadlineHitPoints+avg*p.HeadlinePerformanceWeight)
	}
	return 0
}

func bestPractices(c models.Creative, headline, fullText string, p Policy) float64 {
	var pts float64
	if containsAny(headline, p.ActionVerbs) {
		pts += p.ActionVerbPoints
	}
	if digitPattern.MatchString(headline) || containsAny(fullText, p.UrgencyWords) {
		pts += p.UrgencyPoints
	}
	if containsAny(strings.ToLower(c.CTA), p.CTAWords) {
		pts += p.CTAPoints
	}
	if p.HeadlineLength.contains(textLength(c.Headline)) {
		pts += p.HeadlineLengthPoints
	}
	if p.BodyLength.contains(textLength(c.Body)) {
		pts += p.BodyLengthPoints
	}
	if containsAny(fullText, p.ValueWords) {
		pts += p.ValuePoints
	}
	return pts
}

func channelPerformance(channel string, history []models.AdMetric, p Policy) float64 {
	if channel == "" {
		return p.ChannelDefault
	}
	metrics := metricsForChannel(history, channel)
	if len(metrics) == 0 {
		return p.ChannelDefault
	}
	var ctr, conv float64
	for _, m := range metrics {
		ctr += m.CTR
		conv += m.ConversionRate
	}
	n := float64(len(metrics))
	return math.Min(p.ChannelMax, (ctr/n)*(conv/n)*p.ChannelScale)
}

// ── Helpers ─────────────────────────────────────────────────

func metricsForChannel(history []models.AdMetric, channel string) []models.AdMetric {
	var out []models.AdMetric
	for _, m := range history {
		if strings.EqualFold(m.Channel, channel) {
			out = append(out, m)
		}
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func countContained(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// textLength counts UTF-16 code units.
func textLength(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
