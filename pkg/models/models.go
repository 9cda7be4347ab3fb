// Package models defines the wire types shared by the ad planner API,
// its CLI, and the internal pipeline packages.
//
// Brief and Plan are the caller-facing contract: they round-trip through
// JSON and schema validation without losing the checks and score
// annotations the pipeline attaches.
package models

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// ── Channels ─────────────────────────────────────────────────

const (
	ChannelSearch  = "search"
	ChannelSocial  = "social"
	ChannelDisplay = "display"
)

// AllowedChannels is the fixed set of channels a plan may spend budget on.
var AllowedChannels = []string{ChannelSearch, ChannelSocial, ChannelDisplay}

// IsAllowedChannel reports whether c is one of AllowedChannels (exact match).
func IsAllowedChannel(c string) bool {
	for _, a := range AllowedChannels {
		if a == c {
			return true
		}
	}
	return false
}

// ChannelList is a list of requested channels. It decodes from either a
// JSON array or a single JSON string.
type ChannelList []string

func (c *ChannelList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*c = ChannelList{}
			return nil
		}
		*c = ChannelList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*c = many
	return nil
}

// ── Brief ────────────────────────────────────────────────────

// Product describes the advertised product as the caller sees it.
type Product struct {
	Name        string   `json:"name" validate:"required"`
	Category    string   `json:"category" validate:"required"`
	KeyFeatures []string `json:"key_features" validate:"required,min=1,dive,required"`
	Price       string   `json:"price" validate:"required"`
}

// Brief is the structured input for plan generation. Read-only once validated.
type Brief struct {
	CampaignID    string      `json:"campaign_id" validate:"required"`
	Goal          string      `json:"goal" validate:"required"`
	Product       Product     `json:"product"`
	Budget        float64     `json:"budget" validate:"gt=0"`
	Channels      ChannelList `json:"channels" validate:"required,min=1"`
	AudienceHints []string    `json:"audience_hints"`
	Tone          string      `json:"tone"`
}

// DefaultTone is applied when a brief omits its tone.
const DefaultTone = "neutral"

// ApplyDefaults fills optional brief fields the way the schema defaults them.
func (b *Brief) ApplyDefaults() {
	if b.AudienceHints == nil {
		b.AudienceHints = []string{}
	}
	if b.Tone == "" {
		b.Tone = DefaultTone
	}
}

// ── Plan ─────────────────────────────────────────────────────

const (
	ObjectiveTrialSignups = "trial_signups"
	ObjectiveConversions  = "conversions"
	ObjectiveAwareness    = "awareness"
)

// ScoreFactors is the per-factor breakdown of a creative's heuristic score.
type ScoreFactors struct {
	KeywordMatch       float64 `json:"keywordMatch"`
	HeadlineTypeMatch  float64 `json:"headlineTypeMatch"`
	BestPractices      float64 `json:"bestPractices"`
	ChannelPerformance float64 `json:"channelPerformance"`
}

// Total sums the four factors.
func (f ScoreFactors) Total() float64 {
	return f.KeywordMatch + f.HeadlineTypeMatch + f.BestPractices + f.ChannelPerformance
}

// Creative is one candidate ad. The score fields are annotations added by
// the creative scorer and are absent on raw generator output.
type Creative struct {
	ID            string `json:"id,omitempty"`
	Headline      string `json:"headline" validate:"required"`
	Body          string `json:"body" validate:"required"`
	CTA           string `json:"cta" validate:"required"`
	Justification string `json:"justification" validate:"required"`

	RelativeScore   *float64      `json:"relative_score,omitempty"`
	PerformanceRank *int          `json:"performance_rank,omitempty"`
	ScoreFactors    *ScoreFactors `json:"score_factors,omitempty"`
}

// AdGroup is a targeting unit holding one or more creatives.
type AdGroup struct {
	ID        string                 `json:"id,omitempty"`
	Channel   string                 `json:"channel,omitempty" validate:"omitempty,oneof=search social display"`
	Target    map[string]interface{} `json:"target" validate:"required"`
	Creatives []Creative             `json:"creatives" validate:"required,min=1,dive"`
}

// PlanChecks are the validation flags recomputed by the plan finalizer.
type PlanChecks struct {
	BudgetSumOK           bool `json:"budget_sum_ok"`
	RequiredFieldsPresent bool `json:"required_fields_present"`
	ChannelValid          bool `json:"channel_valid"`
}

// Plan is the generated campaign plan.
type Plan struct {
	CampaignID      string             `json:"campaign_id" validate:"required"`
	CampaignName    string             `json:"campaign_name" validate:"required"`
	Objective       string             `json:"objective" validate:"required"`
	TotalBudget     float64            `json:"total_budget" validate:"gte=0"`
	BudgetBreakdown map[string]float64 `json:"budget_breakdown" validate:"required,dive,gte=0"`
	AdGroups        []AdGroup          `json:"ad_groups" validate:"required,min=1,dive"`
	Checks          PlanChecks         `json:"checks"`
}

// Clone returns a deep copy of the plan. Target values are copied one
// level deep; nested target values are shared.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	if p.BudgetBreakdown != nil {
		out.BudgetBreakdown = make(map[string]float64, len(p.BudgetBreakdown))
		for k, v := range p.BudgetBreakdown {
			out.BudgetBreakdown[k] = v
		}
	}
	if p.AdGroups != nil {
		out.AdGroups = make([]AdGroup, len(p.AdGroups))
		for i, ag := range p.AdGroups {
			cp := ag
			if ag.Target != nil {
				cp.Target = make(map[string]interface{}, len(ag.Target))
				for k, v := range ag.Target {
					cp.Target[k] = v
				}
			}
			if ag.Creatives != nil {
				cp.Creatives = make([]Creative, len(ag.Creatives))
				for j, c := range ag.Creatives {
					cp.Creatives[j] = c.clone()
				}
			}
			out.AdGroups[i] = cp
		}
	}
	return &out
}

func (c Creative) clone() Creative {
	out := c
	if c.RelativeScore != nil {
		v := *c.RelativeScore
		out.RelativeScore = &v
	}
	if c.PerformanceRank != nil {
		v := *c.PerformanceRank
		out.PerformanceRank = &v
	}
	if c.ScoreFactors != nil {
		v := *c.ScoreFactors
		out.ScoreFactors = &v
	}
	return out
}

// SortedChannels returns the budget breakdown keys in lexical order.
func SortedChannels(breakdown map[string]float64) []string {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SumBudget adds the breakdown values in key order, counting non-finite
// entries as zero.
func SumBudget(breakdown map[string]float64) float64 {
	var sum float64
	for _, k := range SortedChannels(breakdown) {
		v := breakdown[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
	}
	return sum
}

// ── Scoring ──────────────────────────────────────────────────

// CreativeScore is the heuristic performance estimate for one creative.
type CreativeScore struct {
	CreativeID string       `json:"creativeId"`
	Score      float64      `json:"score"`
	Factors    ScoreFactors `json:"factors"`
	Rank       int          `json:"rank"`
}

// ── Request Metrics ──────────────────────────────────────────

// HallucinationFlags summarises invented claims detected in a plan.
type HallucinationFlags struct {
	ProductFeaturesInvented bool    `json:"productFeaturesInvented"`
	InvalidChannels         bool    `json:"invalidChannels"`
	Score                   float64 `json:"score"`
}

// TokenCounts mirrors the generator's token usage.
type TokenCounts struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// RequestMetrics is the per-request record emitted after a plan is built.
type RequestMetrics struct {
	RequestID          string             `json:"requestId"`
	CampaignID         string             `json:"campaignId"`
	Timestamp          time.Time          `json:"timestamp"`
	Tokens             TokenCounts        `json:"tokens"`
	Latency            int64              `json:"latency"`
	Provider           string             `json:"provider,omitempty"`
	Model              string             `json:"model,omitempty"`
	Attempts           int                `json:"attempts,omitempty"`
	Grounded           bool               `json:"grounded"`
	HallucinationFlags HallucinationFlags `json:"hallucinationFlags"`
	ValidationErrors   []string           `json:"validationErrors"`
}

// ── Knowledge Base ───────────────────────────────────────────

// ProductFact is a verified product entry in the knowledge base.
type ProductFact struct {
	ProductID           string   `json:"product_id"`
	ProductName         string   `json:"product_name"`
	VerifiedFeatures    []string `json:"verified_features"`
	OfficialPrice       string   `json:"official_price"`
	TrialLength         *string  `json:"trial_length"`
	OfficialDescription string   `json:"official_description"`
	TargetAudience      []string `json:"target_audience"`
	KeyBenefits         []string `json:"key_benefits"`
}

// AdMetric is a historical campaign performance record.
type AdMetric struct {
	CampaignID           string   `json:"campaign_id"`
	ProductCategory      string   `json:"product_category"`
	Channel              string   `json:"channel"`
	HeadlineType         string   `json:"headline_type"`
	HeadlineKeywords     []string `json:"headline_keywords"`
	CTR                  float64  `json:"ctr"`
	ConversionRate       float64  `json:"conversion_rate"`
	AvgCostPerConversion float64  `json:"avg_cost_per_conversion"`
}

// Performance is the ranking signal CTR × conversion rate.
func (m AdMetric) Performance() float64 {
	return m.CTR * m.ConversionRate
}

// KnowledgeBase is the immutable grounding corpus.
type KnowledgeBase struct {
	Products  []ProductFact `json:"products"`
	AdMetrics []AdMetric    `json:"ad_metrics"`
}

// ── Text Generation ──────────────────────────────────────────

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RouteRequest is a single text-generation call.
type RouteRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	JSONMode    bool          `json:"json_mode,omitempty"`
}

type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// RouteResponse is the completion returned by a provider.
type RouteResponse struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	Usage     TokenUsage `json:"usage"`
	LatencyMs int64      `json:"latency_ms"`
	Attempt   int        `json:"attempt"`
}

// ModelProvider is a configured generation backend.
type ModelProvider struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Endpoint     string `json:"endpoint,omitempty"`
	APIKey       string `json:"-"`
	DefaultModel string `json:"default_model"`
}

// ProviderUsage accumulates attempts and tokens per provider.
type ProviderUsage struct {
	Provider     string `json:"provider"`
	Attempts     int64  `json:"attempts"`
	Failures     int64  `json:"failures"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	AvgLatencyMs int64  `json:"avg_latency_ms"`
}
