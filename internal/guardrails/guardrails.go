// Package guardrails checks generated plans for claims the brief and the
// knowledge base do not support.
//
// Checks:
//   - invented features: feature-sounding keywords in creatives that no
//     brief key feature accounts for
//   - invalid channels: budget keys outside the allowed channel set
//   - price mismatch: period-qualified prices in the plan that disagree
//     with the knowledge base's official price
//
// Findings are data, never errors: the detector returns flags and messages
// for the caller to surface.
package guardrails

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/models"
	"gopkg.in/yaml.v3"
)

// ── Policy ──────────────────────────────────────────────────

// Policy holds the keyword tables and penalties used by the detector.
type Policy struct {
	// SuspiciousKeywords are feature claims flagged unless a brief feature covers them.
	SuspiciousKeywords []string `yaml:"suspicious_keywords"`
	// AllowedKeywords are generic descriptors that are never flagged.
	AllowedKeywords []string `yaml:"allowed_keywords"`
	AllowedChannels []string `yaml:"allowed_channels"`

	FeaturePenalty float64 `yaml:"feature_penalty"`
	ChannelPenalty float64 `yaml:"channel_penalty"`
	MaxScore       float64 `yaml:"max_score"`

	// PriceTolerance is the absolute difference under which a plan price
	// agrees with the knowledge base price.
	PriceTolerance float64 `yaml:"price_tolerance"`
}

// DefaultPolicy returns the built-in guardrail tables.
func DefaultPolicy() Policy {
	return Policy{
		SuspiciousKeywords: []string{
			"analytics", "reporting", "automation", "ml", "machine learning",
			"encryption", "backup", "collaboration", "real-time", "sync",
		},
		AllowedKeywords: []string{"ai", "cloud", "secure", "integration", "offline", "api"},
		AllowedChannels: append([]string(nil), models.AllowedChannels...),
		FeaturePenalty:  0.1,
		ChannelPenalty:  0.1,
		MaxScore:        1,
		PriceTolerance:  0.11,
	}
}

type policyFile struct {
	Guardrails *Policy `yaml:"guardrails"`
}

// LoadPolicy reads the `guardrails:` section of a YAML policy file on top of
// DefaultPolicy. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultPolicy(), fmt.Errorf("read guardrails policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML document with a `guardrails:` section.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policyFile{Guardrails: &p}); err != nil {
		return DefaultPolicy(), fmt.Errorf("parse guardrails policy: %w", err)
	}
	if p.MaxScore <= 0 {
		return DefaultPolicy(), fmt.Errorf("guardrails policy: max_score must be positive")
	}
	if len(p.AllowedChannels) == 0 {
		return DefaultPolicy(), fmt.Errorf("guardrails policy: allowed_channels must not be empty")
	}
	return p, nil
}

// ── Detector ────────────────────────────────────────────────

// ProductSource resolves a brief to its knowledge base entry.
// Implementation: retrieval.Retriever.
type ProductSource interface {
	RetrieveProductFacts(ctx context.Context, brief *models.Brief) (*models.ProductFact, error)
}

// Detector runs the hallucination and knowledge base checks.
type Detector struct {
	products ProductSource
	policy   Policy
}

// NewDetector creates a detector. products may be nil, in which case
// ValidateAgainstKB reports nothing.
func NewDetector(products ProductSource, policy Policy) *Detector {
	return &Detector{products: products, policy: policy}
}

var (
	featureSplit = regexp.MustCompile(`[\s\-_,]+`)
	keywordSplit = regexp.MustCompile(`[\s\-_]+`)
)

// DetectHallucinations flags invented product features and invalid budget
// channels. Each suspicious keyword found in a creative and not covered by
// a brief feature adds FeaturePenalty; each invalid channel adds
// ChannelPenalty. The score is capped at MaxScore.
func (d *Detector) DetectHallucinations(brief *models.Brief, plan *models.Plan) models.HallucinationFlags {
	var flags models.HallucinationFlags
	p := d.policy

	featureWords := briefFeatureWords(brief)

	for _, ag := range plan.AdGroups {
		for _, c := range ag.Creatives {
			text := strings.ToLower(c.Headline + " " + c.Body)
			for _, kw := range p.SuspiciousKeywords {
				if contains(p.AllowedKeywords, kw) || !strings.Contains(text, kw) {
					continue
				}
				if coveredByFeatures(kw, featureWords) {
					continue
				}
				flags.ProductFeaturesInvented = true
				flags.Score += p.FeaturePenalty
			}
		}
	}

	for _, ch := range models.SortedChannels(plan.BudgetBreakdown) {
		if !contains(p.AllowedChannels, strings.ToLower(ch)) {
			flags.InvalidChannels = true
			flags.Score += p.ChannelPenalty
		}
	}

	flags.Score = math.Min(p.MaxScore, flags.Score)
	return flags
}

// briefFeatureWords returns every word longer than two characters of each
// lowercased key feature, plus each whole feature phrase.
func briefFeatureWords(brief *models.Brief) []string {
	seen := make(map[string]struct{})
	var words []string
	add := func(w string) {
		if _, ok := seen[w]; ok {
			return
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	for _, f := range brief.Product.KeyFeatures {
		f = strings.ToLower(f)
		for _, w := range featureSplit.Split(f, -1) {
			if len(w) > 2 {
				add(w)
			}
		}
		add(f)
	}
	return words
}

// coveredByFeatures reports whether any word of keyword fuzzy-matches a
// brief feature word (substring in either direction).
func coveredByFeatures(keyword string, featureWords []string) bool {
	for _, kw := range keywordSplit.Split(keyword, -1) {
		for _, fw := range featureWords {
			if strings.Contains(fw, kw) || strings.Contains(kw, fw) {
				return true
			}
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
