package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Archetype is a headline style recognised by keyword hits.
type Archetype struct {
	Type     string   `yaml:"type"`
	Keywords []string `yaml:"keywords"`
}

// LengthRange is an inclusive character-count window.
type LengthRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (r LengthRange) contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// Policy holds every keyword table and point weight the scorer uses.
// Zero values are not meaningful; start from DefaultPolicy.
type Policy struct {
	// Factor 1: overlap with the best historical headline keywords.
	KeywordMatchMax float64 `yaml:"keyword_match_max"`

	// Factor 2: headline archetype, checked in order; first hit wins.
	Archetypes                []Archetype `yaml:"archetypes"`
	HeadlineTypeMax           float64     `yaml:"headline_type_max"`
	HeadlineHitPoints         float64     `yaml:"headline_hit_points"`
	HeadlinePerformanceWeight float64     `yaml:"headline_performance_weight"`

	// Factor 3: copywriting best practices.
	ActionVerbs          []string    `yaml:"action_verbs"`
	ActionVerbPoints     float64     `yaml:"action_verb_points"`
	UrgencyWords         []string    `yaml:"urgency_words"`
	UrgencyPoints        float64     `yaml:"urgency_points"`
	CTAWords             []string    `yaml:"cta_words"`
	CTAPoints            float64     `yaml:"cta_points"`
	HeadlineLength       LengthRange `yaml:"headline_length"`
	HeadlineLengthPoints float64     `yaml:"headline_length_points"`
	BodyLength           LengthRange `yaml:"body_length"`
	BodyLengthPoints     float64     `yaml:"body_length_points"`
	ValueWords           []string    `yaml:"value_words"`
	ValuePoints          float64     `yaml:"value_points"`

	// Factor 4: channel baseline from average CTR × conversion.
	ChannelDefault float64 `yaml:"channel_default"`
	ChannelMax     float64 `yaml:"channel_max"`
	ChannelScale   float64 `yaml:"channel_scale"`

	// Bounds for the summed score.
	MinScore float64 `yaml:"min_score"`
	MaxScore float64 `yaml:"max_score"`
}

// DefaultPolicy returns the built-in scoring tables.
func DefaultPolicy() Policy {
	return Policy{
		KeywordMatchMax: 40,

		Archetypes: []Archetype{
			{Type: "trial-focused", Keywords: []string{"trial", "try", "free", "start", "begin"}},
			{Type: "feature-focused", Keywords: []string{"ai", "automation", "smart", "integrat", "sync"}},
			{Type: "benefit-focused", Keywords: []string{"productivity", "efficiency", "time", "save", "boost"}},
			{Type: "sustainability-focused", Keywords: []string{"eco", "sustainable", "green", "environment"}},
		},
		HeadlineTypeMax:           20,
		HeadlineHitPoints:         5,
		HeadlinePerformanceWeight: 10,

		ActionVerbs:          []string{"get", "try", "start", "discover", "join", "claim", "save", "boost"},
		ActionVerbPoints:     5,
		UrgencyWords:         []string{"now", "today", "limited", "new", "free"},
		UrgencyPoints:        5,
		CTAWords:             []string{"start", "try", "get", "claim", "sign up", "download"},
		CTAPoints:            5,
		HeadlineLength:       LengthRange{Min: 20, Max: 60},
		HeadlineLengthPoints: 3,
		BodyLength:           LengthRange{Min: 50, Max: 200},
		BodyLengthPoints:     2,
		ValueWords:           []string{"free", "save", "boost", "improve", "better", "faster", "easier"},
		ValuePoints:          5,

		ChannelDefault: 5,
		ChannelMax:     15,
		ChannelScale:   3000,

		MinScore: 0,
		MaxScore: 100,
	}
}

// policyFile is the on-disk layout shared with the guardrails policy.
type policyFile struct {
	Scoring *Policy `yaml:"scoring"`
}

// LoadPolicy reads the `scoring:` section of a YAML policy file on top of
// DefaultPolicy. Fields absent from the file keep their defaults. An empty
// path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read scoring policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML document with a `scoring:` section.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policyFile{Scoring: &p}); err != nil {
		return DefaultPolicy(), fmt.Errorf("parse scoring policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return DefaultPolicy(), err
	}
	return p, nil
}

// Validate rejects policies whose bounds cannot produce a usable score.
func (p Policy) Validate() error {
	if p.MaxScore <= p.MinScore {
		return fmt.Errorf("scoring policy: max_score %.2f must exceed min_score %.2f", p.MaxScore, p.MinScore)
	}
	if p.HeadlineLength.Min > p.HeadlineLength.Max || p.BodyLength.Min > p.BodyLength.Max {
		return fmt.Errorf("scoring policy: length range min exceeds max")
	}
	for _, a := range p.Archetypes {
		if a.Type == "" {
			return fmt.Errorf("scoring policy: archetype without type")
		}
	}
	return nil
}
