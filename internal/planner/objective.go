package planner

import (
	"fmt"
	"math"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/models"
)

// InferObjective maps a free-text goal to a plan objective.
func InferObjective(goal string) string {
	g := strings.ToLower(goal)
	switch {
	case strings.Contains(g, "trial") || strings.Contains(g, "signup"):
		return models.ObjectiveTrialSignups
	case strings.Contains(g, "convert") || strings.Contains(g, "purchase") || strings.Contains(g, "sale"):
		return models.ObjectiveConversions
	default:
		return models.ObjectiveAwareness
	}
}

// SplitBudget divides total evenly across channels in cents; the last
// channel takes the remainder.
func SplitBudget(total float64, channels []string) map[string]float64 {
	out := make(map[string]float64, len(channels))
	if len(channels) == 0 {
		return out
	}
	even := math.Floor(total/float64(len(channels))*100) / 100
	var allocated float64
	for i, c := range channels {
		v := even
		if i == len(channels)-1 {
			v = total - allocated
		}
		out[c] = math.Max(0, math.Round(v*100)/100)
		allocated += out[c]
	}
	return out
}

const (
	defaultAudience = "general productivity enthusiasts"
	maxDraftGroups  = 3
)

// DraftPlan builds a deterministic plan skeleton from the brief alone: one
// ad group per audience hint (up to three) with two template creatives.
// Groups take the brief's supported channels round-robin; unsupported brief
// channels still receive budget so the checks report them. When the brief
// names no supported channel the groups are left without one.
// It is a starting point for editing, not a generated plan.
func DraftPlan(brief *models.Brief) *models.Plan {
	hints := brief.AudienceHints
	if len(hints) == 0 {
		hints = []string{defaultAudience}
	}
	if len(hints) > maxDraftGroups {
		hints = hints[:maxDraftGroups]
	}

	feature := ""
	if len(brief.Product.KeyFeatures) > 0 {
		feature = brief.Product.KeyFeatures[0]
	}
	name := brief.Product.Name

	var channels []string
	for _, c := range brief.Channels {
		if models.IsAllowedChannel(c) {
			channels = append(channels, c)
		}
	}

	groups := make([]models.AdGroup, len(hints))
	for i, hint := range hints {
		groups[i] = models.AdGroup{
			ID: fmt.Sprintf("ag_%d", i+1),
			Target: map[string]interface{}{
				"hint":      hint,
				"age":       "25-45",
				"behaviors": []interface{}{"productivity apps", "remote work"},
			},
			Creatives: []models.Creative{
				{
					ID:            fmt.Sprintf("c_%da", i+1),
					Headline:      fmt.Sprintf("Try %s: Free 14-Day Trial", name),
					Body:          fmt.Sprintf("%s helps you with %s. Start free today.", name, feature),
					CTA:           "Start Free Trial",
					Justification: "Highlights trial and a key feature",
				},
				{
					ID:            fmt.Sprintf("c_%db", i+1),
					Headline:      fmt.Sprintf("Focus More, Do More with %s", name),
					Body:          fmt.Sprintf("%s that fits your calendar. %s.", feature, brief.Product.Price),
					CTA:           "Get Started",
					Justification: "Emphasizes the key feature and price",
				},
			},
		}
		if len(channels) > 0 {
			groups[i].Channel = channels[i%len(channels)]
		}
	}

	return &models.Plan{
		CampaignID:      brief.CampaignID,
		CampaignName:    name + " campaign",
		Objective:       InferObjective(brief.Goal),
		TotalBudget:     brief.Budget,
		BudgetBreakdown: SplitBudget(brief.Budget, brief.Channels),
		AdGroups:        groups,
	}
}
