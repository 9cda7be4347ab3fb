package planner

import (
	"fmt"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/models"
)

// FinalizePlan repairs a parsed plan against its brief and returns a new
// plan; raw is not modified.
//
// Ad groups and creatives missing ids get "ag_{i+1}" and "c_{i+1}{a,b,...}".
// Ad groups missing a channel get one round-robin from the brief's channels,
// or from the sorted budget keys when the brief has none. Score annotations
// are dropped. total_budget is always the brief's budget. The repaired plan
// is validated again before checks are computed.
func FinalizePlan(brief *models.Brief, raw *models.Plan) (*models.Plan, error) {
	plan := raw.Clone()
	assignIDsAndChannels(plan, brief)
	plan.TotalBudget = brief.Budget

	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	plan.Checks = ComputeChecks(plan, brief.Budget)
	return plan, nil
}

// ComputeChecks derives the plan's validation flags. budget_sum_ok uses
// exact equality.
func ComputeChecks(plan *models.Plan, budget float64) models.PlanChecks {
	channelValid := true
	for ch := range plan.BudgetBreakdown {
		if !models.IsAllowedChannel(ch) {
			channelValid = false
			break
		}
	}
	return models.PlanChecks{
		BudgetSumOK:           models.SumBudget(plan.BudgetBreakdown) == budget,
		RequiredFieldsPresent: true,
		ChannelValid:          channelValid,
	}
}

// CheckMessages describes failed checks as validation error strings.
func CheckMessages(plan *models.Plan) []string {
	var msgs []string
	if !plan.Checks.BudgetSumOK {
		msgs = append(msgs, fmt.Sprintf("budget_breakdown sums to %.2f but total_budget is %.2f",
			models.SumBudget(plan.BudgetBreakdown), plan.TotalBudget))
	}
	if !plan.Checks.ChannelValid {
		var bad []string
		for _, ch := range models.SortedChannels(plan.BudgetBreakdown) {
			if !models.IsAllowedChannel(ch) {
				bad = append(bad, ch)
			}
		}
		msgs = append(msgs, fmt.Sprintf("budget_breakdown has channels outside %s: %s",
			strings.Join(models.AllowedChannels, ", "), strings.Join(bad, ", ")))
	}
	return msgs
}

func assignIDsAndChannels(plan *models.Plan, brief *models.Brief) {
	channels := []string(brief.Channels)
	if len(channels) == 0 {
		channels = models.SortedChannels(plan.BudgetBreakdown)
	}

	for i := range plan.AdGroups {
		ag := &plan.AdGroups[i]
		if ag.ID == "" {
			ag.ID = fmt.Sprintf("ag_%d", i+1)
		}
		if ag.Channel == "" && len(channels) > 0 {
			ag.Channel = channels[i%len(channels)]
		}
		for j := range ag.Creatives {
			c := &ag.Creatives[j]
			if c.ID == "" {
				c.ID = fmt.Sprintf("c_%d%c", i+1, rune('a'+j))
			}
			c.RelativeScore = nil
			c.PerformanceRank = nil
			c.ScoreFactors = nil
		}
	}
}
