package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/rs/zerolog/log"
)

var (
	kbPricePattern   = regexp.MustCompile(`\$?(\d+\.?\d*)`)
	planPricePattern = regexp.MustCompile(`(?i)\$?\s*(\d+\.?\d{0,2})\s*(?:per|/|month|mo)`)
)

// ValidateAgainstKB cross-checks prices in the plan against the matched
// knowledge base product. It returns one message per problem and nothing
// when the product is unknown, its price has no number, or the plan states
// no period-qualified price. The error is reserved for retrieval failures.
func (d *Detector) ValidateAgainstKB(ctx context.Context, brief *models.Brief, plan *models.Plan) ([]string, error) {
	if d.products == nil {
		return nil, nil
	}
	product, err := d.products.RetrieveProductFacts(ctx, brief)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}

	logMentionedFeatures(product, plan)

	text, err := planText(plan)
	if err != nil {
		return nil, fmt.Errorf("serialize plan: %w", err)
	}

	var errs []string
	if msg := d.checkPrice(product.OfficialPrice, text); msg != "" {
		errs = append(errs, msg)
	}
	return errs, nil
}

// checkPrice compares every period-qualified amount in planText with the
// numeric part of officialPrice. It returns "" when they agree or when
// either side has no amount.
func (d *Detector) checkPrice(officialPrice, planText string) string {
	kbMatch := kbPricePattern.FindStringSubmatch(strings.ToLower(officialPrice))
	if kbMatch == nil {
		return ""
	}
	kbPrice, err := strconv.ParseFloat(kbMatch[1], 64)
	if err != nil {
		return ""
	}

	matches := planPricePattern.FindAllStringSubmatch(planText, -1)
	if len(matches) == 0 {
		return ""
	}

	found := make([]string, 0, len(matches))
	for _, m := range matches {
		found = append(found, m[0])
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if math.Abs(amount-kbPrice) < d.policy.PriceTolerance {
			return ""
		}
	}
	return fmt.Sprintf("Price in plan (%s) doesn't match KB price (%s)", strings.Join(found, ", "), officialPrice)
}

// planText is the lowercased JSON form of the plan.
func planText(plan *models.Plan) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(plan); err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(buf.String())), nil
}

func logMentionedFeatures(product *models.ProductFact, plan *models.Plan) {
	mentioned := 0
	for _, ag := range plan.AdGroups {
		for _, c := range ag.Creatives {
			text := strings.ToLower(c.Headline + " " + c.Body)
			for _, f := range product.VerifiedFeatures {
				if strings.Contains(text, strings.ToLower(f)) {
					mentioned++
				}
			}
		}
	}
	log.Debug().
		Str("product", product.ProductName).
		Int("verified_feature_mentions", mentioned).
		Msg("Creatives checked against verified features")
}
