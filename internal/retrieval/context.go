package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/models"
)

// MaxContextMetrics is how many historical metrics the grounding block lists.
const MaxContextMetrics = 3

// Grounding is everything retrieved for one brief.
type Grounding struct {
	Product *models.ProductFact `json:"product"`
	Metrics []models.AdMetric   `json:"metrics"`
	Text    string              `json:"context"`
}

// Empty reports whether nothing was retrieved.
func (g *Grounding) Empty() bool {
	return g.Text == ""
}

// Ground retrieves product facts and metrics for the brief's channels and
// renders the grounding block.
func (r *Retriever) Ground(ctx context.Context, brief *models.Brief) (*Grounding, error) {
	ctx, span := tracer.Start(ctx, "retrieval.ground")
	defer span.End()

	product, err := r.RetrieveProductFacts(ctx, brief)
	if err != nil {
		return nil, err
	}
	metrics, err := r.RetrieveAdMetrics(ctx, brief, brief.Channels)
	if err != nil {
		return nil, err
	}

	return &Grounding{
		Product: product,
		Metrics: metrics,
		Text:    FormatContext(product, metrics),
	}, nil
}

// FormatRetrievedContext returns the grounding block for the brief, or ""
// when there is neither a product match nor any relevant metric.
func (r *Retriever) FormatRetrievedContext(ctx context.Context, brief *models.Brief) (string, error) {
	g, err := r.Ground(ctx, brief)
	if err != nil {
		return "", err
	}
	return g.Text, nil
}

// FormatContext renders verified product facts followed by up to
// MaxContextMetrics historical metrics.
func FormatContext(product *models.ProductFact, metrics []models.AdMetric) string {
	var parts []string

	if product != nil {
		parts = append(parts,
			"VERIFIED PRODUCT FACTS:",
			"- Product: "+product.ProductName,
			"- Verified Features: "+strings.Join(product.VerifiedFeatures, ", "),
			"- Official Price: "+product.OfficialPrice,
		)
		if product.TrialLength != nil && *product.TrialLength != "" {
			parts = append(parts, "- Trial: "+*product.TrialLength)
		}
		parts = append(parts, "- Description: "+product.OfficialDescription)
		if len(product.KeyBenefits) > 0 {
			parts = append(parts, "- Key Benefits: "+strings.Join(product.KeyBenefits, ", "))
		}
	}

	if len(metrics) > 0 {
		parts = append(parts, "\nHISTORICAL AD PERFORMANCE:")
		top := metrics
		if len(top) > MaxContextMetrics {
			top = top[:MaxContextMetrics]
		}
		for _, m := range top {
			parts = append(parts,
				fmt.Sprintf("- Channel: %s | Headline Type: %s", m.Channel, m.HeadlineType),
				fmt.Sprintf("  CTR: %.2f%% | Conversion: %.2f%%", m.CTR*100, m.ConversionRate*100),
				"  Effective Keywords: "+strings.Join(m.HeadlineKeywords, ", "),
			)
		}
	}

	return strings.Join(parts, "\n")
}
