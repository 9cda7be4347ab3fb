package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/models"
	"go.opentelemetry.io/otel/attribute"
)

// RetrieveAdMetrics returns the historical metrics relevant to the brief,
// best performing (ctr × conversion_rate) first. A metric is relevant when
// its category equals the brief category or is contained in it, and when
// channels is empty or one of them equals the metric channel ignoring case.
// The result is not truncated.
func (r *Retriever) RetrieveAdMetrics(ctx context.Context, brief *models.Brief, channels []string) ([]models.AdMetric, error) {
	ctx, span := tracer.Start(ctx, "retrieval.ad_metrics")
	defer span.End()

	kb, err := r.kb.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := FilterAdMetrics(kb.AdMetrics, brief.Product.Category, channels)
	span.SetAttributes(attribute.Int("retrieval.metrics", len(out)))
	return out, nil
}

// FilterAdMetrics applies the category and channel filters to metrics and
// sorts the survivors by descending performance. Ties keep input order.
func FilterAdMetrics(metrics []models.AdMetric, category string, channels []string) []models.AdMetric {
	category = strings.ToLower(category)

	out := make([]models.AdMetric, 0, len(metrics))
	for _, m := range metrics {
		metricCategory := strings.ToLower(m.ProductCategory)
		if metricCategory != category && !strings.Contains(category, metricCategory) {
			continue
		}
		if !channelRequested(channels, m.Channel) {
			continue
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Performance() > out[j].Performance()
	})
	return out
}

func channelRequested(channels []string, channel string) bool {
	if len(channels) == 0 {
		return true
	}
	for _, c := range channels {
		if strings.EqualFold(c, channel) {
			return true
		}
	}
	return false
}
