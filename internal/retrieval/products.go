// Package retrieval grounds plan generation in the knowledge base.
//
// It matches a brief's product against verified product facts with a
// lexical similarity score (TF-IDF-like plus Jaccard, with name and category
// boosts), selects historical ad metrics for the brief's category and
// channels, and renders both into the grounding block injected into the
// generation prompt.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/radicai/ad-agent-api/pkg/contracts"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("ad-agent-api/retrieval")

// Matching weights and thresholds.
const (
	LexicalWeight       = 0.7
	JaccardWeight       = 0.3
	NameBoost           = 0.5
	CategoryBoost       = 0.2
	SimilarityThreshold = 0.1
)

// Match types reported by RankProducts.
const (
	MatchExact   = "exact"
	MatchLexical = "tfidf"
)

// ProductMatch is one scored knowledge base product.
type ProductMatch struct {
	Product   *models.ProductFact `json:"product"`
	Score     float64             `json:"score"`
	MatchType string              `json:"match_type"`
}

// Retriever reads the knowledge base through a KnowledgeSource. It holds no
// per-request state and is safe for concurrent use.
type Retriever struct {
	kb contracts.KnowledgeSource
}

// NewRetriever creates a retriever over the given knowledge source.
func NewRetriever(kb contracts.KnowledgeSource) *Retriever {
	return &Retriever{kb: kb}
}

// RetrieveProductFacts resolves the brief's product to a knowledge base
// entry. It returns nil (and no error) when nothing scores above
// SimilarityThreshold. The only error is a knowledge base load failure.
func (r *Retriever) RetrieveProductFacts(ctx context.Context, brief *models.Brief) (*models.ProductFact, error) {
	ctx, span := tracer.Start(ctx, "retrieval.product_facts")
	defer span.End()

	kb, err := r.kb.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	best := BestProductMatch(kb, brief)
	if best == nil {
		span.SetAttributes(attribute.Bool("retrieval.matched", false))
		return nil, nil
	}

	span.SetAttributes(
		attribute.Bool("retrieval.matched", true),
		attribute.String("retrieval.product_id", best.Product.ProductID),
		attribute.String("retrieval.match_type", best.MatchType),
		attribute.Float64("retrieval.score", best.Score),
	)
	if best.MatchType != MatchExact {
		log.Info().
			Str("product", best.Product.ProductName).
			Float64("score", best.Score).
			Msg("Best knowledge base match")
	}
	return best.Product, nil
}

// BestProductMatch returns the exact-name match if one exists, otherwise the
// top ranked product when its score exceeds SimilarityThreshold, otherwise nil.
func BestProductMatch(kb *models.KnowledgeBase, brief *models.Brief) *ProductMatch {
	name := strings.ToLower(strings.TrimSpace(brief.Product.Name))
	for i := range kb.Products {
		p := &kb.Products[i]
		if strings.ToLower(p.ProductName) == name {
			return &ProductMatch{Product: p, Score: 1, MatchType: MatchExact}
		}
	}

	ranked := RankProducts(kb, brief)
	if len(ranked) == 0 || ranked[0].Score <= SimilarityThreshold {
		return nil
	}
	return &ranked[0]
}

// RankProducts scores every knowledge base product against the brief and
// returns them best first. Ties keep knowledge base order.
func RankProducts(kb *models.KnowledgeBase, brief *models.Brief) []ProductMatch {
	name := strings.ToLower(strings.TrimSpace(brief.Product.Name))
	category := strings.ToLower(brief.Product.Category)
	features := strings.ToLower(strings.Join(brief.Product.KeyFeatures, " "))
	query := name + " " + category + " " + features

	docs := make([]string, len(kb.Products))
	for i := range kb.Products {
		docs[i] = productText(&kb.Products[i])
	}
	corpus := NewCorpus(docs)

	matches := make([]ProductMatch, len(kb.Products))
	for i := range kb.Products {
		p := &kb.Products[i]
		score := LexicalWeight*corpus.LexicalScore(query, docs[i]) + JaccardWeight*Jaccard(query, docs[i])
		score += boosts(name, category, p)
		matches[i] = ProductMatch{Product: p, Score: score, MatchType: MatchLexical}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// boosts adds the unclamped name and category bonuses.
func boosts(name, category string, p *models.ProductFact) float64 {
	var b float64
	productName := strings.ToLower(p.ProductName)
	if strings.Contains(name, productName) || strings.Contains(productName, name) {
		b += NameBoost
	}

	idPrefix, _, _ := strings.Cut(p.ProductID, "_")
	categoryHead, _, _ := strings.Cut(category, " ")
	if strings.Contains(category, idPrefix) || strings.Contains(p.ProductID, categoryHead) {
		b += CategoryBoost
	}
	return b
}

func productText(p *models.ProductFact) string {
	return p.ProductName + " " + p.ProductID + " " + p.OfficialDescription + " " + strings.Join(p.VerifiedFeatures, " ")
}
