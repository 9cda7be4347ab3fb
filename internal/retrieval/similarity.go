package retrieval

import "math"

// Corpus is the background document set used for inverse document
// frequency. It is immutable after construction.
type Corpus struct {
	docs []map[string]struct{}
}

// NewCorpus tokenizes every document once.
func NewCorpus(docs []string) *Corpus {
	c := &Corpus{docs: make([]map[string]struct{}, len(docs))}
	for i, d := range docs {
		c.docs[i] = tokenSet(d)
	}
	return c
}

// Size returns the number of documents.
func (c *Corpus) Size() int {
	return len(c.docs)
}

// DocumentFrequency counts documents containing token.
func (c *Corpus) DocumentFrequency(token string) int {
	n := 0
	for _, d := range c.docs {
		if _, ok := d[token]; ok {
			n++
		}
	}
	return n
}

// IDF is ln((N+1)/(df+1)).
func (c *Corpus) IDF(token string) float64 {
	return math.Log(float64(c.Size()+1) / float64(c.DocumentFrequency(token)+1))
}

// LexicalScore is the TF-IDF-like relevance of document to query.
//
// Every query token (repeats included) is looked up in the document; present
// tokens contribute tf × idf. The sum is divided by the total number of query
// tokens, not by the number that matched, so long queries with little overlap
// score lower.
func (c *Corpus) LexicalScore(query, document string) float64 {
	queryTokens := Tokenize(query)
	docTokens := Tokenize(document)
	if len(queryTokens) == 0 || len(docTokens) == 0 {
		return 0
	}

	tf := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		tf[t]++
	}

	var sum float64
	for _, q := range queryTokens {
		if n := tf[q]; n > 0 {
			sum += float64(n) * c.IDF(q)
		}
	}
	return sum / float64(len(queryTokens))
}

// Jaccard is |A ∩ B| / |A ∪ B| over the token sets of a and b.
// It is 0 when either side has no tokens.
func Jaccard(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
