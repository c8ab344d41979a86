package lexical

import (
	"math"
	"sort"

	"courserag/internal/models"
)

// Index ranks materials against a free-text query with Okapi BM25.
// k1 controls term-frequency saturation, b document-length normalization;
// both come from configuration.
type Index struct {
	k1 float64
	b  float64
}

func New(k1, b float64) *Index {
	return &Index{k1: k1, b: b}
}

type doc struct {
	id  string
	tf  map[string]int
	len int
}

// Search scores the corpus against query and returns up to limit hits ranked
// descending by raw score, ties broken by material id. Empty query or corpus
// yields an empty result, not an error.
func (ix *Index) Search(query string, corpus []models.Material, limit int) []models.RetrievalHit {
	terms := Terms(query)
	if len(terms) == 0 || len(corpus) == 0 {
		return nil
	}

	docs := make([]doc, 0, len(corpus))
	df := make(map[string]int)
	totalLen := 0
	for _, m := range corpus {
		d := doc{id: m.ID, tf: make(map[string]int)}
		for _, t := range Tokenize(m.Title) {
			d.tf[t]++
			d.len++
		}
		for _, kw := range m.Keywords {
			for _, t := range Tokenize(kw) {
				d.tf[t]++
				d.len++
			}
		}
		for _, t := range Tokenize(m.Text) {
			d.tf[t]++
			d.len++
		}
		for t := range d.tf {
			df[t]++
		}
		totalLen += d.len
		docs = append(docs, d)
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		return nil
	}

	// Lucene-style smoothing keeps IDF positive: log((N+1)/(df+1)) + 1.
	n := float64(len(docs))
	idf := make(map[string]float64, len(terms))
	for _, t := range terms {
		idf[t] = math.Log((n+1)/float64(df[t]+1)) + 1
	}

	hits := make([]models.RetrievalHit, 0, len(docs))
	for _, d := range docs {
		var score float64
		norm := ix.k1 * (1 - ix.b + ix.b*float64(d.len)/avgLen)
		for _, t := range terms {
			tf := float64(d.tf[t])
			if tf == 0 {
				continue
			}
			score += idf[t] * (tf * (ix.k1 + 1)) / (tf + norm)
		}
		if score > 0 {
			hits = append(hits, models.RetrievalHit{MaterialID: d.id, RawScore: score, Source: models.SourceLexical})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].RawScore == hits[j].RawScore {
			return hits[i].MaterialID < hits[j].MaterialID
		}
		return hits[i].RawScore > hits[j].RawScore
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}
