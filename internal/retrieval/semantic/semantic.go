package semantic

import (
	"math"
	"sort"

	"courserag/internal/models"
)

// Index ranks materials by cosine similarity between a query embedding and
// each material's precomputed chunk embeddings. Materials may carry several
// chunk vectors; the best chunk wins.
type Index struct{}

func New() *Index { return &Index{} }

// Search returns up to limit hits ranked descending by similarity, ties
// broken by material id. A nil query vector or empty corpus yields an empty
// result; materials without embeddings are skipped. Callers degrade to
// lexical-only retrieval when this returns nothing.
func (ix *Index) Search(queryVec []float32, corpus []models.Material, limit int) []models.RetrievalHit {
	if len(queryVec) == 0 || len(corpus) == 0 {
		return nil
	}
	hits := make([]models.RetrievalHit, 0, len(corpus))
	for _, m := range corpus {
		best := math.Inf(-1)
		for _, chunk := range m.Embedding {
			if len(chunk) != len(queryVec) {
				continue
			}
			if s := Cosine(queryVec, chunk); s > best {
				best = s
			}
		}
		if math.IsInf(best, -1) {
			continue
		}
		hits = append(hits, models.RetrievalHit{MaterialID: m.ID, RawScore: best, Source: models.SourceSemantic})
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

// Cosine computes cosine similarity between two vectors of equal length.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MeanVector averages a material's chunk embeddings into one vector; used by
// the diversifier to compare candidates. Returns nil when no usable chunks.
func MeanVector(chunks [][]float32) []float32 {
	if len(chunks) == 0 {
		return nil
	}
	dim := len(chunks[0])
	if dim == 0 {
		return nil
	}
	out := make([]float32, dim)
	n := 0
	for _, c := range chunks {
		if len(c) != dim {
			continue
		}
		for i, v := range c {
			out[i] += v
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range out {
		out[i] /= float32(n)
	}
	return out
}
