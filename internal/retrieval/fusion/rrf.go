package fusion

import (
	"sort"

	"courserag/internal/models"
)

// Options carries the fusion constants; all are configuration, with the
// usual literature defaults (k=60, equal list weights).
type Options struct {
	K               float64
	BM25Weight      float64
	EmbeddingWeight float64
}

// FuseRRF merges the lexical and semantic rankings with reciprocal rank
// fusion: each candidate scores sum(weight_list / (k + rank_in_list)) over
// the lists it appears in; absence contributes zero. With non-degenerate
// weights this is monotonic — a candidate on top of both lists cannot be
// outranked by a single-list candidate. Output is sorted descending, ties
// broken by material id.
func FuseRRF(lex, sem []models.RetrievalHit, opts Options) []models.FusedResult {
	if opts.K <= 0 {
		opts.K = 60
	}
	type agg struct {
		score   float64
		sources []models.HitSource
	}
	m := make(map[string]*agg, len(lex)+len(sem))
	add := func(hits []models.RetrievalHit, weight float64) {
		for _, h := range hits {
			a, ok := m[h.MaterialID]
			if !ok {
				a = &agg{}
				m[h.MaterialID] = a
			}
			a.score += weight / (opts.K + float64(h.Rank))
			a.sources = append(a.sources, h.Source)
		}
	}
	add(lex, opts.BM25Weight)
	add(sem, opts.EmbeddingWeight)

	out := make([]models.FusedResult, 0, len(m))
	for id, a := range m {
		out = append(out, models.FusedResult{MaterialID: id, FusedScore: a.score, Sources: a.sources})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore == out[j].FusedScore {
			return out[i].MaterialID < out[j].MaterialID
		}
		return out[i].FusedScore > out[j].FusedScore
	})
	return out
}
