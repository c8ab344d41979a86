package fusion

import (
	"courserag/internal/models"
	"courserag/internal/retrieval/lexical"
	"courserag/internal/retrieval/semantic"
)

// DiversifyMMR selects up to maxMaterials candidates by maximal marginal
// relevance: each round picks the candidate maximizing
// lambda*relevance - (1-lambda)*max similarity to the already-selected set.
// Relevance is the fused score normalized to [0,1]. Similarity between two
// candidates uses their embeddings when both carry them, otherwise keyword
// overlap. This keeps three near-identical slide decks from crowding out a
// single relevant lecture transcript.
func DiversifyMMR(cands []models.FusedResult, byID map[string]models.Material, maxMaterials int, lambda float64) []models.FusedResult {
	if maxMaterials <= 0 || len(cands) == 0 {
		return nil
	}
	if len(cands) <= maxMaterials {
		out := make([]models.FusedResult, len(cands))
		copy(out, cands)
		return out
	}

	maxScore := cands[0].FusedScore
	for _, c := range cands {
		if c.FusedScore > maxScore {
			maxScore = c.FusedScore
		}
	}
	rel := func(c models.FusedResult) float64 {
		if maxScore <= 0 {
			return 0
		}
		return c.FusedScore / maxScore
	}

	selected := make([]models.FusedResult, 0, maxMaterials)
	remaining := make([]models.FusedResult, len(cands))
	copy(remaining, cands)

	for len(selected) < maxMaterials && len(remaining) > 0 {
		bestIdx := -1
		bestVal := 0.0
		for i, c := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if sim := Similarity(byID[c.MaterialID], byID[s.MaterialID]); sim > maxSim {
					maxSim = sim
				}
			}
			val := lambda*rel(c) - (1-lambda)*maxSim
			if bestIdx < 0 || val > bestVal ||
				(val == bestVal && c.MaterialID < remaining[bestIdx].MaterialID) {
				bestIdx, bestVal = i, val
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// Similarity compares two materials: cosine of their mean chunk embeddings
// when available, keyword Jaccard overlap otherwise.
func Similarity(a, b models.Material) float64 {
	va := semantic.MeanVector(a.Embedding)
	vb := semantic.MeanVector(b.Embedding)
	if len(va) > 0 && len(va) == len(vb) {
		return semantic.Cosine(va, vb)
	}
	return keywordOverlap(a, b)
}

func keywordOverlap(a, b models.Material) float64 {
	sa := termSet(a)
	sb := termSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func termSet(m models.Material) map[string]struct{} {
	set := make(map[string]struct{})
	for _, kw := range m.Keywords {
		for _, t := range lexical.Tokenize(kw) {
			set[t] = struct{}{}
		}
	}
	if len(set) == 0 {
		for _, t := range lexical.Terms(m.Title) {
			set[t] = struct{}{}
		}
	}
	return set
}
