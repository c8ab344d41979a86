// Package confidence estimates, from the query alone plus optional history,
// how likely a good answer is achievable with cheap or no retrieval.
package confidence

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"courserag/internal/config"
	"courserag/internal/models"
	"courserag/internal/retrieval/lexical"
)

var (
	reCourseCode = regexp.MustCompile(`\b[A-Za-z]{2,4}[ -]?\d{3}\b`)
	reWeekMarker = regexp.MustCompile(`(?i)\b(week|lecture|chapter|unit|module)\s*\d+\b`)
)

var genericPronouns = map[string]struct{}{
	"this": {}, "that": {}, "it": {}, "they": {}, "these": {}, "those": {},
	"thing": {}, "things": {}, "stuff": {}, "something": {},
}

// Scorer combines lexical, semantic and historical sub-scores, each
// normalized to [0,100], with configured weights.
type Scorer struct {
	cfg config.Tuning
	now func() time.Time
}

func New(cfg config.Tuning) *Scorer {
	return &Scorer{cfg: cfg, now: time.Now}
}

// Score computes the composite confidence for a query. vocab is the corpus
// vocabulary (tokens of material keywords and titles); history may be nil.
func (s *Scorer) Score(query string, vocab map[string]struct{}, history []models.QueryHistoryEntry) models.ConfidenceScore {
	lw, sw, hw := normalizeWeights(s.cfg.LexicalWeight, s.cfg.SemanticWeight, s.cfg.HistoricalWeight)

	lex, lexScore := lexicalSubScore(query)
	sem, semScore := semanticSubScore(query, vocab)
	hist, histScore := historicalSubScore(query, history)

	score := clamp(lw*lexScore+sw*semScore+hw*histScore, 0, 100)
	level := LevelFor(score, s.cfg)

	return models.ConfidenceScore{
		Score: score,
		Level: level,
		Breakdown: models.FeatureBreakdown{
			Lexical:          lex,
			Semantic:         sem,
			Historical:       hist,
			LexicalScore:     lexScore,
			SemanticScore:    semScore,
			HistoricalScore:  histScore,
			LexicalWeight:    lw,
			SemanticWeight:   sw,
			HistoricalWeight: hw,
		},
		Reasoning: reasoning(lex, sem, hist, lexScore, semScore, histScore),
		DecidedAt: s.now(),
	}
}

// LevelFor derives the band for a score under the configured thresholds.
// It is a pure function of (score, cfg); band values are never hardcoded by
// callers.
func LevelFor(score float64, cfg config.Tuning) models.ConfidenceLevel {
	switch {
	case score >= cfg.HighBand:
		return models.LevelHigh
	case score >= cfg.MediumBand:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

func lexicalSubScore(query string) (models.LexicalFeatures, float64) {
	terms := lexical.Tokenize(query)
	f := models.LexicalFeatures{
		QueryLength:   len(terms),
		HasCourseCode: reCourseCode.MatchString(query),
		HasWeekMarker: reWeekMarker.MatchString(query),
	}
	content := 0
	for _, t := range terms {
		if _, ok := genericPronouns[t]; ok {
			f.GenericPronoun++
			continue
		}
		if lexical.IsStopword(t) {
			continue
		}
		content++
		if len(t) >= 7 || strings.ContainsAny(t, "0123456789") {
			f.TechnicalTerms++
		}
	}
	if len(terms) > 0 {
		f.Specificity = float64(content) / float64(len(terms))
	}

	score := 40 * f.Specificity
	if f.HasCourseCode {
		score += 20
	}
	if f.HasWeekMarker {
		score += 15
	}
	score += 10 * minf(float64(f.TechnicalTerms), 3)
	score -= 15 * float64(f.GenericPronoun)
	if f.QueryLength < 2 {
		score -= 20 // one-word queries are rarely answerable from cache
	}
	return f, clamp(score, 0, 100)
}

func semanticSubScore(query string, vocab map[string]struct{}) (models.SemanticFeatures, float64) {
	terms := lexical.Terms(query)
	var f models.SemanticFeatures
	if len(terms) == 0 {
		f.Ambiguity = 1
		return f, 0
	}
	distinct := make(map[string]struct{}, len(terms))
	matched := 0
	for _, t := range terms {
		if _, seen := distinct[t]; seen {
			continue
		}
		distinct[t] = struct{}{}
		if _, ok := vocab[t]; ok {
			matched++
		}
	}
	f.KeywordCoverage = float64(matched) / float64(len(distinct))
	// Focus rewards queries whose terms cluster on corpus vocabulary rather
	// than scattering across unknown words.
	f.TopicFocus = f.KeywordCoverage
	if len(distinct) > 8 {
		f.TopicFocus *= 8 / float64(len(distinct))
	}
	f.Ambiguity = 1 - f.KeywordCoverage

	score := 70*f.KeywordCoverage + 30*f.TopicFocus
	return f, clamp(score, 0, 100)
}

func historicalSubScore(query string, history []models.QueryHistoryEntry) (models.HistoricalFeatures, float64) {
	var f models.HistoricalFeatures
	if len(history) == 0 {
		// Neutral midpoint: no history is neither evidence for nor against.
		return f, 50
	}
	qset := termSet(query)
	answered, hits := 0, 0
	for _, h := range history {
		if h.Answered {
			answered++
		}
		if h.CacheHit {
			hits++
		}
		if sim := jaccard(qset, termSet(h.Query)); sim > f.PriorSimilarity {
			f.PriorSimilarity = sim
		}
	}
	f.PastSuccessRate = float64(answered) / float64(len(history))
	f.UserFamiliarity = minf(float64(len(history))/10, 1)
	f.CacheHitProb = f.PriorSimilarity * float64(hits+1) / float64(len(history)+1)

	score := 40*f.PastSuccessRate + 30*f.PriorSimilarity + 15*f.UserFamiliarity + 15*f.CacheHitProb
	return f, clamp(score, 0, 100)
}

func reasoning(lex models.LexicalFeatures, sem models.SemanticFeatures, hist models.HistoricalFeatures, ls, ss, hs float64) string {
	var parts []string
	if lex.HasCourseCode {
		parts = append(parts, "course code present")
	}
	if lex.HasWeekMarker {
		parts = append(parts, "week/lecture marker present")
	}
	if lex.GenericPronoun > 0 {
		parts = append(parts, fmt.Sprintf("%d generic pronouns", lex.GenericPronoun))
	}
	parts = append(parts, fmt.Sprintf("keyword coverage %.2f", sem.KeywordCoverage))
	if hist.PriorSimilarity > 0 {
		parts = append(parts, fmt.Sprintf("prior-query similarity %.2f", hist.PriorSimilarity))
	}
	return fmt.Sprintf("lexical=%.0f semantic=%.0f historical=%.0f (%s)", ls, ss, hs, strings.Join(parts, ", "))
}

func normalizeWeights(lw, sw, hw float64) (float64, float64, float64) {
	total := lw + sw + hw
	if total <= 0 {
		return 0.4, 0.4, 0.2
	}
	return lw / total, sw / total, hw / total
}

func termSet(q string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range lexical.Terms(q) {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
