// Package contextbuild turns a question into a budget-bounded,
// citation-indexed context document grounded in course materials.
package contextbuild

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"courserag/internal/confidence"
	"courserag/internal/config"
	"courserag/internal/llm"
	"courserag/internal/log"
	"courserag/internal/models"
	"courserag/internal/retrieval/fusion"
	"courserag/internal/retrieval/lexical"
	"courserag/internal/retrieval/semantic"
	"courserag/internal/router"
	"courserag/internal/store"
)

// priorityBoost multiplies the fused score of materials whose kind appears
// in BuildOptions.PriorityTypes.
const priorityBoost = 1.2

// Builder orchestrates retrieval, fusion, diversification, routing and
// assembly. It is safe for concurrent use; the router's cache is the only
// shared state.
type Builder struct {
	cfg    config.Tuning
	mats   store.MaterialStore
	hist   store.HistoryStore
	emb    llm.Embedder
	lex    *lexical.Index
	sem    *semantic.Index
	rt     *router.Router
	scorer *confidence.Scorer
	tokens *TokenCounter
	logger *log.Logger
	now    func() time.Time
}

func New(cfg config.Tuning, mats store.MaterialStore, hist store.HistoryStore, emb llm.Embedder, rt *router.Router, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New()
	}
	if rt == nil {
		rt = router.New(cfg, nil, logger)
	}
	return &Builder{
		cfg:    cfg,
		mats:   mats,
		hist:   hist,
		emb:    emb,
		lex:    lexical.New(cfg.BM25K1, cfg.BM25B),
		sem:    semantic.New(),
		rt:     rt,
		scorer: confidence.New(cfg),
		tokens: NewTokenCounter(logger),
		logger: logger,
		now:    time.Now,
	}
}

// Router exposes the builder's router, mainly so callers can register the
// material-change invalidation hook.
func (b *Builder) Router() *router.Router { return b.rt }

// Build is the single entry point: route the question, retrieve at the
// decided intensity (or reuse the cache), and assemble the context document.
// No failure here is fatal; the worst case is a thinner context.
func (b *Builder) Build(ctx context.Context, question string, opts models.BuildOptions) (models.CourseContext, error) {
	if err := ctx.Err(); err != nil {
		return models.CourseContext{}, err
	}
	corpus, err := b.mats.GetMaterials(ctx, opts.CourseID)
	if err != nil {
		return models.CourseContext{}, fmt.Errorf("load materials: %w", err)
	}

	var history []models.QueryHistoryEntry
	if b.hist != nil {
		if h, err := b.hist.RecentQueries(ctx, opts.UserID, opts.CourseID, 20); err == nil {
			history = h
		} else {
			b.logger.Warn("history unavailable", "err", err.Error())
		}
	}

	conf := b.scorer.Score(question, vocabulary(corpus), history)
	key := ""
	if !opts.DisableCache {
		key = router.Key(opts.CourseID, question, opts)
	}
	decision := b.rt.Decide(key, conf)

	if decision.Action == models.ActionUseCache {
		if cc, ok := b.rt.Cache().GetContext(key); ok {
			cc.Routing = &decision // report this request's decision, not the original build's
			b.recordHistory(ctx, question, opts, len(cc.Materials) > 0, true)
			return cc, nil
		}
		// entry expired between decision and read: fall through to retrieval
		decision.Action = models.ActionRetrieveStandard
		decision.Reasoning += "; cache entry expired before read, retrieved instead"
	}

	plan := b.rt.PlanFor(decision.Action, opts)
	build := func() (models.CourseContext, error) {
		return b.buildFresh(ctx, question, corpus, plan, opts, decision)
	}
	var cc models.CourseContext
	if key != "" {
		cc, err = b.rt.Build(key, build)
	} else {
		cc, err = build()
	}
	if err != nil {
		return models.CourseContext{}, err
	}
	b.recordHistory(ctx, question, opts, len(cc.Materials) > 0, false)
	return cc, nil
}

func (b *Builder) buildFresh(ctx context.Context, question string, corpus []models.Material, plan router.Plan, opts models.BuildOptions, decision models.RoutingDecision) (models.CourseContext, error) {
	sel := b.retrieve(ctx, question, corpus, plan, opts)
	if err := ctx.Err(); err != nil {
		return models.CourseContext{}, err
	}

	// aggressive routing widens an empty scoped build to all courses
	if len(sel) == 0 && plan.MultiCourse && opts.CourseID != "" {
		if all, err := b.mats.GetMaterials(ctx, ""); err == nil && len(all) > len(corpus) {
			b.logger.Info("aggressive fan-out to all courses", "query", question)
			sel = b.retrieve(ctx, question, all, plan, opts)
		}
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.cfg.MaxTokens
	}
	terms := queryTermsFor(question)
	text, ranked, used := b.assemble(sel, terms, maxTokens, 0)

	cc := models.CourseContext{
		CourseID:        opts.CourseID,
		Materials:       ranked,
		ContextText:     text,
		EstimatedTokens: used,
		BuiltAt:         b.now(),
		Routing:         &decision,
	}
	if opts.CourseID != "" {
		if c, ok, err := b.mats.GetCourse(ctx, opts.CourseID); err == nil && ok {
			cc.CourseCode, cc.CourseName = c.Code, c.Name
		}
	}
	return cc, nil
}

// candidate pairs a material with its fused relevance.
type candidate struct {
	mat   models.Material
	score float64
}

// retrieve runs lexical and semantic search concurrently, fuses with RRF,
// admits by minimum relevance and diversifies with MMR.
func (b *Builder) retrieve(ctx context.Context, question string, corpus []models.Material, plan router.Plan, opts models.BuildOptions) []candidate {
	if len(corpus) == 0 {
		return nil
	}
	var (
		wg      sync.WaitGroup
		lexHits []models.RetrievalHit
		semHits []models.RetrievalHit
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		lexHits = b.lex.Search(question, corpus, plan.PoolLimit)
	}()
	if b.emb != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecs, err := b.emb.Embeddings(ctx, "", []string{question})
			if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
				// degraded: lexical-only retrieval, reduced recall
				if err != nil {
					b.logger.Warn("embedding backend unavailable, lexical-only", "err", err.Error())
				}
				return
			}
			semHits = b.sem.Search(vecs[0], corpus, plan.PoolLimit)
		}()
	}
	wg.Wait()

	fused := fusion.FuseRRF(lexHits, semHits, fusion.Options{
		K:               b.cfg.RRFK,
		BM25Weight:      b.cfg.BM25Weight,
		EmbeddingWeight: b.cfg.EmbeddingWeight,
	})
	if len(fused) == 0 {
		return nil
	}

	byID := make(map[string]models.Material, len(corpus))
	for _, m := range corpus {
		byID[m.ID] = m
	}

	// priority kinds get a boost before admission and diversification
	if len(opts.PriorityTypes) > 0 {
		prio := make(map[string]struct{}, len(opts.PriorityTypes))
		for _, t := range opts.PriorityTypes {
			prio[strings.ToLower(t)] = struct{}{}
		}
		for i := range fused {
			if _, ok := prio[string(byID[fused[i].MaterialID].Kind)]; ok {
				fused[i].FusedScore *= priorityBoost
			}
		}
		sort.Slice(fused, func(i, j int) bool {
			if fused[i].FusedScore == fused[j].FusedScore {
				return fused[i].MaterialID < fused[j].MaterialID
			}
			return fused[i].FusedScore > fused[j].FusedScore
		})
	}

	// admission by relevance relative to the top candidate
	top := fused[0].FusedScore
	admitted := fused[:0]
	for _, f := range fused {
		if top > 0 && f.FusedScore/top < plan.MinRelevance {
			continue
		}
		admitted = append(admitted, f)
	}

	selected := fusion.DiversifyMMR(admitted, byID, plan.MaxMaterials, b.cfg.MMRLambda)
	out := make([]candidate, 0, len(selected))
	for _, s := range selected {
		out = append(out, candidate{mat: byID[s.MaterialID], score: s.FusedScore})
	}
	return out
}

// assemble extracts excerpts and greedily packs them under the token budget.
// When the next excerpt would overflow, it is truncated to fit if the
// remaining budget is still useful, otherwise dropped. Citations are
// numbered from citationOffset+1 in inclusion order.
func (b *Builder) assemble(sel []candidate, terms []string, maxTokens, citationOffset int) (string, []models.RankedMaterial, int) {
	var sb strings.Builder
	ranked := make([]models.RankedMaterial, 0, len(sel))
	remaining := maxTokens
	citation := citationOffset

	for _, c := range sel {
		if remaining <= 0 {
			break
		}
		ex := extractExcerpt(c.mat.Text, terms)
		if ex.Text == "" {
			continue
		}
		header := fmt.Sprintf("[%d] %s (%s)\n", citation+1, c.mat.Title, c.mat.Kind)
		block := header + ex.Text + "\n\n"
		cost := b.tokens.Count(block)
		if cost > remaining {
			// budget-underflow handling: truncate to fit when useful
			if remaining < b.cfg.MinUsefulTokens {
				break
			}
			headerCost := b.tokens.Count(header)
			body := b.tokens.Truncate(ex.Text, remaining-headerCost-1)
			if body == "" {
				break
			}
			block = header + body + "\n\n"
			cost = b.tokens.Count(block)
			if cost > remaining {
				break
			}
			ex.Text = body
		}
		citation++
		sb.WriteString(block)
		remaining -= cost
		ranked = append(ranked, models.RankedMaterial{
			MaterialID:      c.mat.ID,
			Title:           c.mat.Title,
			Score:           c.score,
			Excerpt:         ex.Text,
			MatchedKeywords: ex.Matched,
			SpanStart:       ex.Start,
			SpanEnd:         ex.End,
			Citation:        citation,
			Tokens:          cost,
		})
	}
	return sb.String(), ranked, maxTokens - remaining
}

func (b *Builder) recordHistory(ctx context.Context, question string, opts models.BuildOptions, answered, cacheHit bool) {
	if b.hist == nil {
		return
	}
	err := b.hist.RecordQuery(ctx, models.QueryHistoryEntry{
		UserID:   opts.UserID,
		CourseID: opts.CourseID,
		Query:    question,
		Answered: answered,
		CacheHit: cacheHit,
		AskedAt:  b.now(),
	})
	if err != nil {
		b.logger.Warn("record query failed", "err", err.Error())
	}
}

// vocabulary collects the corpus-side tokens used by the confidence scorer's
// semantic features.
func vocabulary(corpus []models.Material) map[string]struct{} {
	vocab := make(map[string]struct{})
	for _, m := range corpus {
		for _, t := range lexical.Terms(m.Title) {
			vocab[t] = struct{}{}
		}
		for _, kw := range m.Keywords {
			for _, t := range lexical.Tokenize(kw) {
				vocab[t] = struct{}{}
			}
		}
	}
	return vocab
}
