package contextbuild

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"courserag/internal/models"
)

// maxFanoutCourses caps how many courses share the budget in a fan-out.
const maxFanoutCourses = 4

// BuildMultiCourse handles un-scoped questions: it retrieves per course,
// ranks courses by aggregate relevance mass and splits the shared token
// budget proportionally before assembling one merged, course-labeled
// document. Citations are numbered globally in inclusion order.
func (b *Builder) BuildMultiCourse(ctx context.Context, question string, opts models.BuildOptions) (models.CourseContext, error) {
	if err := ctx.Err(); err != nil {
		return models.CourseContext{}, err
	}
	courses, err := b.mats.ListCourses(ctx)
	if err != nil {
		return models.CourseContext{}, fmt.Errorf("list courses: %w", err)
	}
	all, err := b.mats.GetMaterials(ctx, "")
	if err != nil {
		return models.CourseContext{}, fmt.Errorf("load materials: %w", err)
	}
	byCourse := make(map[string][]models.Material)
	for _, m := range all {
		byCourse[m.CourseID] = append(byCourse[m.CourseID], m)
	}

	var history []models.QueryHistoryEntry
	if b.hist != nil {
		if h, err := b.hist.RecentQueries(ctx, opts.UserID, "", 20); err == nil {
			history = h
		} else {
			b.logger.Warn("history unavailable", "err", err.Error())
		}
	}

	conf := b.scorer.Score(question, vocabulary(all), history)
	decision := b.rt.Decide("", conf) // fan-out results are not cached as a unit
	plan := b.rt.PlanFor(decision.Action, opts)

	type courseSel struct {
		course models.Course
		sel    []candidate
		mass   float64
	}
	var pools []courseSel
	for _, c := range courses {
		corpus := byCourse[c.ID]
		if len(corpus) == 0 {
			continue
		}
		sel := b.retrieve(ctx, question, corpus, plan, opts)
		if len(sel) == 0 {
			continue
		}
		mass := 0.0
		for _, s := range sel {
			mass += s.score
		}
		pools = append(pools, courseSel{course: c, sel: sel, mass: mass})
	}
	if err := ctx.Err(); err != nil {
		return models.CourseContext{}, err
	}

	sort.Slice(pools, func(i, j int) bool {
		if pools[i].mass == pools[j].mass {
			return pools[i].course.ID < pools[j].course.ID
		}
		return pools[i].mass > pools[j].mass
	})
	if len(pools) > maxFanoutCourses {
		pools = pools[:maxFanoutCourses]
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.cfg.MaxTokens
	}
	totalMass := 0.0
	for _, p := range pools {
		totalMass += p.mass
	}

	var (
		sb       strings.Builder
		ranked   []models.RankedMaterial
		used     int
		terms    = queryTermsFor(question)
		citation = 0
	)
	for _, p := range pools {
		share := maxTokens
		if totalMass > 0 && len(pools) > 1 {
			share = int(float64(maxTokens) * p.mass / totalMass)
		}
		if share < b.cfg.MinUsefulTokens {
			continue
		}
		label := fmt.Sprintf("## %s — %s\n\n", p.course.Code, p.course.Name)
		labelCost := b.tokens.Count(label)
		if used+labelCost >= maxTokens {
			break
		}
		text, rm, t := b.assemble(p.sel, terms, share-labelCost, citation)
		if len(rm) == 0 {
			continue
		}
		sb.WriteString(label)
		sb.WriteString(text)
		used += labelCost + t
		citation += len(rm)
		ranked = append(ranked, rm...)
	}

	return models.CourseContext{
		Materials:       ranked,
		ContextText:     sb.String(),
		EstimatedTokens: used,
		BuiltAt:         b.now(),
		Routing:         &decision,
	}, nil
}
