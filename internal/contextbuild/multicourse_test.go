package contextbuild

import (
	"context"
	"strings"
	"testing"

	"courserag/internal/models"
	"courserag/internal/store"
)

func TestBuildMultiCourseLabelsAndGlobalCitations(t *testing.T) {
	s := store.NewMem()
	seedCourse(t, s, "cs101", "CS101",
		models.Material{ID: "cs-m1", Title: "Recursion basics", Kind: models.KindLecture, Text: longText("recursion", 10)},
	)
	seedCourse(t, s, "ma201", "MA201",
		models.Material{ID: "ma-m1", Title: "Recurrence relations", Kind: models.KindLecture, Text: longText("recursion recurrence", 10)},
	)
	b := newTestBuilder(t, s)

	cc, err := b.BuildMultiCourse(context.Background(), "recursion", models.BuildOptions{MaxTokens: 2000})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(cc.ContextText, "## CS101") || !strings.Contains(cc.ContextText, "## MA201") {
		t.Fatalf("course labels missing:\n%s", cc.ContextText)
	}
	if len(cc.Materials) != 2 {
		t.Fatalf("got %d materials, want one per course", len(cc.Materials))
	}
	seen := map[int]bool{}
	for _, rm := range cc.Materials {
		if seen[rm.Citation] {
			t.Fatalf("duplicate citation %d across courses", rm.Citation)
		}
		seen[rm.Citation] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("citations not globally sequential: %+v", cc.Materials)
	}
}

func TestBuildMultiCourseBudgetSharedAndBounded(t *testing.T) {
	s := store.NewMem()
	seedCourse(t, s, "cs101", "CS101",
		models.Material{ID: "cs-m1", Title: "Recursion A", Kind: models.KindLecture, Text: longText("recursion", 60)},
		models.Material{ID: "cs-m2", Title: "Recursion B", Kind: models.KindLecture, Text: longText("recursion patterns", 60)},
	)
	seedCourse(t, s, "ma201", "MA201",
		models.Material{ID: "ma-m1", Title: "Recurrences", Kind: models.KindLecture, Text: longText("recursion recurrence", 60)},
	)
	b := newTestBuilder(t, s)

	budget := 400
	cc, err := b.BuildMultiCourse(context.Background(), "recursion", models.BuildOptions{MaxTokens: budget})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cc.EstimatedTokens > budget {
		t.Fatalf("shared budget exceeded: %d > %d", cc.EstimatedTokens, budget)
	}
	if got := b.tokens.Count(cc.ContextText); got > budget {
		t.Fatalf("actual merged text is %d tokens", got)
	}
	if len(cc.Materials) == 0 {
		t.Fatal("nothing assembled")
	}
}

func TestBuildMultiCourseBudgetProportionalToMass(t *testing.T) {
	s := store.NewMem()
	seedCourse(t, s, "cs101", "CS101",
		models.Material{ID: "cs-m1", Title: "Recursion A", Kind: models.KindLecture, Text: longText("recursion", 40)},
		models.Material{ID: "cs-m2", Title: "Recursion B", Kind: models.KindLecture, Text: longText("recursion base", 40)},
		models.Material{ID: "cs-m3", Title: "Recursion C", Kind: models.KindLecture, Text: longText("recursion tree", 40)},
	)
	seedCourse(t, s, "ma201", "MA201",
		models.Material{ID: "ma-m1", Title: "Recurrences", Kind: models.KindLecture, Text: longText("recursion recurrence", 40)},
	)
	b := newTestBuilder(t, s)

	budget := 400
	cc, err := b.BuildMultiCourse(context.Background(), "recursion", models.BuildOptions{MaxTokens: budget})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cc.EstimatedTokens > budget {
		t.Fatalf("shared budget exceeded: %d > %d", cc.EstimatedTokens, budget)
	}
	var csTok, maTok int
	for _, rm := range cc.Materials {
		if strings.HasPrefix(rm.MaterialID, "cs-") {
			csTok += rm.Tokens
		} else {
			maTok += rm.Tokens
		}
	}
	if csTok == 0 || maTok == 0 {
		t.Fatalf("both courses should contribute: cs=%d ma=%d", csTok, maTok)
	}
	// cs101 holds three of the four matching materials, roughly 3/4 of the
	// relevance mass, and should receive roughly that share of the budget
	ratio := float64(csTok) / float64(csTok+maTok)
	if ratio < 0.6 || ratio > 0.9 {
		t.Fatalf("cs101 got %.2f of the used budget (cs=%d ma=%d), want ~0.75", ratio, csTok, maTok)
	}
}

func TestBuildMultiCourseScoresAgainstPooledVocabulary(t *testing.T) {
	s := store.NewMem()
	seedCourse(t, s, "cs101", "CS101",
		models.Material{ID: "cs-m1", Title: "Quicksort", Kind: models.KindLecture,
			Text: longText("quicksort partition pivot", 10), Keywords: []string{"quicksort", "partition", "pivot"}},
	)
	b := newTestBuilder(t, s)

	cc, err := b.BuildMultiCourse(context.Background(), "quicksort partition pivot", models.BuildOptions{MaxTokens: 1000})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	conf := cc.Routing.Confidence
	if conf.Breakdown.SemanticScore == 0 {
		t.Fatalf("fully covered query scored zero semantic: %+v", conf.Breakdown)
	}
	if cc.Routing.Action == models.ActionRetrieveAggressive {
		t.Fatalf("well-covered query routed aggressive: score=%v action=%s", conf.Score, cc.Routing.Action)
	}
}

func TestBuildMultiCourseSkipsIrrelevantCourses(t *testing.T) {
	s := store.NewMem()
	seedCourse(t, s, "cs101", "CS101",
		models.Material{ID: "cs-m1", Title: "Recursion", Kind: models.KindLecture, Text: longText("recursion", 10)},
	)
	seedCourse(t, s, "bio300", "BIO300",
		models.Material{ID: "bio-m1", Title: "Photosynthesis", Kind: models.KindLecture, Text: longText("chloroplast membrane", 10)},
	)
	b := newTestBuilder(t, s)

	cc, err := b.BuildMultiCourse(context.Background(), "recursion", models.BuildOptions{MaxTokens: 1000})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(cc.ContextText, "BIO300") {
		t.Fatalf("course with no hits included:\n%s", cc.ContextText)
	}
}

func TestBuildMultiCourseNoCoursesIsEmpty(t *testing.T) {
	b := newTestBuilder(t, store.NewMem())
	cc, err := b.BuildMultiCourse(context.Background(), "anything", models.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cc.ContextText != "" || len(cc.Materials) != 0 {
		t.Fatalf("expected empty context: %+v", cc)
	}
}
