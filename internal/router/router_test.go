package router

import (
	"errors"
	"strings"
	"testing"
	"time"

	"courserag/internal/config"
	"courserag/internal/models"
)

func conf(score float64, level models.ConfidenceLevel) models.ConfidenceScore {
	return models.ConfidenceScore{Score: score, Level: level}
}

func TestKeyCanonicalization(t *testing.T) {
	a := Key("cs101", "  What IS   the heap property? ", models.BuildOptions{PriorityTypes: []string{"slide", "lecture"}})
	b := Key("cs101", "what is the heap property?", models.BuildOptions{PriorityTypes: []string{"lecture", "slide"}})
	if a != b {
		t.Fatalf("equivalent requests produced different keys:\n%s\n%s", a, b)
	}
	if !strings.HasPrefix(a, "c=cs101|") {
		t.Fatalf("key missing clear course prefix: %s", a)
	}
	c := Key("cs101", "what is the heap property?", models.BuildOptions{MaxTokens: 500})
	if a == c {
		t.Fatal("different options should produce different keys")
	}
}

func TestDecideLowConfidenceGoesAggressive(t *testing.T) {
	r := New(config.Defaults(), nil, nil)
	d := r.Decide("k", conf(20, models.LevelLow))
	if d.Action != models.ActionRetrieveAggressive {
		t.Fatalf("action = %s, want retrieve-aggressive", d.Action)
	}
	if d.ID == "" || d.DecidedAt.IsZero() {
		t.Fatalf("decision metadata missing: %+v", d)
	}
}

func TestDecideCacheHitRequiresLiveEntry(t *testing.T) {
	cfg := config.Defaults()
	cache := NewCache(8, time.Minute)
	r := New(cfg, cache, nil)
	key := Key("cs101", "heap property", models.BuildOptions{})

	if d := r.Decide(key, conf(85, models.LevelHigh)); d.Action != models.ActionRetrieveStandard {
		t.Fatalf("no entry: action = %s, want retrieve-standard", d.Action)
	}

	cache.Put(key, models.CourseContext{CourseID: "cs101"})
	if d := r.Decide(key, conf(85, models.LevelHigh)); d.Action != models.ActionUseCache {
		t.Fatalf("live entry: action = %s, want use-cache", d.Action)
	}
}

func TestDecideExpiredEntryNeverReused(t *testing.T) {
	cfg := config.Defaults()
	cache := NewCache(8, 20*time.Millisecond)
	r := New(cfg, cache, nil)
	key := Key("cs101", "heap property", models.BuildOptions{})
	cache.Put(key, models.CourseContext{CourseID: "cs101"})
	time.Sleep(60 * time.Millisecond)
	if d := r.Decide(key, conf(85, models.LevelHigh)); d.Action == models.ActionUseCache {
		t.Fatal("expired entry must not route to use-cache")
	}
}

func TestDecideBorderlineMediumExpands(t *testing.T) {
	cfg := config.Defaults() // bands 40/70, midpoint 55
	r := New(cfg, NewCache(8, time.Minute), nil)
	if d := r.Decide("k", conf(45, models.LevelMedium)); d.Action != models.ActionRetrieveExpanded {
		t.Fatalf("score 45: action = %s, want retrieve-expanded", d.Action)
	}
	if d := r.Decide("k", conf(60, models.LevelMedium)); d.Action != models.ActionRetrieveStandard {
		t.Fatalf("score 60: action = %s, want retrieve-standard", d.Action)
	}
}

func TestPlanForScalesWithAction(t *testing.T) {
	cfg := config.Defaults()
	r := New(cfg, nil, nil)
	std := r.PlanFor(models.ActionRetrieveStandard, models.BuildOptions{})
	exp := r.PlanFor(models.ActionRetrieveExpanded, models.BuildOptions{})
	agg := r.PlanFor(models.ActionRetrieveAggressive, models.BuildOptions{})

	if exp.PoolLimit <= std.PoolLimit || agg.PoolLimit <= exp.PoolLimit {
		t.Fatalf("pool limits not widening: %d, %d, %d", std.PoolLimit, exp.PoolLimit, agg.PoolLimit)
	}
	if agg.MinRelevance >= std.MinRelevance {
		t.Fatalf("aggressive admission %v not below standard %v", agg.MinRelevance, std.MinRelevance)
	}
	if !agg.MultiCourse || std.MultiCourse {
		t.Fatal("only aggressive plans allow multi-course fan-out")
	}
	opt := r.PlanFor(models.ActionRetrieveStandard, models.BuildOptions{MaxMaterials: 9, MinRelevance: 0.3})
	if opt.MaxMaterials != 9 || opt.MinRelevance != 0.3 {
		t.Fatalf("caller overrides ignored: %+v", opt)
	}
}

func TestBuildCachesSuccessOnly(t *testing.T) {
	cfg := config.Defaults()
	cache := NewCache(8, time.Minute)
	r := New(cfg, cache, nil)

	if _, err := r.Build("k1", func() (models.CourseContext, error) {
		return models.CourseContext{}, errors.New("boom")
	}); err == nil {
		t.Fatal("build error swallowed")
	}
	if cache.Has("k1") {
		t.Fatal("failed build must not populate the cache")
	}

	cc, err := r.Build("k2", func() (models.CourseContext, error) {
		return models.CourseContext{CourseID: "cs101"}, nil
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cc.CourseID != "cs101" || !cache.Has("k2") {
		t.Fatal("successful build not cached")
	}
}

func TestCacheForeignValueIsAMiss(t *testing.T) {
	c := NewCache(8, time.Minute)
	c.lru.Add("k", 42)
	if _, ok := c.GetContext("k"); ok {
		t.Fatal("foreign value served as a context")
	}
	if c.Len() != 0 {
		t.Fatalf("foreign value not dropped, %d entries resident", c.Len())
	}
}

func TestInvalidateCourseDropsOnlyThatCourse(t *testing.T) {
	cache := NewCache(8, time.Minute)
	k1 := Key("cs101", "heap", models.BuildOptions{})
	k2 := Key("cs101", "stack", models.BuildOptions{})
	k3 := Key("ma201", "heap", models.BuildOptions{})
	for _, k := range []string{k1, k2, k3} {
		cache.Put(k, models.CourseContext{})
	}
	if n := cache.InvalidateCourse("cs101"); n != 2 {
		t.Fatalf("invalidated %d entries, want 2", n)
	}
	if cache.Has(k1) || cache.Has(k2) {
		t.Fatal("cs101 entries survived invalidation")
	}
	if !cache.Has(k3) {
		t.Fatal("ma201 entry wrongly invalidated")
	}
}
