// Package router decides retrieval intensity per request and owns the
// response cache.
package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"courserag/internal/config"
	"courserag/internal/log"
	"courserag/internal/models"
)

// Plan carries the retrieval parameters implied by a routing action.
type Plan struct {
	PoolLimit    int
	MaxMaterials int
	MinRelevance float64
	MultiCourse  bool
}

// Router is the one-shot state machine over RoutingAction. The cache it owns
// is the only state shared across concurrent requests.
type Router struct {
	cfg    config.Tuning
	cache  *Cache
	group  singleflight.Group
	logger *log.Logger
	now    func() time.Time
}

func New(cfg config.Tuning, cache *Cache, logger *log.Logger) *Router {
	if cache == nil {
		cache = NewCache(cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}
	if logger == nil {
		logger = log.New()
	}
	return &Router{cfg: cfg, cache: cache, logger: logger, now: time.Now}
}

func (r *Router) Cache() *Cache { return r.cache }

// Decide picks the action for one request. use-cache is only legal when a
// live entry exists for key AND confidence is at least medium; liveness is
// re-checked here so expiry between lookup and decision cannot slip through.
func (r *Router) Decide(key string, conf models.ConfidenceScore) models.RoutingDecision {
	action := models.ActionRetrieveStandard
	reason := ""
	switch conf.Level {
	case models.LevelLow:
		action = models.ActionRetrieveAggressive
		reason = fmt.Sprintf("confidence %.0f is low: widen pool, lower admission, allow fan-out", conf.Score)
	case models.LevelMedium, models.LevelHigh:
		if r.cache.Has(key) {
			action = models.ActionUseCache
			reason = fmt.Sprintf("confidence %.0f with live cache entry: reuse", conf.Score)
		} else if conf.Level == models.LevelMedium && conf.Score < r.borderline() {
			action = models.ActionRetrieveExpanded
			reason = fmt.Sprintf("confidence %.0f is borderline: widen candidate pool", conf.Score)
		} else {
			action = models.ActionRetrieveStandard
			reason = fmt.Sprintf("confidence %.0f without cache entry: standard retrieval", conf.Score)
		}
	}
	d := models.RoutingDecision{
		ID:         uuid.NewString(),
		Action:     action,
		CacheKey:   key,
		Confidence: conf,
		Reasoning:  reason,
		DecidedAt:  r.now(),
	}
	r.logger.Debug("routing decision", "action", string(action), "key", key, "score", conf.Score)
	return d
}

// borderline is the midpoint of the medium band; below it a medium-level
// query gets the expanded pool.
func (r *Router) borderline() float64 {
	return (r.cfg.MediumBand + r.cfg.HighBand) / 2
}

// PlanFor maps an action to concrete retrieval parameters, scaled from the
// caller's (or configured) baseline.
func (r *Router) PlanFor(action models.RoutingAction, opts models.BuildOptions) Plan {
	pool := r.cfg.CandidatePool
	maxM := opts.MaxMaterials
	if maxM <= 0 {
		maxM = r.cfg.MaxMaterials
	}
	minRel := opts.MinRelevance
	if minRel <= 0 {
		minRel = r.cfg.MinRelevance
	}
	p := Plan{PoolLimit: pool, MaxMaterials: maxM, MinRelevance: minRel}
	switch action {
	case models.ActionRetrieveExpanded:
		p.PoolLimit = pool * 2
		p.MaxMaterials = maxM + 2
	case models.ActionRetrieveAggressive:
		p.PoolLimit = pool * 3
		p.MaxMaterials = maxM + 3
		p.MinRelevance = minRel / 2
		p.MultiCourse = true
	}
	return p
}

// Build runs fn under singleflight so concurrent cache misses for the same
// key share one in-flight build instead of stampeding. Successful results
// are cached; failed or canceled builds are not.
func (r *Router) Build(key string, fn func() (models.CourseContext, error)) (models.CourseContext, error) {
	v, err, shared := r.group.Do(key, func() (any, error) {
		cc, err := fn()
		if err != nil {
			return models.CourseContext{}, err
		}
		r.cache.Put(key, cc)
		return cc, nil
	})
	if err != nil {
		return models.CourseContext{}, err
	}
	if shared {
		r.logger.Debug("shared in-flight build", "key", key)
	}
	return v.(models.CourseContext), nil
}

// Invalidate drops all cached contexts scoped to a course; called by the
// material store's update hook.
func (r *Router) Invalidate(courseID string) {
	if n := r.cache.InvalidateCourse(courseID); n > 0 {
		r.logger.Info("cache invalidated", "course", courseID, "entries", n)
	}
}
