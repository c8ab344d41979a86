package router

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"courserag/internal/models"
)

// Cache is the injected, concurrency-safe context cache shared across
// requests. It is constructed explicitly and handed to the router; there is
// no package-level instance. TTL expiry and eviction are owned by the
// underlying expirable LRU.
type Cache struct {
	lru *expirable.LRU[string, any]
}

// NewCache builds a TTL-bounded LRU cache. size caps resident entries and
// ttl bounds their lifetime; both come from configuration.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 512
	}
	return &Cache{lru: expirable.NewLRU[string, any](size, nil, ttl)}
}

// GetContext returns a live cached CourseContext. An entry holding any other
// type is treated as a miss and dropped, to be overwritten by the next
// successful build.
func (c *Cache) GetContext(key string) (models.CourseContext, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return models.CourseContext{}, false
	}
	cc, ok := v.(models.CourseContext)
	if !ok {
		c.lru.Remove(key)
		return models.CourseContext{}, false
	}
	return cc, true
}

// Has reports whether a live entry of the expected type exists.
func (c *Cache) Has(key string) bool {
	_, ok := c.GetContext(key)
	return ok
}

// Put stores a successfully built context under key.
func (c *Cache) Put(key string, cc models.CourseContext) {
	c.lru.Add(key, cc)
}

// InvalidateCourse drops every entry scoped to courseID. Material updates
// for a course must call this; entries otherwise expire only by TTL.
func (c *Cache) InvalidateCourse(courseID string) int {
	prefix := "c=" + courseID + "|"
	n := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
			n++
		}
	}
	return n
}

// Len reports the number of resident entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Key canonicalizes (normalized query, course scope, build options) into a
// cache key. The course id stays in clear text so invalidation can match by
// prefix; the rest is hashed.
func Key(courseID, query string, opts models.BuildOptions) string {
	q := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
	types := append([]string(nil), opts.PriorityTypes...)
	sort.Strings(types)
	sig := fmt.Sprintf("q=%s|mm=%d|mr=%g|mt=%d|pt=%s", q, opts.MaxMaterials, opts.MinRelevance, opts.MaxTokens, strings.Join(types, ","))
	h := sha1.Sum([]byte(sig))
	return "c=" + courseID + "|" + hex.EncodeToString(h[:])
}
