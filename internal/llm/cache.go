package llm

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachingEmbedder wraps an Embedder with an LRU keyed by model + input, so
// repeated queries (the common case for course questions) skip the backend.
type CachingEmbedder struct {
	u     Embedder
	cache *lru.Cache[string, []float32]
}

func NewCaching(u Embedder, size int) *CachingEmbedder {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, []float32](size)
	return &CachingEmbedder{u: u, cache: c}
}

func (c *CachingEmbedder) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	var missIdx []int
	for i, s := range inputs {
		if v, ok := c.cache.Get(key(model, s)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}
	req := make([]string, len(missIdx))
	for j, i := range missIdx {
		req[j] = inputs[i]
	}
	vecs, err := c.u.Embeddings(ctx, model, req)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		if j < len(vecs) {
			out[i] = vecs[j]
			c.cache.Add(key(model, inputs[i]), vecs[j])
		}
	}
	return out, nil
}

func key(model, input string) string {
	h := sha1.Sum([]byte(model + "|" + input))
	return hex.EncodeToString(h[:])
}
