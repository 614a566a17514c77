package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
)

// CachedEmbedder memoizes embeddings in a bounded in-process LRU. The cache
// is shared by every request flow and by the enrichment worker; the LRU is
// internally synchronized. Concurrent misses for the same key may both call
// the inner embedder — the cache is an optimization, not a correctness
// barrier, so no per-key locking is held across the external call.
type CachedEmbedder struct {
	inner      domain.Embedder
	cache      *lru.Cache[string, []float32]
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator bounded to size entries.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	size int,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &CachedEmbedder{
		inner:      inner,
		cache:      cache,
		cacheTotal: cacheTotal,
		logger:     logger,
	}, nil
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.cache.Add(key, result.Embedding)
	return result, nil
}

// Len reports how many embeddings are currently cached.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// HealthCheck forwards to the inner embedder when it supports checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
