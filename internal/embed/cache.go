package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"notelm/internal/observability"
)

// Cache stores query embeddings keyed by (model, text). Batch ingestion
// bypasses the cache; only single-text lookups (queries) go through it.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// CacheKey derives a stable key from the model and the exact query text.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "embed:" + hex.EncodeToString(sum[:])
}

type memoryCache struct {
	mu sync.RWMutex
	m  map[string][]float32
}

func NewMemoryCache() Cache {
	return &memoryCache{m: make(map[string][]float32)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.m[key]
	return vec, ok
}

func (c *memoryCache) Set(_ context.Context, key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = vec
}

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects a redis-backed cache. Failures degrade to misses;
// the cache never fails an embedding request.
func NewRedisCache(redisURL string, ttl time.Duration) (Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisCache{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *redisCache) Set(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("embed_cache_set_failed")
	}
}

// CachedProvider wraps a Provider with a query-embedding cache.
type CachedProvider struct {
	inner Provider
	cache Cache
	model string
}

func WithCache(inner Provider, cache Cache, model string) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache, model: model}
}

func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }

func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(p.model, text)
	if vec, ok := p.cache.Get(ctx, key); ok {
		return vec, nil
	}
	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(ctx, key, vec)
	return vec, nil
}

// EmbedBatch passes through uncached: batches come from ingestion, where
// content is new by construction.
func (p *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.inner.EmbedBatch(ctx, texts)
}
