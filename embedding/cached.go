package embedding

import (
	"context"

	"github.com/scholarmind/ragcore/cache"
)

// CachedProvider decorates a Provider with the embedding cache. Text→vector
// is stable for a fixed model, so entries use the cache's long default TTL.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache[[]float32]
}

// NewCachedProvider wraps inner with c.
func NewCachedProvider(inner Provider, c *cache.Cache[[]float32]) *CachedProvider {
	return &CachedProvider{inner: inner, cache: c}
}

func (p *CachedProvider) Model() string { return p.inner.Model() }

func (p *CachedProvider) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := cache.EmbeddingKey(p.inner.Model(), text)
	if vec, ok := p.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := p.inner.GetEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, vec, 0)
	return vec, nil
}

// Stats exposes the underlying cache counters.
func (p *CachedProvider) Stats() cache.Stats { return p.cache.Stats() }
