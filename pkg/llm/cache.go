package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/orito-labs/orito/pkg/cache"
)

// cacheTemperatureCeiling is the highest temperature at which completions
// are still deterministic enough to cache.
const cacheTemperatureCeiling = 0.1

// CachingCompleter decorates a Completer with a process-wide TTL cache.
// Reads are skipped when temperature > 0.1, when the request is part of a
// tool loop, or when SkipCache is set. Streaming requests are never cached
// but a cached result short-circuits the stream with a single chunk.
type CachingCompleter struct {
	inner Completer
	store *cache.Cache[Result]
}

// WithCache wraps a Completer with a completion cache.
func WithCache(inner Completer, maxSize int, ttl time.Duration) *CachingCompleter {
	return &CachingCompleter{
		inner: inner,
		store: cache.New[Result](maxSize, ttl),
	}
}

func (c *CachingCompleter) Complete(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	if !cacheable(opts) {
		return c.inner.Complete(ctx, messages, opts)
	}

	key := cacheKey(messages, opts)
	if cached, ok := c.store.Get(key); ok {
		result := cached
		return &result, nil
	}

	result, err := c.inner.Complete(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	c.store.Set(key, *result)
	return result, nil
}

func (c *CachingCompleter) Stream(ctx context.Context, messages []Message, opts Options, onChunk ChunkFunc) (*Result, error) {
	if cacheable(opts) {
		if cached, ok := c.store.Get(cacheKey(messages, opts)); ok {
			result := cached
			if onChunk != nil && result.Content != "" {
				onChunk(result.Content)
			}
			return &result, nil
		}
	}
	return c.inner.Stream(ctx, messages, opts, onChunk)
}

// Stats exposes cache counters for the debug endpoint.
func (c *CachingCompleter) Stats() cache.Stats {
	return c.store.Stats()
}

// Clear drops all cached completions (shutdown hook).
func (c *CachingCompleter) Clear() {
	c.store.Clear()
}

func cacheable(opts Options) bool {
	return !opts.SkipCache && !opts.HasTools && opts.Temperature <= cacheTemperatureCeiling
}

// cacheKey hashes the model, sampling options, and the full message sequence.
func cacheKey(messages []Message, opts Options) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(opts.Model)
	_ = enc.Encode(opts.Temperature)
	_ = enc.Encode(opts.MaxTokens)
	_ = enc.Encode(messages)
	return hex.EncodeToString(h.Sum(nil))
}
