package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cachedCompleter(inner Completer) *CachingCompleter {
	return WithCache(inner, 100, time.Minute)
}

func TestCacheHitSkipsInner(t *testing.T) {
	inner := &scriptedCompleter{complete: func(int) (*Result, error) {
		return &Result{Content: "answer", ModelUsed: "m"}, nil
	}}
	c := cachedCompleter(inner)
	msgs := []Message{{Role: RoleUser, Content: "what is sudo?"}}
	opts := Options{Model: "m", Temperature: 0.0}

	first, err := c.Complete(context.Background(), msgs, opts)
	require.NoError(t, err)
	second, err := c.Complete(context.Background(), msgs, opts)
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestCacheSkipRules(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"high temperature", Options{Model: "m", Temperature: 0.7}},
		{"tool loop request", Options{Model: "m", Temperature: 0.0, HasTools: true}},
		{"explicit skip", Options{Model: "m", Temperature: 0.0, SkipCache: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedCompleter{complete: func(int) (*Result, error) {
				return &Result{Content: "x"}, nil
			}}
			c := cachedCompleter(inner)
			msgs := []Message{{Role: RoleUser, Content: "q"}}

			for i := 0; i < 2; i++ {
				_, err := c.Complete(context.Background(), msgs, tt.opts)
				require.NoError(t, err)
			}
			assert.Equal(t, 2, inner.calls, "uncacheable requests must always reach the model")
		})
	}
}

func TestCacheKeyVariesByModelAndMessages(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "q"}}
	base := Options{Model: "a", Temperature: 0.0, MaxTokens: 100}

	k1 := cacheKey(msgs, base)
	assert.NotEqual(t, k1, cacheKey(msgs, Options{Model: "b", Temperature: 0.0, MaxTokens: 100}))
	assert.NotEqual(t, k1, cacheKey([]Message{{Role: RoleUser, Content: "other"}}, base))
	assert.Equal(t, k1, cacheKey(msgs, base))
}

func TestStreamServedFromCache(t *testing.T) {
	inner := &scriptedCompleter{complete: func(int) (*Result, error) {
		return &Result{Content: "full answer"}, nil
	}}
	c := cachedCompleter(inner)
	msgs := []Message{{Role: RoleUser, Content: "q"}}
	opts := Options{Model: "m", Temperature: 0.0}

	_, err := c.Complete(context.Background(), msgs, opts)
	require.NoError(t, err)

	var chunks []string
	result, err := c.Stream(context.Background(), msgs, opts, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, "full answer", result.Content)
	assert.Equal(t, []string{"full answer"}, chunks, "cached result arrives as one chunk")
	assert.Equal(t, 1, inner.calls)
}

func TestStreamResultIsNotCached(t *testing.T) {
	inner := &scriptedCompleter{complete: func(int) (*Result, error) {
		return &Result{Content: "streamed"}, nil
	}}
	c := cachedCompleter(inner)
	msgs := []Message{{Role: RoleUser, Content: "q"}}
	opts := Options{Model: "m", Temperature: 0.0}

	_, err := c.Stream(context.Background(), msgs, opts, nil)
	require.NoError(t, err)
	_, err = c.Stream(context.Background(), msgs, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
