package llm

import (
	"context"
	"math/rand"
	"time"
)

const (
	// defaultMaxAttempts is the number of completion attempts before giving up.
	defaultMaxAttempts = 3
	// baseBackoff is the delay after the first failure.
	baseBackoff = time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 30 * time.Second
)

// RetryingCompleter decorates a Completer with the standard retry policy:
// up to 3 attempts with exponential backoff min(1s·2^(n−1), 30s) plus
// 0–30% jitter. Exhausted retries surface as *LLMError.
type RetryingCompleter struct {
	inner       Completer
	maxAttempts int

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps a Completer with the retry policy.
func WithRetry(inner Completer) *RetryingCompleter {
	return &RetryingCompleter{
		inner:       inner,
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepCtx,
	}
}

func (r *RetryingCompleter) Complete(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	return r.do(ctx, func() (*Result, error) {
		return r.inner.Complete(ctx, messages, opts)
	})
}

func (r *RetryingCompleter) Stream(ctx context.Context, messages []Message, opts Options, onChunk ChunkFunc) (*Result, error) {
	// Chunks from a failed attempt were already delivered; the caller sees
	// duplicates only if it ignores the returned error. Streaming consumers
	// reset their buffer per attempt via the final Result.Content.
	return r.do(ctx, func() (*Result, error) {
		return r.inner.Stream(ctx, messages, opts, onChunk)
	})
}

func (r *RetryingCompleter) do(ctx context.Context, fn func() (*Result, error)) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt == r.maxAttempts {
			break
		}
		if err := r.sleep(ctx, backoffDelay(attempt)); err != nil {
			break
		}
	}
	return nil, &LLMError{Attempts: r.maxAttempts, LastErr: lastErr}
}

// backoffDelay computes min(baseBackoff·2^(n−1), maxBackoff) + 0–30% jitter
// for attempt n (1-based).
func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d) * 3 / 10))
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
