package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/ratelimit"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

// Outcome classifies one provider attempt.
type Outcome int

const (
	// OutcomeSuccess means the attempt returned an embedding.
	OutcomeSuccess Outcome = iota

	// OutcomeRetryable means the attempt failed transiently (rate limits,
	// network errors, server errors) and may be retried.
	OutcomeRetryable

	// OutcomeFatal means retrying cannot help (bad key, oversized input,
	// canceled context).
	OutcomeFatal
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an attempt error to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidAPIKey),
		errors.Is(err, ErrContextTooLong),
		errors.Is(err, ErrModelNotFound),
		errors.Is(err, ErrEmptyInput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeFatal
	default:
		return OutcomeRetryable
	}
}

// LimitedConfig holds retry and wait settings for LimitedProvider.
type LimitedConfig struct {
	// MaxAttempts is the number of tries per provider call.
	MaxAttempts int

	// RetryDelay is the base backoff; attempt n sleeps RetryDelay × n
	// before the next try.
	RetryDelay time.Duration

	// MaxWait caps a single rate-limit sleep; the wait loop re-checks
	// the limiter after each sleep.
	MaxWait time.Duration

	// BatchSize is the number of texts per EmbedBatch provider call.
	BatchSize int

	// OnOutcome, when set, observes every attempt classification.
	OnOutcome func(Outcome)

	// OnWait, when set, observes rate-limit waits.
	OnWait func(time.Duration)
}

// LimitedProvider wraps a Provider with a shared rate limiter and
// bounded retry. The limiter is consulted before every attempt and
// charged only after a success, so failed attempts never burn quota.
// No lock is held during provider calls; the limiter synchronizes
// itself.
type LimitedProvider struct {
	provider Provider
	limiter  *ratelimit.Limiter
	cfg      LimitedConfig
}

// NewLimitedProvider creates a rate-limited embedding provider.
func NewLimitedProvider(provider Provider, limiter *ratelimit.Limiter, cfg LimitedConfig) *LimitedProvider {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &LimitedProvider{
		provider: provider,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// Embed embeds one text, waiting for rate-limit headroom and retrying
// transient failures.
func (p *LimitedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := p.withRetry(ctx, func(ctx context.Context) error {
		vec, err := p.provider.Embed(ctx, text)
		if err != nil {
			return err
		}
		result = vec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EmbedBatch embeds texts in order, one rate-limited provider call per
// batch. The first failed batch aborts the whole call.
func (p *LimitedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var batch [][]float32
		err := p.withRetry(ctx, func(ctx context.Context) error {
			vecs, err := p.provider.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return err
			}
			batch = vecs
			return nil
		})
		if err != nil {
			return nil, err
		}

		results = append(results, batch...)
	}

	return results, nil
}

// Dimension returns the embedding dimension.
func (p *LimitedProvider) Dimension() int {
	return p.provider.Dimension()
}

// ModelName returns the model name.
func (p *LimitedProvider) ModelName() string {
	return p.provider.ModelName()
}

// withRetry runs call under the rate limiter with bounded retry.
// Outcomes classify as success (record and return), fatal (return
// immediately) or retryable (back off RetryDelay × attempt and try
// again). Exhausted attempts return an EmbeddingError wrapping the
// last cause.
func (p *LimitedProvider) withRetry(ctx context.Context, call func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := p.waitForSlot(ctx); err != nil {
			return err
		}

		err := call(ctx)
		outcome := Classify(err)
		if p.cfg.OnOutcome != nil {
			p.cfg.OnOutcome(outcome)
		}

		switch outcome {
		case OutcomeSuccess:
			p.limiter.Record()
			return nil
		case OutcomeFatal:
			return &types.EmbeddingError{Attempts: attempt, Err: err}
		}

		lastErr = err
		if attempt < p.cfg.MaxAttempts {
			if err := sleepCtx(ctx, time.Duration(attempt)*p.cfg.RetryDelay); err != nil {
				return &types.EmbeddingError{Attempts: attempt, Err: err}
			}
		}
	}

	return &types.EmbeddingError{Attempts: p.cfg.MaxAttempts, Err: lastErr}
}

// waitForSlot blocks until the limiter admits a request or ctx is done.
// A canceled wait surfaces as a RateLimitError carrying the remaining
// wait so HTTP handlers can emit Retry-After.
func (p *LimitedProvider) waitForSlot(ctx context.Context) error {
	for !p.limiter.Allow() {
		wait := p.limiter.WaitTime()
		if wait <= 0 {
			// Window state changed between checks; re-check immediately
			continue
		}
		if wait > p.cfg.MaxWait {
			wait = p.cfg.MaxWait
		}
		if p.cfg.OnWait != nil {
			p.cfg.OnWait(wait)
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return &types.RateLimitError{RetryAfter: p.limiter.WaitTime(), Err: err}
		}
	}
	return nil
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
