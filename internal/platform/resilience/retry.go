package resilience

import (
	"context"
	"fmt"
	"time"
)

// Verdict is the classification of one attempt's outcome.
type Verdict int

const (
	// VerdictDone ends the loop, either on success or on a terminal failure.
	VerdictDone Verdict = iota
	// VerdictRetry schedules an exponential-backoff retry.
	VerdictRetry
	// VerdictRateLimited schedules a retry after an explicit wait.
	VerdictRateLimited
)

func (v Verdict) String() string {
	switch v {
	case VerdictRetry:
		return "retry"
	case VerdictRateLimited:
		return "rate_limited"
	default:
		return "done"
	}
}

type Decision struct {
	Verdict Verdict
	// Wait is honoured only for VerdictRateLimited.
	Wait time.Duration
}

type RetryEvent struct {
	// Attempt is the 1-based attempt that just failed.
	Attempt int
	Verdict Verdict
	Wait    time.Duration
	Err     error
}

// RetryPolicy drives a retry loop with two independent ceilings: transient
// failures back off exponentially under MaxRetries, rate-limited attempts wait
// the advertised duration under MaxRateLimitRetries.
type RetryPolicy struct {
	cfg     RetryConfig
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(ctx context.Context, ev RetryEvent)
}

type RetryOption func(*RetryPolicy)

// WithSleep replaces the context-aware sleep, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(p *RetryPolicy) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

func WithOnRetry(fn func(ctx context.Context, ev RetryEvent)) RetryOption {
	return func(p *RetryPolicy) {
		p.onRetry = fn
	}
}

func NewRetryPolicy(cfg RetryConfig, opts ...RetryOption) RetryPolicy {
	p := RetryPolicy{
		cfg:   NormalizeRetryConfig(cfg),
		sleep: SleepContext,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (p RetryPolicy) Config() RetryConfig {
	return p.cfg
}

// Backoff returns base * 2^(retry-1) for a 1-based retry number, capped at MaxBackoff.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := p.cfg.BackoffBase
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= p.cfg.MaxBackoff {
			return p.cfg.MaxBackoff
		}
	}
	if delay > p.cfg.MaxBackoff {
		return p.cfg.MaxBackoff
	}
	return delay
}

// Do runs op until classify reports VerdictDone or the matching ceiling is
// spent. On exhaustion the last value and error are returned unchanged.
func Do[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error), classify func(T, error) Decision) (T, error) {
	if p.sleep == nil {
		p = NewRetryPolicy(p.cfg)
	}

	var (
		transientRetries int
		rateLimitRetries int
	)
	for attempt := 1; ; attempt++ {
		val, err := op(ctx)
		decision := classify(val, err)

		var wait time.Duration
		switch decision.Verdict {
		case VerdictRetry:
			if transientRetries >= p.cfg.MaxRetries {
				return val, err
			}
			transientRetries++
			wait = p.Backoff(transientRetries)
		case VerdictRateLimited:
			if rateLimitRetries >= p.cfg.MaxRateLimitRetries {
				return val, err
			}
			rateLimitRetries++
			wait = decision.Wait
		default:
			return val, err
		}

		if p.onRetry != nil {
			p.onRetry(ctx, RetryEvent{Attempt: attempt, Verdict: decision.Verdict, Wait: wait, Err: err})
		}

		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return val, fmt.Errorf("retry wait interrupted after attempt %d: %w", attempt, sleepErr)
		}
	}
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
