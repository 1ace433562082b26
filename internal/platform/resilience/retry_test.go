package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

var errUpstream = errors.New("upstream failed")

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(RetryConfig{MaxRetries: 5, BackoffBase: 100 * time.Millisecond, MaxBackoff: time.Second})

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, time.Second, p.Backoff(30))
}

func TestDo_TransientRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := NewRetryPolicy(RetryConfig{MaxRetries: 3, BackoffBase: 10 * time.Millisecond}, WithSleep(rec.sleep))

	calls := 0
	val, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errUpstream
		}
		return 7, nil
	}, func(_ int, err error) Decision {
		if err != nil {
			return Decision{Verdict: VerdictRetry}
		}
		return Decision{Verdict: VerdictDone}
	})

	require.NoError(t, err)
	assert.Equal(t, 7, val)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.waits)
}

func TestDo_TransientExhaustionReturnsLastError(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := NewRetryPolicy(RetryConfig{MaxRetries: 2, BackoffBase: time.Millisecond}, WithSleep(rec.sleep))

	calls := 0
	val, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return calls, errUpstream
	}, func(_ int, err error) Decision {
		return Decision{Verdict: VerdictRetry}
	})

	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, val)
	assert.Len(t, rec.waits, 2)
}

func TestDo_TerminalIsNotRetried(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := NewRetryPolicy(RetryConfig{MaxRetries: 5}, WithSleep(rec.sleep))

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, errUpstream
	}, func(struct{}, error) Decision {
		return Decision{Verdict: VerdictDone}
	})

	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestDo_RateLimitUsesSeparateCeiling(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	var events []RetryEvent
	p := NewRetryPolicy(
		RetryConfig{MaxRetries: 5, MaxRateLimitRetries: 1, BackoffBase: time.Millisecond},
		WithSleep(rec.sleep),
		WithOnRetry(func(_ context.Context, ev RetryEvent) { events = append(events, ev) }),
	)

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 429, errUpstream
	}, func(int, error) Decision {
		return Decision{Verdict: VerdictRateLimited, Wait: 3 * time.Second}
	})

	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{3 * time.Second}, rec.waits)
	require.Len(t, events, 1)
	assert.Equal(t, VerdictRateLimited, events[0].Verdict)
	assert.Equal(t, 1, events[0].Attempt)
}

func TestDo_RateLimitDoesNotSpendTransientBudget(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := NewRetryPolicy(RetryConfig{MaxRetries: 1, MaxRateLimitRetries: 2, BackoffBase: time.Millisecond}, WithSleep(rec.sleep))

	// 429, 429, 500, 200: two rate-limit retries then one transient retry.
	script := []Verdict{VerdictRateLimited, VerdictRateLimited, VerdictRetry, VerdictDone}
	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return calls, nil
	}, func(n int, _ error) Decision {
		return Decision{Verdict: script[n-1], Wait: time.Second}
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Millisecond}, rec.waits)
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewRetryPolicy(RetryConfig{MaxRetries: 3, BackoffBase: time.Hour})

	calls := 0
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, errUpstream
	}, func(int, error) Decision {
		return Decision{Verdict: VerdictRetry}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
