package partnerapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/manager-sync/internal/platform/resilience"
	"github.com/riskibarqy/manager-sync/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBudget struct {
	allow bool
	calls atomic.Int32
}

func (b *stubBudget) Consume(context.Context) bool {
	b.calls.Add(1)
	return b.allow
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepLog) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type scriptedServer struct {
	*httptest.Server
	hits atomic.Int32
}

// newScriptedServer answers the n-th request (1-based) with handlers[n-1],
// repeating the last handler once the script runs out.
func newScriptedServer(t *testing.T, handlers ...http.HandlerFunc) *scriptedServer {
	t.Helper()
	s := &scriptedServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(s.hits.Add(1))
		if n > len(handlers) {
			n = len(handlers)
		}
		handlers[n-1](w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func status(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func tooMany(retryAfter string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}
}

func newTestClient(t *testing.T, baseURL string, budget Budget, sleeps *sleepLog, mutate ...func(*ClientConfig)) *Client {
	t.Helper()
	cfg := ClientConfig{
		BaseURL: baseURL,
		APIKey:  "secret-key",
		Timeout: 2 * time.Second,
		Retry: resilience.RetryConfig{
			MaxRetries:          3,
			MaxRateLimitRetries: 2,
			BackoffBase:         100 * time.Millisecond,
		},
		RateLimitDefaultWait: 10 * time.Second,
		RateLimitMaxWait:     time.Minute,
		Budget:               budget,
		Sleep:                sleeps.sleep,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	return NewClient(cfg)
}

var testEndpoint = Endpoint{Name: "game", Path: "/subsites/nordic/games/hockey"}

func TestRequest_BudgetDeniedMakesNoNetworkCall(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, status(http.StatusOK, `{}`))
	budget := &stubBudget{allow: false}
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, budget, sleeps)

	_, err := client.RequestWithRetry(context.Background(), testEndpoint)

	require.Error(t, err)
	assert.Equal(t, KindBudgetExhausted, KindOf(err))
	assert.True(t, usecase.IsBudgetExhausted(err))
	assert.True(t, errors.Is(err, usecase.ErrBudgetExhausted))
	assert.EqualValues(t, 0, srv.hits.Load())
	assert.EqualValues(t, 1, budget.calls.Load())
	assert.Empty(t, sleeps.all())
}

func TestRequest_SendsAPIKeyAndSucceeds(t *testing.T) {
	t.Parallel()

	var gotKey string
	srv := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`{"valid":true,"name":"Nordic Manager"}`))
	})
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, &sleepLog{})

	res, err := client.ValidateKey(context.Background())

	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Nordic Manager", res.Name)
	assert.Equal(t, "secret-key", gotKey)
}

func TestValidateKey_CachesSuccessfulAnswer(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t,
		status(http.StatusBadRequest, "nope"),
		status(http.StatusOK, `{"valid":true,"name":"Nordic Manager"}`),
	)
	budget := &stubBudget{allow: true}
	client := newTestClient(t, srv.URL, budget, &sleepLog{}, func(cfg *ClientConfig) {
		cfg.ValidateCacheTTL = time.Minute
	})

	_, err := client.ValidateKey(context.Background())
	require.Error(t, err)

	for range 3 {
		res, err := client.ValidateKey(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Valid)
	}
	assert.EqualValues(t, 2, srv.hits.Load())
	assert.EqualValues(t, 2, budget.calls.Load())
}

func TestRequestWithRetry_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t,
		status(http.StatusBadGateway, "bad gateway"),
		status(http.StatusRequestTimeout, "slow"),
		status(http.StatusOK, `{"ok":true}`),
	)
	budget := &stubBudget{allow: true}
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, budget, sleeps)

	resp, err := client.RequestWithRetry(context.Background(), testEndpoint)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Data))
	assert.EqualValues(t, 3, srv.hits.Load())
	assert.EqualValues(t, 3, budget.calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps.all())
}

func TestRequestWithRetry_TransientExhaustionReturnsLastResponse(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, status(http.StatusServiceUnavailable, "down"))
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, sleeps)

	resp, err := client.RequestWithRetry(context.Background(), testEndpoint)

	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "down", string(resp.Data))
	assert.EqualValues(t, 4, srv.hits.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, sleeps.all())
}

func TestRequestWithRetry_ClientErrorIsTerminal(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, status(http.StatusNotFound, "no such game"))
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, sleeps)

	_, err := client.RequestWithRetry(context.Background(), testEndpoint)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, KindClient, reqErr.Kind)
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
	assert.False(t, reqErr.Retryable())
	assert.EqualValues(t, 1, srv.hits.Load())
	assert.Empty(t, sleeps.all())
}

func TestRequestWithRetry_RateLimitHonoursRetryAfterUnderOwnCeiling(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, tooMany("7"))
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, sleeps)

	_, err := client.RequestWithRetry(context.Background(), testEndpoint)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, KindRateLimited, reqErr.Kind)
	assert.Equal(t, 7*time.Second, reqErr.RetryAfter)
	// MaxRateLimitRetries=2 is smaller than MaxRetries=3.
	assert.EqualValues(t, 3, srv.hits.Load())
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, sleeps.all())
}

func TestRequestWithRetry_RateLimitDoesNotConsumeTransientRetries(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t,
		tooMany("1"),
		tooMany("1"),
		status(http.StatusInternalServerError, "boom"),
		status(http.StatusInternalServerError, "boom"),
		status(http.StatusInternalServerError, "boom"),
		status(http.StatusOK, `{}`),
	)
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, sleeps)

	_, err := client.RequestWithRetry(context.Background(), testEndpoint)

	require.NoError(t, err)
	assert.EqualValues(t, 6, srv.hits.Load())
	assert.Equal(t, []time.Duration{
		time.Second, time.Second,
		100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond,
	}, sleeps.all())
}

func TestRetryAfterParsing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	client := NewClient(ClientConfig{
		RateLimitDefaultWait: 10 * time.Second,
		RateLimitMaxWait:     time.Minute,
		Now:                  func() time.Time { return now },
	})

	assert.Equal(t, 10*time.Second, client.retryAfter(""))
	assert.Equal(t, 10*time.Second, client.retryAfter("garbage"))
	assert.Equal(t, 10*time.Second, client.retryAfter("0"))
	assert.Equal(t, 5*time.Second, client.retryAfter("5"))
	assert.Equal(t, time.Minute, client.retryAfter("3600"))
	assert.Equal(t, 30*time.Second, client.retryAfter(now.Add(30*time.Second).Format(http.TimeFormat)))
	assert.Equal(t, 10*time.Second, client.retryAfter(now.Add(-time.Minute).Format(http.TimeFormat)))
}

func TestRequest_TimeoutIsTransient(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, sleeps, func(cfg *ClientConfig) {
		cfg.Timeout = 50 * time.Millisecond
		cfg.Retry.MaxRetries = 1
	})

	_, err := client.RequestWithRetry(context.Background(), testEndpoint)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, KindTransient, reqErr.Kind)
	assert.Contains(t, reqErr.Message, "timeout")
	assert.Len(t, sleeps.all(), 1)
}

func TestRequest_CanceledContextIsNotRetried(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, status(http.StatusOK, `{}`))
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, sleeps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.RequestWithRetry(ctx, testEndpoint)

	assert.Equal(t, KindCanceled, KindOf(err))
	assert.Empty(t, sleeps.all())
}

func TestRequest_NetworkFailureUnwrapsRootCause(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client := newTestClient(t, baseURL, &stubBudget{allow: true}, &sleepLog{}, func(cfg *ClientConfig) {
		cfg.Retry.MaxRetries = 0
	})

	_, err := client.Request(context.Background(), testEndpoint)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, KindTransient, reqErr.Kind)
	assert.NotContains(t, reqErr.Message, "Get \"")
	assert.NotEmpty(t, reqErr.Message)
}

func TestRequest_SlowResponseIsFlagged(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(30 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	})
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, &sleepLog{}, func(cfg *ClientConfig) {
		cfg.SlowThreshold = 10 * time.Millisecond
	})

	resp, err := client.Request(context.Background(), testEndpoint)

	require.NoError(t, err)
	assert.True(t, resp.Slow)
	assert.GreaterOrEqual(t, resp.DurationMs, int64(10))
}

func TestRequest_InvalidPayloadIsTerminal(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, status(http.StatusOK, `{"elements":[{"id":0,"fullName":""}]}`))
	sleeps := &sleepLog{}
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, sleeps)

	_, err := client.FetchElements(context.Background(), "nordic", "hockey", 0)

	assert.Equal(t, KindInvalidPayload, KindOf(err))
	assert.EqualValues(t, 1, srv.hits.Load())
	assert.Empty(t, sleeps.all())
}

func TestRequest_OpenCircuitSpendsNoBudget(t *testing.T) {
	t.Parallel()

	srv := newScriptedServer(t, status(http.StatusInternalServerError, "boom"))
	budget := &stubBudget{allow: true}
	client := newTestClient(t, srv.URL, budget, &sleepLog{}, func(cfg *ClientConfig) {
		cfg.Retry.MaxRetries = 0
		cfg.CircuitBreaker = resilience.CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, OpenTimeout: time.Hour, HalfOpenMaxReq: 1}
	})

	_, err := client.Request(context.Background(), testEndpoint)
	require.Equal(t, KindTransient, KindOf(err))

	_, err = client.Request(context.Background(), testEndpoint)
	assert.Equal(t, KindCircuitOpen, KindOf(err))
	assert.True(t, errors.Is(err, usecase.ErrDependencyUnavailable))
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.EqualValues(t, 1, budget.calls.Load())
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestFetchGame_MapsRounds(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	srv := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subsites/nordic/games/hockey-2026", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"name": "Hockey Manager 2026",
			"currentRound": 2,
			"userCount": 5400,
			"rounds": [
				{"index": 3, "state": "pending", "deadline": "2026-03-21T18:00:00Z"},
				{"index": 1, "state": "finished", "deadline": "2026-03-07T18:00:00Z"},
				{"index": 2, "state": "OPEN", "deadline": "2026-03-14T18:00:00Z"}
			]
		}`))
	})
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, &sleepLog{}, func(cfg *ClientConfig) {
		cfg.Now = func() time.Time { return now }
	})

	meta, err := client.FetchGame(context.Background(), "nordic", "hockey-2026")

	require.NoError(t, err)
	assert.Equal(t, "Hockey Manager 2026", meta.Name)
	assert.Equal(t, 2, meta.CurrentRound)
	assert.Equal(t, 3, meta.TotalRounds)
	assert.Equal(t, "open", meta.RoundState)
	assert.Equal(t, 5400, meta.UserCount)
	require.NotNil(t, meta.NextDeadline)
	assert.Equal(t, time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), *meta.NextDeadline)
}

func TestFetchElements_RoundQuery(t *testing.T) {
	t.Parallel()

	var gotRound string
	srv := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotRound = r.URL.Query().Get("round")
		_, _ = w.Write([]byte(`{"elements":[
			{"id": 11, "fullName": "Mika Zibanejad", "shortName": "Zibanejad", "teamId": 3, "teamName": "NYR", "value": 9000000, "popularity": 12.5, "injured": true}
		]}`))
	})
	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, &sleepLog{})

	rows, err := client.FetchElements(context.Background(), "nordic", "hockey", 4)

	require.NoError(t, err)
	assert.Equal(t, "4", gotRound)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 11, rows[0].ExternalElementID)
	assert.Equal(t, "Mika Zibanejad", rows[0].FullName)
	assert.True(t, rows[0].IsInjured)
	assert.EqualValues(t, 9000000, rows[0].Value)
}

func TestRequestWithRetry_ReserveAndScheduledCallsDoNotShare(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	releaseAll := sync.OnceFunc(func() { close(release) })
	t.Cleanup(releaseAll)

	budget := &stubBudget{allow: true}
	client := newTestClient(t, srv.URL, budget, &sleepLog{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = client.RequestWithRetry(usecase.WithReserve(context.Background()), testEndpoint)
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = client.RequestWithRetry(context.Background(), testEndpoint)
	}()
	require.Eventually(t, func() bool { return hits.Load() == 2 }, time.Second, 5*time.Millisecond)

	releaseAll()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.EqualValues(t, 2, budget.calls.Load())
}

func TestRequestWithRetry_JoinedCallSurvivesLeaderCancel(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, &stubBudget{allow: true}, &sleepLog{})

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := client.RequestWithRetry(leaderCtx, testEndpoint)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	joinedErr := make(chan error, 1)
	go func() {
		_, err := client.RequestWithRetry(context.Background(), testEndpoint)
		joinedErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.Equal(t, KindCanceled, KindOf(<-leaderErr))
	require.NoError(t, <-joinedErr)
	assert.EqualValues(t, 2, hits.Load())
}
