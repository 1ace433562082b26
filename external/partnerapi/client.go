package partnerapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/manager-sync/internal/platform/cache"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/riskibarqy/manager-sync/internal/platform/metrics"
	"github.com/riskibarqy/manager-sync/internal/platform/resilience"
	"github.com/riskibarqy/manager-sync/internal/usecase"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	apiKeyHeader = "X-Api-Key"
	maxBodyBytes = 8 << 20

	defaultTimeout              = 30 * time.Second
	defaultSlowThreshold        = 5 * time.Second
	defaultRateLimitDefaultWait = 10 * time.Second
	defaultRateLimitMaxWait     = time.Minute
)

// Budget gates every outbound call. Consume returns false when the call must
// not be made.
type Budget interface {
	Consume(ctx context.Context) bool
}

type unlimitedBudget struct{}

func (unlimitedBudget) Consume(context.Context) bool { return true }

type ClientConfig struct {
	HTTPClient           *http.Client
	BaseURL              string
	APIKey               string
	Timeout              time.Duration
	SlowThreshold        time.Duration
	Retry                resilience.RetryConfig
	RateLimitDefaultWait time.Duration
	RateLimitMaxWait     time.Duration
	PageSize             int
	PageDelay            time.Duration
	CircuitBreaker       resilience.CircuitBreakerConfig
	ValidateCacheTTL     time.Duration
	Budget               Budget
	Logger               *logging.Logger
	Metrics              *metrics.Metrics
	// Sleep replaces the retry wait; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Endpoint is one upstream GET. Name is a low-cardinality label for logs and metrics.
type Endpoint struct {
	Name  string
	Path  string
	Query url.Values
}

func (e Endpoint) String() string {
	if encoded := e.Query.Encode(); encoded != "" {
		return e.Path + "?" + encoded
	}
	return e.Path
}

type Response struct {
	Data       []byte
	Status     int
	DurationMs int64
	Slow       bool
	RetryAfter time.Duration
}

type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	timeout       time.Duration
	slowThreshold time.Duration
	defaultWait   time.Duration
	maxWait       time.Duration
	pageSize      int
	pageDelay     time.Duration
	budget        Budget
	breaker       *resilience.CircuitBreaker
	retry         resilience.RetryPolicy
	flight        resilience.SingleFlight[Response]
	validated     *cache.Store[ValidateResult]
	validate      *validator.Validate
	logger        *logging.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = defaultSlowThreshold
	}
	defaultWait := cfg.RateLimitDefaultWait
	if defaultWait <= 0 {
		defaultWait = defaultRateLimitDefaultWait
	}
	maxWait := cfg.RateLimitMaxWait
	if maxWait <= 0 {
		maxWait = defaultRateLimitMaxWait
	}
	if maxWait < defaultWait {
		maxWait = defaultWait
	}

	budget := cfg.Budget
	if budget == nil {
		budget = unlimitedBudget{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:        strings.TrimSpace(cfg.APIKey),
		timeout:       timeout,
		slowThreshold: slow,
		defaultWait:   defaultWait,
		maxWait:       maxWait,
		pageSize:      ClampPageSize(cfg.PageSize),
		pageDelay:     cfg.PageDelay,
		budget:        budget,
		breaker:       resilience.NewCircuitBreaker(cfg.CircuitBreaker),
		validate:      validator.New(),
		logger:        logger,
		metrics:       cfg.Metrics,
		now:           now,
	}

	if cfg.ValidateCacheTTL > 0 {
		c.validated = cache.NewStore[ValidateResult](cfg.ValidateCacheTTL)
	}

	c.breaker.OnStateChange(func(from, to resilience.CircuitState) {
		c.logger.Warn("partner api circuit breaker state changed", "from", from, "to", to)
		c.metrics.SetCircuitOpen(to != resilience.CircuitStateClosed)
	})

	opts := []resilience.RetryOption{resilience.WithOnRetry(c.logRetry)}
	if cfg.Sleep != nil {
		opts = append(opts, resilience.WithSleep(cfg.Sleep))
	}
	c.retry = resilience.NewRetryPolicy(cfg.Retry, opts...)

	return c
}

// Request performs exactly one attempt: breaker, budget, then HTTP.
func (c *Client) Request(ctx context.Context, ep Endpoint) (Response, error) {
	if err := c.breaker.Allow(); err != nil {
		c.logger.WarnContext(ctx, "partner api circuit breaker rejected request", "endpoint", ep.Name, "state", c.breaker.State())
		return Response{}, &RequestError{
			Kind:     KindCircuitOpen,
			Endpoint: ep.Name,
			Message:  "partner api is temporarily unavailable",
			cause:    fmt.Errorf("%w: %w", usecase.ErrDependencyUnavailable, err),
		}
	}

	if !c.budget.Consume(ctx) {
		c.metrics.ObservePartnerRequest(ep.Name, string(KindBudgetExhausted), 0)
		return Response{}, &RequestError{
			Kind:     KindBudgetExhausted,
			Endpoint: ep.Name,
			Message:  "daily request budget exhausted",
			cause:    usecase.ErrBudgetExhausted,
		}
	}

	resp, err := c.do(ctx, ep)
	c.recordBreaker(err)

	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	c.metrics.ObservePartnerRequest(ep.Name, outcome, time.Duration(resp.DurationMs)*time.Millisecond)

	return resp, err
}

// RequestWithRetry wraps Request with the retry policy. Identical concurrent
// calls with the same reserve allowance share one execution. A joined call
// runs on the leader's context, so it is retried on the caller's own context
// if the leader was canceled.
func (c *Client) RequestWithRetry(ctx context.Context, ep Endpoint) (Response, error) {
	key := ep.String()
	if usecase.ReserveAllowed(ctx) {
		key = "reserve " + key
	}

	resp, err, shared := c.flight.Do(key, func() (Response, error) {
		return c.retryRequest(ctx, ep)
	})
	if !shared {
		return resp, err
	}

	c.logger.DebugContext(ctx, "partner api request collapsed into in-flight call", "endpoint", ep.Name)
	if err != nil && KindOf(err) == KindCanceled && ctx.Err() == nil {
		c.logger.DebugContext(ctx, "in-flight partner api call was canceled, retrying on own context", "endpoint", ep.Name)
		return c.retryRequest(ctx, ep)
	}
	return resp, err
}

func (c *Client) retryRequest(ctx context.Context, ep Endpoint) (Response, error) {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) (Response, error) {
		return c.Request(ctx, ep)
	}, classifyAttempt)
}

func classifyAttempt(_ Response, err error) resilience.Decision {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return resilience.Decision{Verdict: resilience.VerdictDone}
	}
	switch reqErr.Kind {
	case KindTransient:
		return resilience.Decision{Verdict: resilience.VerdictRetry}
	case KindRateLimited:
		return resilience.Decision{Verdict: resilience.VerdictRateLimited, Wait: reqErr.RetryAfter}
	default:
		return resilience.Decision{Verdict: resilience.VerdictDone}
	}
}

func (c *Client) logRetry(ctx context.Context, ev resilience.RetryEvent) {
	c.metrics.IncPartnerRetry(ev.Verdict.String())
	c.logger.WarnContext(ctx, "partner api request retrying",
		"attempt", ev.Attempt,
		"reason", ev.Verdict.String(),
		"wait", ev.Wait,
		"error", ev.Err,
	)
}

func (c *Client) do(ctx context.Context, ep Endpoint) (Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+ep.String(), nil)
	if err != nil {
		return Response{}, &RequestError{Kind: KindClient, Endpoint: ep.Name, Message: "build request: " + err.Error(), cause: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	started := c.now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		elapsed := c.now().Sub(started)
		return Response{DurationMs: elapsed.Milliseconds()}, c.transportError(ctx, ep, err)
	}
	defer httpResp.Body.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, readErr := buf.ReadFrom(io.LimitReader(httpResp.Body, maxBodyBytes))
	elapsed := c.now().Sub(started)

	resp := Response{
		Data:       append([]byte(nil), buf.B...),
		Status:     httpResp.StatusCode,
		DurationMs: elapsed.Milliseconds(),
	}
	if readErr != nil {
		return resp, c.transportError(ctx, ep, readErr)
	}

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		if elapsed >= c.slowThreshold {
			resp.Slow = true
			c.logger.WarnContext(ctx, "partner api slow response",
				"endpoint", ep.Name,
				"duration_ms", resp.DurationMs,
				"threshold_ms", c.slowThreshold.Milliseconds(),
			)
		}
		return resp, nil
	case httpResp.StatusCode == http.StatusTooManyRequests:
		resp.RetryAfter = c.retryAfter(httpResp.Header.Get("Retry-After"))
		return resp, &RequestError{
			Kind:       KindRateLimited,
			Endpoint:   ep.Name,
			Status:     resp.Status,
			RetryAfter: resp.RetryAfter,
			Message:    abbreviateBody(resp.Data),
		}
	case httpResp.StatusCode == http.StatusRequestTimeout || httpResp.StatusCode >= 500:
		return resp, &RequestError{Kind: KindTransient, Endpoint: ep.Name, Status: resp.Status, Message: abbreviateBody(resp.Data)}
	default:
		return resp, &RequestError{Kind: KindClient, Endpoint: ep.Name, Status: resp.Status, Message: abbreviateBody(resp.Data)}
	}
}

// transportError classifies a failure that produced no usable response.
// Cancellation of the caller's context is terminal; a per-request timeout is transient.
func (c *Client) transportError(ctx context.Context, ep Endpoint, err error) error {
	root := crerr.UnwrapAll(err)
	message := c.sanitize(root.Error())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &RequestError{Kind: KindCanceled, Endpoint: ep.Name, Message: message, cause: ctxErr}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		message = fmt.Sprintf("timeout after %s", c.timeout)
	}
	return &RequestError{Kind: KindTransient, Endpoint: ep.Name, Message: message, cause: err}
}

func (c *Client) recordBreaker(err error) {
	switch KindOf(err) {
	case KindTransient:
		c.breaker.RecordFailure()
	case KindCanceled:
		// neither success nor failure of the upstream
	default:
		c.breaker.RecordSuccess()
	}
}

// retryAfter parses delta-seconds or an HTTP date, falling back to the
// default wait and never exceeding the max wait.
func (c *Client) retryAfter(header string) time.Duration {
	wait := c.defaultWait
	header = strings.TrimSpace(header)
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil {
			if secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		} else if at, err := http.ParseTime(header); err == nil {
			if d := at.Sub(c.now()); d > 0 {
				wait = d
			}
		}
	}
	if wait > c.maxWait {
		return c.maxWait
	}
	return wait
}

func (c *Client) sanitize(value string) string {
	value = strings.TrimSpace(value)
	if c.apiKey != "" {
		value = strings.ReplaceAll(value, c.apiKey, "REDACTED")
	}
	return value
}

// decodeInto unmarshals and validates a successful payload.
func (c *Client) decodeInto(ctx context.Context, ep Endpoint, resp Response, target any) error {
	if err := sonic.Unmarshal(resp.Data, target); err != nil {
		return &RequestError{Kind: KindInvalidPayload, Endpoint: ep.Name, Status: resp.Status, Message: "decode payload: " + err.Error(), cause: err}
	}
	if err := c.validate.StructCtx(ctx, target); err != nil {
		return &RequestError{Kind: KindInvalidPayload, Endpoint: ep.Name, Status: resp.Status, Message: "validate payload: " + err.Error(), cause: err}
	}
	return nil
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
