package partnerapi

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed partner API call.
type ErrorKind string

const (
	KindBudgetExhausted ErrorKind = "budget_exhausted"
	KindCircuitOpen     ErrorKind = "circuit_open"
	KindClient          ErrorKind = "client"
	KindTransient       ErrorKind = "transient"
	KindRateLimited     ErrorKind = "rate_limited"
	KindInvalidPayload  ErrorKind = "invalid_payload"
	KindCanceled        ErrorKind = "canceled"
)

// RequestError is returned for every failed call. Retry decisions are made on Kind.
type RequestError struct {
	Kind       ErrorKind
	Endpoint   string
	Status     int
	RetryAfter time.Duration
	Message    string
	cause      error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("partner api %s %s: status=%d: %s", e.Endpoint, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("partner api %s %s: %s", e.Endpoint, e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.cause
}

// Retryable reports whether RequestWithRetry would try again after this error.
func (e *RequestError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// KindOf extracts the classification from any error returned by the client.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindTransient
}
