package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/metrics"
)

const (
	DefaultMaxRetries = 1
	DefaultRetryBase  = 300 * time.Millisecond
)

// IsRetryable reports whether err looks like rate limiting or a soft block:
// an HTTP 429 or 403, either as a FetchError status or in the message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch httputil.StatusOf(err) {
	case http.StatusTooManyRequests, http.StatusForbidden:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "403")
}

// WithRetry runs job, retrying up to maxRetries times while the error is
// retryable. Each wait is base plus a random jitter below base. Other errors
// return immediately. A retryable error that survives every attempt comes
// back as a *httputil.FetchError.
func WithRetry[T any](ctx context.Context, job func(context.Context) (T, error), maxRetries int, base time.Duration) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = DefaultRetryBase
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			metrics.Retries.Inc()
			if err := sleep(ctx, base+time.Duration(rand.Int64N(int64(base)))); err != nil {
				return zero, err
			}
		}
		v, err := job(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		lastErr = err
	}

	var fe *httputil.FetchError
	if errors.As(lastErr, &fe) {
		return zero, fe
	}
	return zero, &httputil.FetchError{Err: fmt.Errorf("after %d retries: %w", maxRetries, lastErr)}
}

// WithTimeout runs job under a deadline of d. If the deadline passes first
// the result is *httputil.FetchError{Timeout: true, Label: label}; the job's
// context is cancelled and any late result is discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, label string, job func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := job(ctx)
		done <- outcome{v, err}
	}()

	var zero T
	select {
	case o := <-done:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, &httputil.FetchError{Timeout: true, Label: label, Err: o.err}
		}
		return o.v, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, &httputil.FetchError{Timeout: true, Label: label, Err: ctx.Err()}
		}
		return zero, ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
