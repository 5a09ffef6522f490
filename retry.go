package hlsdl

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// IsTransientFetchError reports whether err is the kind of fault the retry
// loop should retry: a reset connection, a timeout, or an HTTP status the
// teacher's newClient retry condition already treats as worth another try
// (408, 429, 5xx). Anything else — including 401/403/404/410 — is terminal,
// grounded on other_examples' isNonRetryableError/httpStatusError pair.
func IsTransientFetchError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 408, 429:
			return true
		}
		return statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || isConnReset(err)
	}
	return isConnReset(err)
}

func isConnReset(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

// retryWithBackoff runs fn up to maxAttempts times. Between attempt k and
// k+1 (k in {1,2,...}) it sleeps base*2^k, exactly as spec'd (2*base, then
// 4*base, ...). It only retries when fn's error is transient;
// cancellation observed during the sleep surfaces as ErrInterrupted.
func retryWithBackoff(ctx context.Context, maxAttempts int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !IsTransientFetchError(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		delay := base * (1 << attempt)
		select {
		case <-ctx.Done():
			return ErrInterrupted
		case <-time.After(delay):
		}
	}
	return wrapError(ErrKindSegmentFailed, "exhausted retries", lastErr)
}
