// Package retry runs idempotent operations with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides whether a failed attempt may be repeated. Defaults to errors.IsRetryable.
	Retryable func(error) bool
}

// DefaultPolicy retries three times starting at 200ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

// Do calls op until it succeeds, returns a non-retryable error, or attempts run out.
// Exhaustion is reported as MAX_RETRIES_EXCEEDED wrapping the last error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 200 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 10 * p.InitialInterval
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = appErrors.IsRetryable
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.InitialInterval
	expo.MaxInterval = p.MaxInterval
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.MaxAttempts-1)), ctx)

	attempts := 0
	var last error
	err := backoff.Retry(func() error {
		attempts++
		last = op(ctx)
		if last == nil {
			return nil
		}
		if !retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, policy)
	if err == nil {
		return nil
	}
	if last != nil && retryable(last) && attempts >= p.MaxAttempts {
		return appErrors.Wrap(last, appErrors.ErrMaxRetriesExceeded.Code, appErrors.ErrMaxRetriesExceeded.Status, appErrors.ErrMaxRetriesExceeded.Message)
	}
	return err
}
