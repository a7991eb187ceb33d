// Package retry runs an operation a bounded number of times with a fixed
// pause between attempts.
package retry

import (
	"context"
	"time"
)

// Policy bounds a retried operation.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	Backoff  time.Duration
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Do calls fn until it succeeds, returns an error the classifier rejects, or
// the attempts run out. The last error is returned.
func Do(ctx context.Context, p Policy, retryable Classifier, fn func(ctx context.Context, attempt int) error) error {
	return DoNotify(ctx, p, retryable, fn, nil)
}

// DoNotify is Do with a hook called before each pause with the attempt
// number that just failed.
func DoNotify(ctx context.Context, p Policy, retryable Classifier, fn func(ctx context.Context, attempt int) error, onRetry func(attempt int, err error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) || attempt == attempts {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if err := sleep(ctx, p.Backoff); err != nil {
			return err
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
