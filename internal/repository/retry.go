package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/project-duet/internal/types"
)

const (
	maxAttempts = 3
	baseDelay   = 200 * time.Millisecond
)

// backoff returns exponential backoff with jitter for the given attempt.
// Base delay is doubled each attempt, with random jitter up to 25%.
func backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := baseDelay * time.Duration(1<<uint(attempt))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2)) - d/4
	return d + jitter
}

// withRetry runs op with bounded retries on transient failures. Exhausted
// retries surface as ErrStorageUnavailable so callers see one error kind for
// an unreachable backend.
func withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
		if err = op(); err == nil {
			return nil
		}
		// Not-found and cancellation are answers, not outages.
		if errors.Is(err, gorm.ErrRecordNotFound) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
}
