package backend

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"voiceguard-batch/internal/telemetry"
)

// RetryPolicy is the uniform wrapper applied to every backend call.
// Transient failures are retried with exponential backoff and jitter up
// to MaxAttempts; permanent failures surface immediately.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// Do runs fn until it succeeds, fails permanently, the context is
// cancelled, or the attempt ceiling is reached.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		wait := backoffWithJitter(p.Base, p.Cap, attempt)
		telemetry.RetriesTotal.Inc()
		log.Printf("%s attempt %d/%d failed, retrying in %s: %v", op, attempt, attempts, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s: %d attempts exhausted: %w", op, attempts, lastErr)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
