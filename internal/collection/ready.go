package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrNotReady = errors.New("store not ready")

// RetryPolicy bounds the readiness probe.
type RetryPolicy struct {
	MaxAttempts uint
	Delay       time.Duration
}

// Ready is resolved once, when the store answered a probe or the retry
// policy was exhausted. Every collection waits on it before its first read.
type Ready struct {
	done chan struct{}
	err  error
}

// Init starts probing in the background and returns immediately.
func Init(ctx context.Context, policy RetryPolicy, probe func(context.Context) error, logger *slog.Logger) *Ready {
	r := &Ready{done: make(chan struct{})}

	go func() {
		defer close(r.done)

		attempt := 0
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			attempt++
			return struct{}{}, probe(ctx)
		},
			backoff.WithBackOff(backoff.NewConstantBackOff(policy.Delay)),
			backoff.WithMaxTries(max(policy.MaxAttempts, 1)),
			backoff.WithNotify(func(err error, next time.Duration) {
				logger.Warn("store not reachable yet", "attempt", attempt, "retry_in", next, "error", err)
			}),
		)
		if err != nil {
			r.err = fmt.Errorf("%w after %d attempts: %w", ErrNotReady, attempt, err)
			logger.Error("store readiness failed", "error", r.err)
			return
		}
		logger.Info("store ready", "attempts", attempt)
	}()

	return r
}

// Resolved returns a Ready that is already satisfied.
func Resolved() *Ready {
	r := &Ready{done: make(chan struct{})}
	close(r.done)
	return r
}

func (r *Ready) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports without blocking whether readiness resolved and with what
// result.
func (r *Ready) Status() (resolved bool, err error) {
	if r == nil {
		return true, nil
	}
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}
