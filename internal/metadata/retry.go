package metadata

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	maxRetries    = 3
	maxJitter     = 500 * time.Millisecond
	authErrorCode = "28P01" // invalid_password
)

// baseDelay is a variable so tests can shorten it.
var baseDelay = 1 * time.Second

// withRetry runs fn with exponential backoff on transient connection errors.
// Authentication failures and context cancellation end it immediately.
func withRetry[T any](ctx context.Context, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := range maxRetries {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("metadata source reachable after retry", "attempt", attempt+1)
			}
			return v, nil
		}
		if !isRetryable(err) {
			return zero, err
		}
		lastErr = err
		delay := backoffDelay(attempt)
		logger.Warn("metadata source failed, retrying", "attempt", attempt+1, "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotFound) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code != authErrorCode && strings.HasPrefix(pgErr.Code, "08")
	}

	msg := err.Error()
	if strings.Contains(msg, "password authentication failed") || strings.Contains(msg, "no pg_hba.conf entry") {
		return false
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "i/o timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}

func backoffDelay(attempt int) time.Duration {
	delay := baseDelay << uint(attempt)
	if baseDelay < maxJitter {
		return delay
	}
	return delay + time.Duration(rand.Int64N(int64(maxJitter)))
}
