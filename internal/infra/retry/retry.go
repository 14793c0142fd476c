// File: internal/infra/retry/retry.go
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// retryableFragments classifies backend failures worth another attempt.
// Conflict/duplicate/permission/not-found stay fatal on purpose.
var retryableFragments = []string{
	"timeout",
	"connection",
	"network",
	"temporary",
	"service unavailable",
	"gateway timeout",
	"bad gateway",
	"too many requests",
	"rate limit",
}

// Retryable reports whether an error looks transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// Executor runs operations with exponential backoff on transient failures.
// Fatal errors surface immediately; transient ones back off
// base*2^attempt until MaxRetries attempts are spent.
type Executor struct {
	maxRetries int
	baseDelay  time.Duration
	log        *zerolog.Logger
}

func NewExecutor(maxRetries int, baseDelay time.Duration, logger *zerolog.Logger) *Executor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Executor{maxRetries: maxRetries, baseDelay: baseDelay, log: logger}
}

// Do invokes op up to MaxRetries times. The name tags logs and metrics.
func (e *Executor) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			e.log.Error().Err(lastErr).Str("op", name).Int("attempts", attempt+1).Msg("operation failed, not retryable")
			return lastErr
		}
		if attempt == e.maxRetries-1 {
			break
		}
		delay := e.baseDelay * (1 << attempt)
		metrics.IncRetry(name)
		e.log.Warn().Err(lastErr).
			Str("op", name).
			Int("attempt", attempt+1).
			Int("max_retries", e.maxRetries).
			Dur("delay", delay).
			Msg("operation failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	e.log.Error().Err(lastErr).Str("op", name).Int("attempts", e.maxRetries).Msg("operation failed after all retries")
	return fmt.Errorf("%w: %s: %v", domain.ErrRetryExhausted, name, lastErr)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
