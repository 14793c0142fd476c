package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"screenshot-ai-assistant/internal/domain"
)

func testExecutor(maxRetries int) *Executor {
	logger := zerolog.Nop()
	return NewExecutor(maxRetries, time.Millisecond, &logger)
}

func TestTransientThenSuccess(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestFatalSingleInvocation(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	fatal := errors.New("duplicate key value violates unique constraint")
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("want the fatal error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want exactly 1", calls)
	}
}

func TestExhaustionWrapsLastError(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	err := e.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("rate limit exceeded")
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, domain.ErrRetryExhausted) {
		t.Fatalf("want ErrRetryExhausted, got %v", err)
	}
}

func TestContextCancelAbortsWait(t *testing.T) {
	e := NewExecutor(5, 500*time.Millisecond, func() *zerolog.Logger { l := zerolog.Nop(); return &l }())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Do(ctx, "op", func(ctx context.Context) error {
			return errors.New("timeout talking to backend")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestRetryableClassification(t *testing.T) {
	retryable := []string{
		"i/o timeout",
		"network is unreachable",
		"503 service unavailable",
		"502 bad gateway",
		"429 too many requests",
		"temporary failure in name resolution",
	}
	for _, msg := range retryable {
		if !Retryable(errors.New(msg)) {
			t.Errorf("%q should be retryable", msg)
		}
	}
	fatal := []string{
		"permission denied",
		"not found",
		"conflict: row exists",
	}
	for _, msg := range fatal {
		if Retryable(errors.New(msg)) {
			t.Errorf("%q should be fatal", msg)
		}
	}
	if Retryable(nil) {
		t.Error("nil error must not be retryable")
	}
}

func TestDoValue(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	v, err := DoValue(context.Background(), e, "op", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("connection refused")
		}
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("got (%d, %v), want (7, nil)", v, err)
	}
}
