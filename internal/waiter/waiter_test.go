package waiter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/01000101/cloudbridge/internal/waiter"
)

func TestPoll(t *testing.T) {
	tests := []struct {
		name        string
		succeedOn   int
		maxAttempts int
		timeout     time.Duration
		wantCalls   int
		wantTimeout bool
	}{
		{name: "immediate", succeedOn: 1, maxAttempts: 5, wantCalls: 1},
		{name: "after a few polls", succeedOn: 3, maxAttempts: 5, wantCalls: 3},
		{name: "attempts exhausted", succeedOn: 10, maxAttempts: 3, wantCalls: 3, wantTimeout: true},
		{name: "deadline", succeedOn: 1000, timeout: 20 * time.Millisecond, wantTimeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := waiter.Poll(context.Background(), waiter.Config{
				Resource:    "test",
				Interval:    time.Millisecond,
				Timeout:     tt.timeout,
				MaxAttempts: tt.maxAttempts,
			}, func(context.Context) (bool, error) {
				calls++
				return calls >= tt.succeedOn, nil
			})

			var timeout *waiter.TimeoutError
			if tt.wantTimeout {
				if !errors.As(err, &timeout) {
					t.Fatalf("expected TimeoutError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantCalls != 0 && calls != tt.wantCalls {
				t.Errorf("condition called %d times, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestPoll_ConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := waiter.Poll(context.Background(), waiter.Config{Interval: time.Millisecond},
		func(context.Context) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}

func TestPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waiter.Poll(ctx, waiter.Config{Interval: time.Hour},
		func(context.Context) (bool, error) { return false, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestRetry(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("fatal")
	isTransient := func(err error) bool { return errors.Is(err, transient) }
	cfg := waiter.Config{Resource: "image", Interval: time.Millisecond, MaxAttempts: 3}

	calls := 0
	err := waiter.Retry(context.Background(), cfg, isTransient, func(context.Context) error {
		calls++
		if calls < 2 {
			return transient
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("Retry = %v after %d calls, want nil after 2", err, calls)
	}

	calls = 0
	err = waiter.Retry(context.Background(), cfg, isTransient, func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Errorf("Retry = %v after %d calls, want fatal after 1", err, calls)
	}

	calls = 0
	err = waiter.Retry(context.Background(), cfg, isTransient, func(context.Context) error {
		calls++
		return transient
	})
	var timeout *waiter.TimeoutError
	if !errors.As(err, &timeout) || !errors.Is(err, transient) || calls != 3 {
		t.Errorf("Retry = %v after %d calls, want timeout wrapping transient after 3", err, calls)
	}
}
