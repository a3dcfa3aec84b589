package waiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 10 * time.Minute
)

// Config controls a polling loop. Zero values fall back to the defaults.
type Config struct {
	// Resource names what is being waited on, for logs and errors
	Resource string
	Interval time.Duration
	Timeout  time.Duration
	// MaxAttempts bounds the number of condition checks; 0 means unbounded
	MaxAttempts int
	Logger      *logrus.Entry
}

// ConditionFunc reports whether the wait is over. A non-nil error aborts it.
type ConditionFunc func(ctx context.Context) (bool, error)

// TimeoutError is returned when a wait runs out of time or attempts
type TimeoutError struct {
	Resource string
	Timeout  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("timed out after %s (%d attempts) waiting on %s", e.Timeout, e.Attempts, e.Resource)
	}
	return fmt.Sprintf("gave up after %d attempts waiting on %s", e.Attempts, e.Resource)
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 && c.MaxAttempts <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return c
}

// Poll checks cond immediately and then once per interval until it returns
// true, returns an error, the context is cancelled or the wait times out.
func Poll(ctx context.Context, cfg Config, cond ConditionFunc) error {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.WithFields(logrus.Fields{
		"resource": cfg.Resource,
		"interval": cfg.Interval,
		"timeout":  cfg.Timeout,
	})
	logger.Debug("Waiting on resource")

	var deadline <-chan time.Time
	if cfg.Timeout > 0 {
		timer := time.NewTimer(cfg.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		done, err := cond(ctx)
		if err != nil {
			logger.WithError(err).Debug("Wait condition failed")
			return err
		}
		if done {
			logger.WithField("attempts", attempts).Debug("Wait condition met")
			return nil
		}
		if cfg.MaxAttempts > 0 && attempts >= cfg.MaxAttempts {
			return &TimeoutError{Resource: cfg.Resource, Attempts: attempts}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			logger.Warn("Timed out waiting on resource")
			return &TimeoutError{Resource: cfg.Resource, Timeout: cfg.Timeout, Attempts: attempts}
		case <-ticker.C:
		}
	}
}

// Retry calls fn until it succeeds, fails with an error retryable rejects, or
// MaxAttempts is reached. The last error is returned when attempts run out.
func Retry(ctx context.Context, cfg Config, retryable func(error) bool, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	var last error
	err := Poll(ctx, cfg, func(ctx context.Context) (bool, error) {
		last = fn(ctx)
		if last == nil {
			return true, nil
		}
		if !retryable(last) {
			return false, last
		}
		cfg.Logger.WithError(last).WithField("resource", cfg.Resource).Debug("Retrying")
		return false, nil
	})
	var timeout *TimeoutError
	if errors.As(err, &timeout) && last != nil {
		return fmt.Errorf("%w: %w", err, last)
	}
	return err
}
