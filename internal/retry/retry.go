// Package retry wraps a unit of work in a bounded fixed-delay retry policy
// with per-attempt timeout enforcement.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wfrunner/pkg/logx"
)

// ErrAttemptTimeout marks an attempt that exceeded the policy timeout.
// It counts as a failed attempt and is retried like any other failure.
var ErrAttemptTimeout = errors.New("attempt timed out")

// Policy is an immutable retry configuration, loaded once at startup.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// unit of work runs at most MaxRetries+1 times.
	MaxRetries int

	// Delay is the fixed wait between attempts. No jitter, no backoff.
	Delay time.Duration

	// Timeout bounds each individual attempt. Zero disables the bound.
	Timeout time.Duration
}

func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("retry: max_retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry: delay must be >= 0, got %s", p.Delay)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("retry: timeout must be >= 0, got %s", p.Timeout)
	}
	return nil
}

// ExhaustedError is returned after every permitted attempt has failed.
// It carries the last underlying error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do runs fn under the policy: up to MaxRetries+1 attempts, each bounded by
// Timeout when set, with a fixed Delay between attempts (not after the last).
//
// The inter-attempt wait is interruptible: ctx cancellation aborts it and
// surfaces ctx.Err() wrapped in ExhaustedError, so shutdown never hangs on a
// retry delay. One log line is emitted per attempt.
func Do(ctx context.Context, log logx.Logger, p Policy, name string, fn func(ctx context.Context) error) error {
	if log.IsZero() {
		log = logx.Nop()
	}

	maxAttempts := p.MaxRetries + 1
	var last error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()

		runCtx := ctx
		var cancel context.CancelFunc
		if p.Timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := fn(runCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			log.Info("attempt succeeded",
				logx.String("work", name),
				logx.Int("attempt", attempt),
				logx.Int("max_attempts", maxAttempts),
				logx.Duration("took", time.Since(start)))
			return nil
		}

		// A deadline hit on the attempt context is a timeout, whatever fn
		// returned; parent cancellation is shutdown and is not retried.
		if runCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %v", ErrAttemptTimeout, p.Timeout, err)
		}
		last = err

		log.Warn("attempt failed",
			logx.String("work", name),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", maxAttempts),
			logx.Duration("took", time.Since(start)),
			logx.Err(err))

		if ctx.Err() != nil {
			return &ExhaustedError{Attempts: attempt, Last: ctx.Err()}
		}
		if attempt == maxAttempts {
			break
		}

		if p.Delay > 0 {
			log.Debug("retry scheduled",
				logx.String("work", name),
				logx.Int("attempt", attempt+1),
				logx.Duration("delay", p.Delay))
			tmr := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				return &ExhaustedError{Attempts: attempt, Last: ctx.Err()}
			case <-tmr.C:
			}
		}
	}

	return &ExhaustedError{Attempts: maxAttempts, Last: last}
}
