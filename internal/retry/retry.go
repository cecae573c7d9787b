package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"strmsync/internal/config"
	"strmsync/internal/services"
)

// Classifier reports whether an error may succeed on another attempt.
type Classifier func(error) bool

// Policy is a bounded exponential backoff with jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter spreads each delay by up to ±Jitter of its value.
	Jitter    float64
	Retryable Classifier
	// Sleep waits for d unless ctx ends first; nil uses SleepWithContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// FromConfig builds a policy from the [retry] section. Retryable errors are
// those tagged rate limited or transient.
func FromConfig(cfg config.Retry) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.MaxDelayMS) * time.Millisecond,
		Jitter:      cfg.Jitter,
		Retryable:   services.IsRetryable,
	}
}

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err came from a policy that ran out of attempts.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// retryAfter is implemented by errors that carry a server-provided delay.
type retryAfter interface {
	RetryAfter() time.Duration
}

// Delay returns the wait before attempt+1, for attempt >= 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * (2*rand.Float64() - 1)
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return services.IsRetryable(err)
	}
	return p.Retryable(err)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepWithContext(ctx, d)
}

// Do runs op until it succeeds, fails with a non-retryable error, or runs out
// of attempts. Rate-limited failures push the shared gate forward so every
// worker waits; other retryable failures only delay the caller. onRetry, when
// set, is called before each wait. Returns the number of attempts made.
func (p Policy) Do(ctx context.Context, gate *Gate, op func(context.Context) error, onRetry func(attempt int, delay time.Duration, err error)) (int, error) {
	maxAttempts := p.attempts()
	for attempt := 1; ; attempt++ {
		if gate != nil {
			if err := gate.Wait(ctx, p.sleep); err != nil {
				return attempt - 1, err
			}
		} else if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		if !p.retryable(err) {
			return attempt, err
		}
		if attempt >= maxAttempts {
			return attempt, &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := p.Delay(attempt)
		var hinted retryAfter
		if errors.As(err, &hinted) && hinted.RetryAfter() > delay {
			delay = hinted.RetryAfter()
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if gate != nil && errors.Is(err, services.ErrRateLimited) {
			gate.Backoff(delay)
			continue
		}
		if err := p.sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Gate is backoff state shared by all workers of a phase.
type Gate struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
	hits  int
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// Backoff closes the gate for at least d from now. An existing later
// deadline is kept.
func (g *Gate) Backoff(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hits++
	if deadline := g.now().Add(d); deadline.After(g.until) {
		g.until = deadline
	}
}

// Hits returns how many times the gate was pushed forward.
func (g *Gate) Hits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits
}

// Remaining returns how long the gate stays closed.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.until.Sub(g.now())
}

// Wait blocks until the gate is open, re-checking after each sleep because
// another worker may have extended the deadline meanwhile.
func (g *Gate) Wait(ctx context.Context, sleep func(context.Context, time.Duration) error) error {
	if sleep == nil {
		sleep = SleepWithContext
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := g.Remaining()
		if remaining <= 0 {
			return nil
		}
		if err := sleep(ctx, remaining); err != nil {
			return err
		}
	}
}
