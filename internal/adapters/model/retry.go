package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

// RetryPolicy wraps adapter calls with classified retries. It is pure
// policy: only the error's retryable flag and rate-limit hint are
// inspected, never its content.
type RetryPolicy struct {
	MaxAttempts   int // retries after the first attempt
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	DisableJitter bool

	// OnRetry is invoked before each wait. The state manager uses it to
	// count retries.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewRetryPolicy builds a policy from millisecond settings. Deterministic
// mode forces zero attempts and no jitter.
func NewRetryPolicy(maxAttempts, baseDelayMs, maxDelayMs int, deterministic bool) *RetryPolicy {
	if deterministic {
		maxAttempts = 0
	}
	return &RetryPolicy{
		MaxAttempts:   maxAttempts,
		BaseDelay:     time.Duration(baseDelayMs) * time.Millisecond,
		MaxDelay:      time.Duration(maxDelayMs) * time.Millisecond,
		DisableJitter: deterministic,
	}
}

// Call executes the adapter call with up to 1+MaxAttempts executions.
// Non-retryable errors re-raise immediately.
func (p *RetryPolicy) Call(ctx context.Context, adapter core.ModelAdapter, req core.CallRequest) (*core.CallResult, error) {
	var lastErr error

	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, core.ErrTimeout("call cancelled").WithCause(ctx.Err())
		default:
		}

		result, err := adapter.Call(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			return nil, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if hint := core.RetryAfterHint(err); hint > delay {
			delay = hint
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, core.ErrTimeout("call cancelled during backoff").WithCause(ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, &RetryExhaustedError{Attempts: p.MaxAttempts + 1, LastErr: lastErr}
}

// Delay computes the backoff for a zero-based attempt index: exponential
// with a cap, scaled by a uniform jitter factor in [0.5, 1.0] unless
// disabled.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if max := float64(p.MaxDelay); delay > max {
		delay = max
	}
	if !p.DisableJitter {
		delay *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(delay)
}

// RetryExhaustedError indicates every attempt failed with a retryable
// error.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}
