package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

func fastPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   maxAttempts,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		DisableJitter: true,
	}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	mock := NewScriptedMock("m",
		MockCall{Err: core.ErrTimeout("blip")},
		MockCall{Err: core.ErrTransport("blip")},
		MockCall{Content: "ok"},
	)

	retries := 0
	policy := fastPolicy(3)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) { retries++ }

	result, err := policy.Call(context.Background(), mock, core.CallRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Content != "ok" {
		t.Errorf("content = %q", result.Content)
	}
	if retries != 2 {
		t.Errorf("OnRetry fired %d times, want 2", retries)
	}
	if mock.Calls() != 3 {
		t.Errorf("adapter invoked %d times, want 3", mock.Calls())
	}
}

func TestRetry_NonRetryableImmediate(t *testing.T) {
	mock := NewScriptedMock("m",
		MockCall{Err: core.ErrValidation(core.CodeNoCredential, "missing key")},
		MockCall{Content: "never reached"},
	)

	_, err := fastPolicy(3).Call(context.Background(), mock, core.CallRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if core.IsRetryable(err) {
		t.Error("validation error must not be retryable")
	}
	if mock.Calls() != 1 {
		t.Errorf("adapter invoked %d times, want 1", mock.Calls())
	}
}

func TestRetry_Exhaustion(t *testing.T) {
	mock := NewScriptedMock("m",
		MockCall{Err: core.ErrTimeout("1")},
		MockCall{Err: core.ErrTimeout("2")},
		MockCall{Err: core.ErrTimeout("3")},
	)

	_, err := fastPolicy(2).Call(context.Background(), mock, core.CallRequest{})
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %T, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", exhausted.Attempts)
	}
	if mock.Calls() != 3 {
		t.Errorf("adapter invoked %d times, want 3", mock.Calls())
	}
}

func TestRetry_DeterministicModeDisablesRetries(t *testing.T) {
	policy := NewRetryPolicy(5, 100, 1000, true)
	if policy.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %d, want 0", policy.MaxAttempts)
	}
	if !policy.DisableJitter {
		t.Error("jitter must be disabled in deterministic mode")
	}

	mock := NewScriptedMock("m", MockCall{Err: core.ErrTimeout("blip")})
	if _, err := policy.Call(context.Background(), mock, core.CallRequest{}); err == nil {
		t.Fatal("single failure must surface with retries disabled")
	}
	if mock.Calls() != 1 {
		t.Errorf("adapter invoked %d times, want 1", mock.Calls())
	}
}

func TestRetry_DelayExponentialWithCap(t *testing.T) {
	policy := &RetryPolicy{
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      350 * time.Millisecond,
		DisableJitter: true,
	}
	wants := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		350 * time.Millisecond, // capped from 400
		350 * time.Millisecond,
	}
	for attempt, want := range wants {
		if got := policy.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestRetry_JitterRange(t *testing.T) {
	policy := &RetryPolicy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
	}
	for i := 0; i < 100; i++ {
		d := policy.Delay(0)
		if d < 50*time.Millisecond || d > 100*time.Millisecond {
			t.Fatalf("jittered delay %v outside [50ms,100ms]", d)
		}
	}
}

func TestRetry_RateLimitHintRaisesDelay(t *testing.T) {
	mock := NewScriptedMock("m",
		MockCall{Err: core.ErrRateLimit("slow down", 30*time.Millisecond)},
		MockCall{Content: "ok"},
	)

	var observed time.Duration
	policy := fastPolicy(1)
	policy.OnRetry = func(_ int, _ error, delay time.Duration) { observed = delay }

	if _, err := policy.Call(context.Background(), mock, core.CallRequest{}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if observed < 30*time.Millisecond {
		t.Errorf("delay %v below retry-after hint", observed)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := NewScriptedMock("m", MockCall{Content: "unreached"})
	if _, err := fastPolicy(0).Call(ctx, mock, core.CallRequest{}); err == nil {
		t.Fatal("cancelled context must fail the call")
	}
	if mock.Calls() != 0 {
		t.Errorf("adapter invoked %d times after cancel, want 0", mock.Calls())
	}
}
