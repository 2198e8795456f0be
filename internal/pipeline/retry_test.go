package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type countingStep struct {
	calls     int
	failUntil int // attempts (1-based) that fail before success
}

func (s *countingStep) ID() string     { return "counting" }
func (s *countingStep) Type() StepType { return StepFilter }

func (s *countingStep) Execute(context.Context, *Context) error {
	s.calls++
	if s.calls <= s.failUntil {
		return errors.New("transient")
	}
	return nil
}

func TestExecuteWithRetrySucceedsFirstTry(t *testing.T) {
	step := &countingStep{}
	err := executeWithRetry(context.Background(), step, nil, ErrorHandling{RetryAttempts: 3, RetryDelayMs: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.calls != 1 {
		t.Errorf("calls = %d, want 1", step.calls)
	}
}

func TestExecuteWithRetryRecoversAfterTransientFailures(t *testing.T) {
	step := &countingStep{failUntil: 2}
	err := executeWithRetry(context.Background(), step, nil, ErrorHandling{RetryAttempts: 2, RetryDelayMs: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.calls != 3 {
		t.Errorf("calls = %d, want 3", step.calls)
	}
}

func TestExecuteWithRetryExhaustsBudget(t *testing.T) {
	step := &countingStep{failUntil: 100}
	err := executeWithRetry(context.Background(), step, nil, ErrorHandling{RetryAttempts: 2, RetryDelayMs: 1})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if step.calls != 3 {
		t.Errorf("calls = %d, want 3 (1 initial + 2 retries)", step.calls)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error %q does not report attempt count", err)
	}
}

func TestExecuteWithRetryZeroRetriesMeansSingleTry(t *testing.T) {
	step := &countingStep{failUntil: 100}
	err := executeWithRetry(context.Background(), step, nil, ErrorHandling{RetryAttempts: 0})
	if err == nil {
		t.Fatal("expected error")
	}
	if step.calls != 1 {
		t.Errorf("calls = %d, want 1", step.calls)
	}
	if strings.Contains(err.Error(), "attempts") {
		t.Errorf("single-try error should be unwrapped, got %q", err)
	}
}

func TestExecuteWithRetryBackoffDoubles(t *testing.T) {
	step := &countingStep{failUntil: 100}
	start := time.Now()
	// Delays: 20ms then 40ms = 60ms minimum.
	_ = executeWithRetry(context.Background(), step, nil, ErrorHandling{RetryAttempts: 2, RetryDelayMs: 20})
	elapsed := time.Since(start)
	if elapsed < 60*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 60ms of backoff", elapsed)
	}
}

func TestExecuteWithRetryHonorsContextCancel(t *testing.T) {
	step := &countingStep{failUntil: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := executeWithRetry(ctx, step, nil, ErrorHandling{RetryAttempts: 5, RetryDelayMs: 10_000})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if step.calls != 1 {
		t.Errorf("calls = %d, want 1 before cancellation", step.calls)
	}
}
