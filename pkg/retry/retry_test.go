package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond})

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Config{MaxRetries: 5, InitialDelay: time.Millisecond, JitterFactor: 0})

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	sentinel := errors.New("always fails")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return sentinel
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond, JitterFactor: 0})

	if !errors.Is(err, sentinel) {
		t.Errorf("Do() error = %v, want %v", err, sentinel)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return Permanent(errors.New("order rejected"))
	}, Config{MaxRetries: 5, InitialDelay: time.Millisecond, RetryIf: IsRetryable})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1 (permanent error)", calls)
	}
}

func TestDoRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func() error {
		t.Error("operation should not run after cancel")
		return nil
	}, DefaultConfig())

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond, JitterFactor: 0})

	if err != nil {
		t.Errorf("DoWithResult() error = %v, want nil", err)
	}
	if result != 42 {
		t.Errorf("DoWithResult() = %d, want 42", result)
	}
}

func TestOnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		JitterFactor: 0,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		},
	}

	_ = Do(context.Background(), func() error {
		return errors.New("fail")
	}, cfg)

	// 3 попытки = 2 повтора
	if len(attempts) != 2 {
		t.Fatalf("OnRetry called %d times, want 2", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestCalculateDelayCapped(t *testing.T) {
	cfg := Config{
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0,
	}
	cfg.validate()

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 4 * time.Second},
		{10, 4 * time.Second},
	}

	for _, tt := range tests {
		if got := cfg.calculateDelay(tt.attempt); got != tt.expected {
			t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"permanent", Permanent(errors.New("rejected")), false},
		{"temporary", Temporary(errors.New("timeout")), true},
		{"wrapped permanent", wrapErr(Permanent(errors.New("rejected"))), false},
		{"plain error defaults to retryable", errors.New("unknown"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func wrapErr(err error) error {
	return errors.Join(errors.New("outer"), err)
}

func TestRetryIfNotContext(t *testing.T) {
	if RetryIfNotContext(context.Canceled) {
		t.Error("context.Canceled should not be retryable")
	}
	if RetryIfNotContext(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded should not be retryable")
	}
	if !RetryIfNotContext(errors.New("network")) {
		t.Error("plain errors should be retryable")
	}
}

func TestPermanentNilPassthrough(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if Temporary(nil) != nil {
		t.Error("Temporary(nil) should be nil")
	}
}

func TestBackoffScheduleSequence(t *testing.T) {
	b := NewBackoffSchedule(time.Second, 30*time.Second)

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for i, want := range expected {
		if got := b.Next(); got != want {
			t.Errorf("Next() #%d = %v, want %v", i+1, got, want)
		}
	}
}

func TestBackoffScheduleReset(t *testing.T) {
	b := NewBackoffSchedule(time.Second, 30*time.Second)

	b.Next()
	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after Reset = %v, want 1s", got)
	}
}

func TestBackoffScheduleCurrent(t *testing.T) {
	b := NewBackoffSchedule(time.Second, 30*time.Second)

	if got := b.Current(); got != time.Second {
		t.Errorf("Current() before first Next = %v, want 1s", got)
	}

	b.Next()
	if got := b.Current(); got != 2*time.Second {
		t.Errorf("Current() after one Next = %v, want 2s", got)
	}
}

func TestBackoffScheduleDefaults(t *testing.T) {
	b := NewBackoffSchedule(0, 0)
	if b.Initial != time.Second {
		t.Errorf("default Initial = %v, want 1s", b.Initial)
	}
	if b.Max != time.Second {
		t.Errorf("Max below Initial should be raised to Initial, got %v", b.Max)
	}
}
