package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "shopwatch/pkg/logx"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	p := Policy{Attempts: 3, Delay: time.Millisecond}
	err := p.Do(context.Background(), logx.Nop(), "op", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	calls := 0
	p := Policy{Attempts: 3, Delay: time.Millisecond}
	err := p.Do(context.Background(), logx.Nop(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsLastErrorUnchanged(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("boom")
	calls := 0
	p := Policy{Attempts: 3, Delay: time.Millisecond}
	err := p.Do(context.Background(), logx.Nop(), "op", func(context.Context) error {
		calls++
		if calls == 3 {
			return sentinel
		}
		return errors.New("earlier failure")
	})
	if err != sentinel {
		t.Fatalf("Do returned %v, want the sentinel unchanged", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoZeroPolicyDefaults(t *testing.T) {
	t.Parallel()
	calls := 0
	p := Policy{Delay: time.Millisecond}
	_ = p.Do(context.Background(), logx.Nop(), "op", func(context.Context) error {
		calls++
		return errors.New("always")
	})
	if calls != DefaultAttempts {
		t.Fatalf("calls = %d, want %d", calls, DefaultAttempts)
	}
}

func TestDoHonorsCancellationDuringDelay(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{Attempts: 5, Delay: time.Minute}
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, logx.Nop(), "op", func(context.Context) error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
