package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunInvokesPassPeriodically(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	var passes atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, func(ctx context.Context, now time.Time) error {
			if passes.Add(1) >= 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not run three passes in time")
	}
	if passes.Load() < 3 {
		t.Fatalf("expected at least 3 passes, got %d", passes.Load())
	}
}

func TestTickDuringPassIsSkippedNotQueued(t *testing.T) {
	const interval = 50 * time.Millisecond
	s := New(Options{Interval: interval}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		passes   atomic.Int32
		firstEnd atomic.Int64
		second   atomic.Int64
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, func(ctx context.Context, now time.Time) error {
			switch passes.Add(1) {
			case 1:
				// Outlive one full interval so a tick fires mid-pass.
				time.Sleep(interval + interval/2)
				firstEnd.Store(time.Now().UnixNano())
			case 2:
				second.Store(time.Now().UnixNano())
				cancel()
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not run two passes in time")
	}

	if passes.Load() < 2 {
		t.Fatalf("expected at least 2 passes, got %d", passes.Load())
	}
	gap := time.Duration(second.Load() - firstEnd.Load())
	if gap < interval/4 {
		t.Fatalf("second pass started %s after the first finished; the tick that fired mid-pass must be dropped, not run as a catch-up", gap)
	}
}

func TestRunNowSharesOverlapGuard(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.RunNow(context.Background(), func(ctx context.Context, now time.Time) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	err := s.RunNow(context.Background(), func(ctx context.Context, now time.Time) error {
		t.Error("second pass must not run while the first is in progress")
		return nil
	})
	if !errors.Is(err, ErrPassInProgress) {
		t.Fatalf("expected ErrPassInProgress, got %v", err)
	}
	close(release)
}

func TestRunNowAfterPassCompletes(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	ran := 0
	pass := func(ctx context.Context, now time.Time) error {
		ran++
		return nil
	}
	if err := s.RunNow(context.Background(), pass); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if err := s.RunNow(context.Background(), pass); err != nil {
		t.Fatalf("RunNow after completion: %v", err)
	}
	if ran != 2 {
		t.Fatalf("expected 2 passes, got %d", ran)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(ctx context.Context, now time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
