package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"metric-alerts/internal/metrics"
)

// ErrPassInProgress is returned by RunNow when an evaluation pass is already
// executing.
var ErrPassInProgress = errors.New("scheduler: evaluation pass already in progress")

// PassFunc executes one evaluation pass.
type PassFunc func(ctx context.Context, now time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives periodic evaluation passes. Timer ticks and on-demand
// triggers share one non-overlap guard: a tick that fires while a pass is
// still running is skipped and logged, never queued.
type Scheduler struct {
	opts    Options
	logger  zerolog.Logger
	running atomic.Bool
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the pass at each interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, pass PassFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UTC()
			if err := s.execute(ctx, pass, now); err != nil {
				if errors.Is(err, ErrPassInProgress) {
					s.logger.Warn().Time("tick", now).Msg("previous pass still running, skipping tick")
					metrics.PassesSkipped.Inc()
					continue
				}
				s.logger.Error().Err(err).Time("tick", now).Msg("evaluation pass failed")
			}
			s.dropMissedTicks(ticker)
		}
	}
}

// dropMissedTicks discards a tick that fired while the pass was executing.
// The next pass then waits for a fresh interval instead of running
// immediately as a catch-up.
func (s *Scheduler) dropMissedTicks(ticker *time.Ticker) {
	for {
		select {
		case tick := <-ticker.C:
			s.logger.Warn().Time("tick", tick.UTC()).Msg("tick fired during previous pass, skipping")
			metrics.PassesSkipped.Inc()
		default:
			return
		}
	}
}

// RunNow executes one pass outside the timer, subject to the same
// non-overlap guard.
func (s *Scheduler) RunNow(ctx context.Context, pass PassFunc) error {
	return s.execute(ctx, pass, time.Now().UTC())
}

func (s *Scheduler) execute(ctx context.Context, pass PassFunc, now time.Time) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrPassInProgress
	}
	defer s.running.Store(false)

	s.logger.Debug().Time("now", now).Msg("executing evaluation pass")
	return pass(ctx, now)
}
