// Package schedule drives crawl cycles at a fixed cadence until its context
// is cancelled.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"reddot-watch/hncrawler/internal/crawl"
)

// Runner executes one cycle.
type Runner interface {
	RunOnce(ctx context.Context) (crawl.Outcome, error)
}

// State is the scheduler lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Scheduler runs cycles back to back, sleeping interval minus the cycle's
// duration in between. Cancellation of the Run context is only observed
// between cycles; a cycle in flight always completes.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	closers  []io.Closer
	logger   zerolog.Logger

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
	stopped   chan struct{}

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) bool
}

// New creates a Scheduler. An interval of zero runs a single cycle. The
// closers are released once, when the scheduler stops.
func New(runner Runner, interval time.Duration, logger zerolog.Logger, closers ...io.Closer) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		closers:  closers,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		stopped:  make(chan struct{}),
		now:      time.Now,
		wait:     waitOrCancel,
	}
}

// NextDelay is the pause before the next cycle: interval minus the time the
// last cycle took, never negative.
func NextDelay(interval, elapsed time.Duration) time.Duration {
	return max(0, interval-elapsed)
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Stopped is closed once the scheduler has released its resources.
func (s *Scheduler) Stopped() <-chan struct{} {
	return s.stopped
}

// Run blocks until ctx is cancelled (or after one cycle when the interval is
// zero). Failed cycles are logged and do not end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.stop()

	cycle := 0
	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("Stop requested, leaving scheduler loop")
			return s.stop()
		}

		cycle++
		s.state.Store(int32(StateRunning))
		start := s.now()

		outcome, err := s.runner.RunOnce(context.WithoutCancel(ctx))
		elapsed := s.now().Sub(start)
		if err != nil {
			s.logger.Error().Err(err).Int("cycle", cycle).Dur("duration", elapsed).Msg("Cycle failed")
		} else {
			s.logger.Info().
				Int("cycle", cycle).
				Int64("run_id", outcome.RunID).
				Str("status", string(outcome.Status)).
				Dur("duration", elapsed).
				Msg("Cycle finished")
		}

		if s.interval <= 0 {
			s.logger.Info().Msg("One-shot cycle completed")
			return s.stop()
		}

		delay := NextDelay(s.interval, elapsed)
		s.state.Store(int32(StateSleeping))
		s.logger.Info().
			Dur("sleep", delay).
			Time("next_run", s.now().Add(delay)).
			Msg("Waiting for next cycle")

		if !s.wait(ctx, delay) {
			s.logger.Info().Msg("Stop requested during sleep")
			return s.stop()
		}
	}
}

// stop moves to StateStopped and closes the resources exactly once.
func (s *Scheduler) stop() error {
	s.closeOnce.Do(func() {
		var errs []error
		for _, c := range s.closers {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
		s.state.Store(int32(StateStopped))
		close(s.stopped)
		s.logger.Info().Msg("Scheduler stopped")
	})
	return s.closeErr
}

// waitOrCancel sleeps for d and reports false if ctx ended first.
func waitOrCancel(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
