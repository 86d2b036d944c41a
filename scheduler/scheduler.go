// Package scheduler drives the consolidation pipeline (C5) at a
// configured wall-clock time (C6, §4.6). Unlike the teacher's 60-second
// polling loop, this scheduler arms a single-shot timer for the next
// occurrence and re-arms it after each fire — the wakeup count is
// proportional to actual runs, not to a fixed polling cadence.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oculusnoob/vesper-memory"
)

// Clock abstracts the wall clock so tests can control "now" without
// waiting on real time.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock, backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RunFunc executes one consolidation cycle and reports its stats.
type RunFunc func(ctx context.Context) vesper.ConsolidationStats

var nopLogger = slog.New(slog.NewTextHandler(discardWriter{}, nil))

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the Scheduler's Clock (default: the system clock).
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithSchedule sets the target hour/minute (local time) the scheduler
// arms for. Default is 03:00.
func WithSchedule(hour, minute int) Option {
	return func(s *Scheduler) { s.scheduleH, s.scheduleM = hour, minute }
}

// WithLogger overrides the Scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler arms a single-shot timer for the configured hour/minute,
// runs the pipeline when it fires, and re-arms for the next occurrence.
// run_now() triggers an out-of-band cycle without disturbing the armed
// schedule (§4.6).
type Scheduler struct {
	clock  Clock
	run    RunFunc
	logger *slog.Logger

	mu           sync.Mutex
	scheduleH    int
	scheduleM    int
	running      bool
	stopCh       chan struct{}
	done         chan struct{}
	lastRunTime  int64
	lastRunStats *vesper.ConsolidationStats
	nextRunTime  int64
	runCount     int64
	fireMu       sync.Mutex // serializes run() against concurrent scheduled fire + run_now
}

// New builds a Scheduler that invokes run on each fire. Default schedule
// is 03:00 local.
func New(run RunFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:     systemClock{},
		run:       run,
		logger:    nopLogger,
		scheduleH: 3,
		scheduleM: 0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// computeNextRun returns the next occurrence of hour:minute at or after
// now, in now's location. If hour:minute has already passed today, it
// rolls to tomorrow.
func computeNextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start arms the timer and begins the background loop. Calling Start on
// an already-running Scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	next := computeNextRun(s.clock.Now(), s.scheduleH, s.scheduleM)
	s.nextRunTime = next.Unix()
	stopCh := s.stopCh
	done := s.done
	s.mu.Unlock()

	s.logger.Info("scheduler: started", "schedule_h", s.scheduleH, "schedule_m", s.scheduleM, "next_run", next)
	go s.loop(ctx, next, stopCh, done)
}

func (s *Scheduler) loop(ctx context.Context, next time.Time, stopCh, done chan struct{}) {
	defer close(done)
	for {
		d := time.Until(next)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx)
			next = computeNextRun(s.clock.Now(), s.currentSchedule())
			s.mu.Lock()
			s.nextRunTime = next.Unix()
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) currentSchedule() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleH, s.scheduleM
}

func (s *Scheduler) fire(ctx context.Context) {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	stats := s.run(ctx)
	now := s.clock.Now().Unix()

	s.mu.Lock()
	s.lastRunTime = now
	statsCopy := stats
	s.lastRunStats = &statsCopy
	s.runCount++
	s.mu.Unlock()

	if stats.FailedStep != "" {
		s.logger.Error("scheduler: run failed", "step", stats.FailedStep, "error", stats.Err)
	} else {
		s.logger.Info("scheduler: run complete", "duration_ms", stats.DurationMs)
	}
}

// RunNow executes one cycle immediately. It does not disturb the armed
// schedule (§4.6).
func (s *Scheduler) RunNow(ctx context.Context) vesper.ConsolidationStats {
	s.fire(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRunStats != nil {
		return *s.lastRunStats
	}
	return vesper.ConsolidationStats{}
}

// Stop cancels the armed timer. Stop on a non-running Scheduler is a
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	doneCh := s.done
	close(s.stopCh)
	s.mu.Unlock()

	<-doneCh
	s.logger.Info("scheduler: stopped")
}

// Status reports the scheduler's current configuration and run history
// (§4.6).
func (s *Scheduler) Status() vesper.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return vesper.SchedulerStatus{
		Running:      s.running,
		ScheduleH:    s.scheduleH,
		ScheduleM:    s.scheduleM,
		LastRunTime:  s.lastRunTime,
		LastRunStats: s.lastRunStats,
		NextRunTime:  s.nextRunTime,
		RunCount:     s.runCount,
	}
}
