// Package scheduler owns the recurring background jobs that drive the
// notification rule engine and history cleanup. It is process-wide
// singleton state with an explicit lifecycle: constructed once, jobs
// started explicitly (never on construction), and stopped explicitly on
// shutdown so no timers are leaked.
//
// Exactly four named jobs exist: buySoonAlerts, doseDueNotifications,
// missedDoseNotifications, and cleanup. Starting a job that is already
// running removes its existing cron entry first, so a double start never
// yields two concurrent timers for the same name. A tick that fails or
// panics is logged and the job still fires on its next interval.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
	"github.com/medtrack/go-medtrack-backend/internal/services"
)

// Job names, in the fixed order reported by StartAll/StopAll/Status.
const (
	JobBuySoon    = "buySoonAlerts"
	JobDoseDue    = "doseDueNotifications"
	JobMissedDose = "missedDoseNotifications"
	JobCleanup    = "cleanup"
)

// jobOrder fixes the reporting order of the four jobs.
var jobOrder = []string{JobBuySoon, JobDoseDue, JobMissedDose, JobCleanup}

// RuleRunner is the slice of the notification service the scheduler
// invokes on each tick.
type RuleRunner interface {
	GenerateBuySoonAlerts(ctx context.Context, daysAhead int) ([]domain.Notification, error)
	GenerateDoseDueNotifications(ctx context.Context, minutesAhead int) ([]domain.Notification, error)
	GenerateMissedDoseNotifications(ctx context.Context, hoursOverdue int) ([]domain.Notification, error)
	CleanupOld(ctx context.Context, daysOld int) (*services.CleanupResult, error)
}

// Config controls job intervals and the rule parameters each tick uses.
type Config struct {
	BuySoonInterval    time.Duration
	DoseDueInterval    time.Duration
	MissedDoseInterval time.Duration
	CleanupInterval    time.Duration

	BuySoonDays     int
	DoseDueMinutes  int
	MissedDoseHours int
	RetentionDays   int

	// TickTimeout bounds a single tick's context.
	TickTimeout time.Duration
}

// DefaultConfig returns the stock intervals and rule parameters.
func DefaultConfig() Config {
	return Config{
		BuySoonInterval:    6 * time.Hour,
		DoseDueInterval:    5 * time.Minute,
		MissedDoseInterval: 30 * time.Minute,
		CleanupInterval:    24 * time.Hour,
		BuySoonDays:        7,
		DoseDueMinutes:     60,
		MissedDoseHours:    2,
		RetentionDays:      30,
		TickTimeout:        time.Minute,
	}
}

// job is the tracked state of one named background job.
type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error

	running bool
	entryID cron.EntryID
	lastRun *time.Time
}

// Transition reports the outcome of a start/stop for one job.
type Transition struct {
	JobName string `json:"job_name"`
	Status  string `json:"status"` // "started" or "stopped"
}

// BatchResult is returned by StartAll/StopAll.
type BatchResult struct {
	Message string       `json:"message"`
	Jobs    []Transition `json:"jobs"`
}

// JobState is one entry of the Status report.
type JobState struct {
	JobName   string     `json:"job_name"`
	Running   bool       `json:"running"`
	LastRunAt *time.Time `json:"last_run_at"`
}

// Status is the full scheduler status report.
type Status struct {
	TotalJobs int        `json:"total_jobs"`
	Jobs      []JobState `json:"jobs"`
}

// Scheduler owns the named job handles and the underlying cron runner.
type Scheduler struct {
	mu    sync.Mutex
	log   zerolog.Logger
	cfg   Config
	rules RuleRunner
	cron  *cron.Cron
	jobs  map[string]*job
}

// New builds a Scheduler with all four jobs registered but not started.
func New(rules RuleRunner, cfg Config, log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		log:   log.With().Str("component", "scheduler").Logger(),
		cfg:   cfg,
		rules: rules,
		cron:  cron.New(),
		jobs:  make(map[string]*job, len(jobOrder)),
	}

	s.jobs[JobBuySoon] = &job{
		name:     JobBuySoon,
		interval: cfg.BuySoonInterval,
		run: func(ctx context.Context) error {
			_, err := rules.GenerateBuySoonAlerts(ctx, cfg.BuySoonDays)
			return err
		},
	}
	s.jobs[JobDoseDue] = &job{
		name:     JobDoseDue,
		interval: cfg.DoseDueInterval,
		run: func(ctx context.Context) error {
			_, err := rules.GenerateDoseDueNotifications(ctx, cfg.DoseDueMinutes)
			return err
		},
	}
	s.jobs[JobMissedDose] = &job{
		name:     JobMissedDose,
		interval: cfg.MissedDoseInterval,
		run: func(ctx context.Context) error {
			_, err := rules.GenerateMissedDoseNotifications(ctx, cfg.MissedDoseHours)
			return err
		},
	}
	s.jobs[JobCleanup] = &job{
		name:     JobCleanup,
		interval: cfg.CleanupInterval,
		run: func(ctx context.Context) error {
			_, err := rules.CleanupOld(ctx, cfg.RetentionDays)
			return err
		},
	}
	return s
}

// StartJob starts (or restarts) one named job. Restarting replaces the
// existing cron entry so exactly one timer per name exists.
func (s *Scheduler) StartJob(name string) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return Transition{}, fmt.Errorf("unknown background job %q", name)
	}
	s.startLocked(j)
	return Transition{JobName: name, Status: "started"}, nil
}

// StopJob stops one named job. Stopping an idle job is a no-op. An
// in-flight tick runs to completion; only the timer is cancelled.
func (s *Scheduler) StopJob(name string) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return Transition{}, fmt.Errorf("unknown background job %q", name)
	}
	s.stopLocked(j)
	return Transition{JobName: name, Status: "stopped"}, nil
}

// Named convenience starters/stoppers, one pair per rule.

func (s *Scheduler) StartBuySoonAlertJob() (Transition, error)    { return s.StartJob(JobBuySoon) }
func (s *Scheduler) StopBuySoonAlertJob() (Transition, error)     { return s.StopJob(JobBuySoon) }
func (s *Scheduler) StartDoseDueJob() (Transition, error)         { return s.StartJob(JobDoseDue) }
func (s *Scheduler) StopDoseDueJob() (Transition, error)          { return s.StopJob(JobDoseDue) }
func (s *Scheduler) StartMissedDoseJob() (Transition, error)      { return s.StartJob(JobMissedDose) }
func (s *Scheduler) StopMissedDoseJob() (Transition, error)       { return s.StopJob(JobMissedDose) }
func (s *Scheduler) StartCleanupJob() (Transition, error)         { return s.StartJob(JobCleanup) }
func (s *Scheduler) StopCleanupJob() (Transition, error)          { return s.StopJob(JobCleanup) }

// StartAll starts every job in the fixed order.
func (s *Scheduler) StartAll() BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := BatchResult{Message: "background jobs started", Jobs: make([]Transition, 0, len(jobOrder))}
	for _, name := range jobOrder {
		s.startLocked(s.jobs[name])
		out.Jobs = append(out.Jobs, Transition{JobName: name, Status: "started"})
	}
	return out
}

// StopAll stops every job in the fixed order.
func (s *Scheduler) StopAll() BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := BatchResult{Message: "background jobs stopped", Jobs: make([]Transition, 0, len(jobOrder))}
	for _, name := range jobOrder {
		s.stopLocked(s.jobs[name])
		out.Jobs = append(out.Jobs, Transition{JobName: name, Status: "stopped"})
	}
	return out
}

// Status reports every job's running flag and last tick time, in the
// fixed order.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{TotalJobs: len(jobOrder), Jobs: make([]JobState, 0, len(jobOrder))}
	for _, name := range jobOrder {
		j := s.jobs[name]
		st.Jobs = append(st.Jobs, JobState{JobName: name, Running: j.running, LastRunAt: j.lastRun})
	}
	return st
}

// Shutdown stops all jobs and the cron runner, waiting for in-flight
// ticks until ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.StopAll()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startLocked (re)schedules a job. Caller holds s.mu.
func (s *Scheduler) startLocked(j *job) {
	if j.running {
		// Replace instead of stacking a second timer.
		s.cron.Remove(j.entryID)
	}
	j.entryID = s.cron.Schedule(cron.Every(j.interval), cron.FuncJob(func() { s.tick(j) }))
	j.running = true
	s.cron.Start() // no-op when the runner is already live
	s.log.Info().Str("job", j.name).Dur("interval", j.interval).Msg("background job started")
}

// stopLocked cancels a job's timer. Caller holds s.mu.
func (s *Scheduler) stopLocked(j *job) {
	if !j.running {
		return
	}
	s.cron.Remove(j.entryID)
	j.running = false
	s.log.Info().Str("job", j.name).Msg("background job stopped")
}

// tick runs one job iteration. Failures and panics are logged and counted
// but never propagate: the timer must survive a bad tick.
func (s *Scheduler) tick(j *job) {
	now := time.Now().UTC()
	s.mu.Lock()
	j.lastRun = &now
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			jobFailures.WithLabelValues(j.name).Inc()
			s.log.Error().
				Str("job", j.name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("background job tick panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()

	jobTicks.WithLabelValues(j.name).Inc()
	if err := j.run(ctx); err != nil {
		jobFailures.WithLabelValues(j.name).Inc()
		s.log.Error().Err(err).Str("job", j.name).Msg("background job tick failed")
		return
	}
	s.log.Debug().Str("job", j.name).Msg("background job tick completed")
}
