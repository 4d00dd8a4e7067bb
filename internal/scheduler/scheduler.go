// Package scheduler runs the settlement jobs at fixed times of day. Each job
// is single-flight: concurrent triggers share one run, and when a Locker is
// configured only one process runs a job at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"compengine/internal/config"
	"compengine/internal/metrics"
	"compengine/internal/services"
	"compengine/internal/utils"
	"compengine/pkg/cache"
	"compengine/pkg/logger"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobLocked  = errors.New("job is running elsewhere")
)

type JobFunc func(ctx context.Context) (*services.SettlementResult, error)

type Job struct {
	Name   string
	Hour   int
	Minute int
	Run    JobFunc
}

// Locker guards a job across processes. *cache.RedisCache implements it.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (*cache.Lock, error)
	Unlock(ctx context.Context, lock *cache.Lock) error
}

// Archive persists finished runs.
type Archive interface {
	Archive(ctx context.Context, run *Run) error
}

// Publisher receives run lifecycle events. *websocket.Hub implements it.
type Publisher interface {
	Publish(topic, eventType string, data interface{})
}

const (
	EventTopic       = "jobs"
	EventJobStarted  = "job.started"
	EventJobFinished = "job.finished"
	EventJobFailed   = "job.failed"
)

type Config struct {
	Logger    *logger.Logger
	Clock     clockwork.Clock
	Location  *time.Location
	Locker    Locker    // optional
	Archive   Archive   // optional
	Publisher Publisher // optional
	LockTTL   time.Duration
	Jobs      []Job
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Jobs) == 0 {
		return errors.New("at least one job is required")
	}
	seen := make(map[string]bool, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		if job.Name == "" || job.Run == nil {
			return errors.New("job name and func are required")
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate job %q", job.Name)
		}
		seen[job.Name] = true
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return nil
}

// Run is the record of one job execution.
type Run struct {
	Job        string                     `json:"job"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Result     *services.SettlementResult `json:"result,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

type Scheduler struct {
	log   *logger.Logger
	cfg   Config
	jobs  map[string]Job
	group singleflight.Group

	mu   sync.RWMutex
	last map[string]*Run
	// lifetime cancels in-flight runs; it is set by Start.
	lifetime context.Context
}

func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jobs := make(map[string]Job, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		jobs[job.Name] = job
	}
	return &Scheduler{
		log:      cfg.Logger.WithField("component", "scheduler"),
		cfg:      cfg,
		jobs:     jobs,
		last:     make(map[string]*Run),
		lifetime: context.Background(),
	}, nil
}

// JobsFromConfig binds the engine's periodic operations to their configured times.
func JobsFromConfig(engine services.CompensationEngine, cfg *config.SchedulerConfig) ([]Job, error) {
	specs := []struct {
		name string
		at   string
		run  JobFunc
	}{
		{services.JobPruneMatches, cfg.MatchingPruneAt, engine.PruneMatchingCounters},
		{services.JobPendingBonus, cfg.PendingBonusAt, engine.SettlePendingBonuses},
		{services.JobMonthlyROI, cfg.MonthlyROIAt, engine.SettleMonthlyROI},
	}

	jobs := make([]Job, 0, len(specs))
	for _, spec := range specs {
		hour, minute, err := config.ParseTimeOfDay(spec.at)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", spec.name, err)
		}
		jobs = append(jobs, Job{Name: spec.name, Hour: hour, Minute: minute, Run: spec.run})
	}
	return jobs, nil
}

func (s *Scheduler) JobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches one timer loop per job. Loops exit when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.lifetime = ctx
	s.mu.Unlock()

	for _, job := range s.cfg.Jobs {
		go s.loop(ctx, job)
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		now := s.cfg.Clock.Now().In(s.cfg.Location)
		next := utils.NextTimeOfDay(now, job.Hour, job.Minute)
		s.log.WithField("job", job.Name).Debugf("Next run at %s", next.Format(time.RFC3339))

		timer := s.cfg.Clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			if _, err := s.RunJob(ctx, job.Name); err != nil && !errors.Is(err, context.Canceled) {
				s.log.WithField("job", job.Name).WithError(err).Warn("Scheduled run did not complete")
			}
		}
	}
}

// RunJob runs the named job now. Callers arriving while it runs share the
// in-flight run. The run is cancelled only when the scheduler stops; a caller
// whose ctx ends stops waiting and gets ctx.Err() while the run carries on.
func (s *Scheduler) RunJob(ctx context.Context, name string) (*Run, error) {
	job, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	ch := s.group.DoChan(name, func() (interface{}, error) {
		runCtx, cancel := s.runContext(ctx)
		defer cancel()
		return s.execute(runCtx, job)
	})

	select {
	case res := <-ch:
		run, _ := res.Val.(*Run)
		return run, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runContext keeps ctx's values but takes cancellation from the scheduler's
// lifetime instead of the caller.
func (s *Scheduler) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	s.mu.RLock()
	lifetime := s.lifetime
	s.mu.RUnlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(lifetime, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) (run *Run, err error) {
	log := s.log.WithField("job", job.Name)
	ctx = context.WithValue(ctx, logger.JobKey, job.Name)

	if s.cfg.Locker != nil {
		lock, err := s.cfg.Locker.Lock(ctx, job.Name, s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				metrics.SchedulerRunsTotal.WithLabelValues(job.Name, "locked").Inc()
				log.Info("Job is running on another instance, skipping")
				return nil, ErrJobLocked
			}
			metrics.SchedulerRunsTotal.WithLabelValues(job.Name, "lock_error").Inc()
			return nil, err
		}
		defer func() {
			if unlockErr := s.cfg.Locker.Unlock(context.WithoutCancel(ctx), lock); unlockErr != nil {
				log.WithError(unlockErr).Warn("Failed to release job lock")
			}
		}()
	}

	run = &Run{Job: job.Name, StartedAt: s.cfg.Clock.Now()}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
		run.FinishedAt = s.cfg.Clock.Now()
		outcome := "success"
		if err != nil {
			outcome = "failed"
			run.Error = err.Error()
			log.WithError(err).Error("Job failed")
		}
		metrics.SchedulerRunsTotal.WithLabelValues(job.Name, outcome).Inc()
		s.record(run)
		s.publish(eventForOutcome(outcome), run)
		s.archive(context.WithoutCancel(ctx), run)
	}()

	log.Info("Job started")
	s.publish(EventJobStarted, run)
	run.Result, err = job.Run(ctx)
	return run, err
}

func (s *Scheduler) record(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[run.Job] = run
}

func (s *Scheduler) publish(eventType string, run *Run) {
	if s.cfg.Publisher == nil {
		return
	}
	s.cfg.Publisher.Publish(EventTopic, eventType, run)
}

func (s *Scheduler) archive(ctx context.Context, run *Run) {
	if s.cfg.Archive == nil {
		return
	}
	if err := s.cfg.Archive.Archive(ctx, run); err != nil {
		s.log.WithField("job", run.Job).WithError(err).Warn("Failed to archive run report")
	}
}

func eventForOutcome(outcome string) string {
	if outcome == "success" {
		return EventJobFinished
	}
	return EventJobFailed
}

func (s *Scheduler) LastRun(name string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.last[name]
	return run, ok
}
