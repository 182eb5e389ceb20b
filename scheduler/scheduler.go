package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	ScheduleInterval = "interval"
	ScheduleDaily    = "daily"
)

// Job is a maintenance task run in the background, either every Interval
// or once a day around DailyAt ("15:04", local time).
type Job struct {
	Name         string
	ScheduleType string
	Interval     time.Duration
	DailyAt      string
	Run          func(ctx context.Context) error

	lastRun time.Time
}

type Scheduler struct {
	checkInterval time.Duration
	jobs          []*Job
	logger        *slog.Logger

	// Prevents two runs of the same job from overlapping.
	running sync.Map
	wg      sync.WaitGroup
	now     func() time.Time
}

func New(checkInterval time.Duration, logger *slog.Logger, jobs ...*Job) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &Scheduler{
		checkInterval: checkInterval,
		jobs:          jobs,
		logger:        logger,
		now:           time.Now,
	}
}

// Start checks the jobs every checkInterval until ctx is cancelled, then
// waits for running jobs to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting maintenance scheduler",
		slog.Int("job_count", len(s.jobs)),
		slog.Duration("check_interval", s.checkInterval))

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("Maintenance scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	for _, job := range s.jobs {
		if !job.ShouldRun(now) {
			continue
		}
		if _, loaded := s.running.LoadOrStore(job.Name, struct{}{}); loaded {
			s.logger.Debug("Job still running, skipping", slog.String("job", job.Name))
			continue
		}
		job.lastRun = now

		s.wg.Add(1)
		go s.execute(ctx, job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	defer s.wg.Done()
	defer s.running.Delete(job.Name)

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("Maintenance job failed",
			slog.String("job", job.Name),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("Maintenance job completed",
		slog.String("job", job.Name),
		slog.Duration("duration", time.Since(start)))
}

func (j *Job) ShouldRun(now time.Time) bool {
	switch j.ScheduleType {
	case ScheduleInterval:
		if j.lastRun.IsZero() {
			return true
		}
		return now.Sub(j.lastRun) >= j.Interval
	case ScheduleDaily:
		scheduleTime, err := time.Parse("15:04", j.DailyAt)
		if err != nil {
			return false
		}

		// 5 minutes either side of the scheduled time
		scheduledDateTime := time.Date(now.Year(), now.Month(), now.Day(), scheduleTime.Hour(), scheduleTime.Minute(), 0, 0, now.Location())
		windowStart := scheduledDateTime.Add(-5 * time.Minute)
		windowEnd := scheduledDateTime.Add(5 * time.Minute)
		isWithinWindow := now.After(windowStart) && now.Before(windowEnd)

		if j.lastRun.IsZero() {
			return isWithinWindow
		}
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return isWithinWindow && j.lastRun.Before(startOfDay)
	}
	return false
}
