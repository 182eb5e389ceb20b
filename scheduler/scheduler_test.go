package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

/*
Daily jobs do not adjust for Daylight Saving Time transitions. Times are
read in the location of the clock passed to ShouldRun.
*/

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShouldRun(t *testing.T) {
	base := time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		job  Job
		now  time.Time
		want bool
	}{
		{
			name: "Interval - never run",
			job:  Job{ScheduleType: ScheduleInterval, Interval: time.Hour},
			now:  base,
			want: true,
		},
		{
			name: "Interval - not yet due",
			job:  Job{ScheduleType: ScheduleInterval, Interval: time.Hour, lastRun: base},
			now:  base.Add(59 * time.Minute),
			want: false,
		},
		{
			name: "Interval - due",
			job:  Job{ScheduleType: ScheduleInterval, Interval: time.Hour, lastRun: base},
			now:  base.Add(time.Hour),
			want: true,
		},
		{
			name: "Daily - within window, never run",
			job:  Job{ScheduleType: ScheduleDaily, DailyAt: "03:00"},
			now:  base.Add(2 * time.Minute),
			want: true,
		},
		{
			name: "Daily - outside window",
			job:  Job{ScheduleType: ScheduleDaily, DailyAt: "03:00"},
			now:  base.Add(10 * time.Minute),
			want: false,
		},
		{
			name: "Daily - already run today",
			job:  Job{ScheduleType: ScheduleDaily, DailyAt: "03:00", lastRun: base.Add(-time.Minute)},
			now:  base.Add(2 * time.Minute),
			want: false,
		},
		{
			name: "Daily - run yesterday",
			job:  Job{ScheduleType: ScheduleDaily, DailyAt: "03:00", lastRun: base.Add(-24 * time.Hour)},
			now:  base.Add(2 * time.Minute),
			want: true,
		},
		{
			name: "Daily - invalid time",
			job:  Job{ScheduleType: ScheduleDaily, DailyAt: "3h"},
			now:  base,
			want: false,
		},
		{
			name: "Unknown schedule type",
			job:  Job{ScheduleType: "weekly"},
			now:  base,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.ShouldRun(tt.now); got != tt.want {
				t.Errorf("ShouldRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTickSkipsRunningJob(t *testing.T) {
	release := make(chan struct{})
	var runs int32
	job := &Job{
		Name:         "reindex",
		ScheduleType: ScheduleInterval,
		Interval:     time.Minute,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			<-release
			return nil
		},
	}

	now := time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)
	s := New(time.Minute, discardLogger(), job)
	s.now = func() time.Time { return now }

	s.tick(context.Background())
	now = now.Add(2 * time.Minute)
	s.tick(context.Background())

	close(release)
	s.wg.Wait()

	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("Expected one run while the job was busy, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	s.tick(context.Background())
	s.wg.Wait()
	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Errorf("Expected a second run once the job finished, got %d", got)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	var runs int32
	job := &Job{
		Name:         "failing",
		ScheduleType: ScheduleInterval,
		Interval:     time.Hour,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return errors.New("index unavailable")
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := New(10*time.Millisecond, discardLogger(), job)

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected scheduler to stop after cancellation")
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("Expected the job to run once within its interval, got %d", got)
	}
}
