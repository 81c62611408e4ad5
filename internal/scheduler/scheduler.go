package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"newsradar/internal/config"
	"newsradar/internal/metrics"
)

const (
	defaultTick    = time.Second
	defaultBackoff = 5 * time.Second
)

type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule cron.Schedule
	run      JobFunc
	next     time.Time
}

type Options struct {
	Location *time.Location
	Tick     time.Duration
	Backoff  time.Duration
	Metrics  *metrics.Metrics
}

// Scheduler is a cooperative loop: every tick it runs each due job to
// completion, earliest first, on the calling goroutine.
type Scheduler struct {
	jobs    []*job
	loc     *time.Location
	tick    time.Duration
	backoff time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	loc := opts.Location
	return &Scheduler{
		loc:     loc,
		tick:    opts.Tick,
		backoff: opts.Backoff,
		metrics: opts.Metrics,
		now:     func() time.Time { return time.Now().In(loc) },
		sleep:   sleepContext,
	}
}

func (s *Scheduler) Add(name string, schedule cron.Schedule, fn JobFunc) {
	j := &job{name: name, schedule: schedule, run: fn}
	j.next = schedule.Next(s.now())
	s.jobs = append(s.jobs, j)
	log.Printf("scheduler job=%s next=%s", name, j.next.Format("Mon Jan 2 15:04:05"))
}

// Every runs fn at a fixed interval from now.
func (s *Scheduler) Every(name string, interval time.Duration, fn JobFunc) {
	s.Add(name, cron.Every(interval), fn)
}

// Daily runs fn every day at clock ("HH:MM") in the scheduler's location.
func (s *Scheduler) Daily(name, clock string, fn JobFunc) error {
	hour, min, err := config.ParseClock(clock)
	if err != nil {
		return fmt.Errorf("invalid daily time %q: %w", clock, err)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(fmt.Sprintf("%d %d * * *", min, hour))
	if err != nil {
		return fmt.Errorf("parse daily schedule %q: %w", clock, err)
	}
	s.Add(fmt.Sprintf("%s@%s", name, clock), sched, fn)
	return nil
}

// Next reports the next due time of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	for _, j := range s.jobs {
		if j.name == name {
			return j.next, true
		}
	}
	return time.Time{}, false
}

// RunDue runs every job whose time has come and returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()
	var due []*job
	for _, j := range s.jobs {
		if !j.next.After(now) {
			due = append(due, j)
		}
	}
	sort.SliceStable(due, func(a, b int) bool { return due[a].next.Before(due[b].next) })

	for _, j := range due {
		if ctx.Err() != nil {
			break
		}
		err := s.runJob(ctx, j)
		j.next = j.schedule.Next(s.now())
		if err != nil {
			s.metrics.JobFailed(j.name)
			log.Printf("scheduler job=%s failed: %v (backing off %s)", j.name, err, s.backoff)
			if sleepErr := s.sleep(ctx, s.backoff); sleepErr != nil {
				break
			}
		}
	}
	return len(due)
}

func (s *Scheduler) runJob(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	start := time.Now()
	err = j.run(ctx)
	log.Printf("scheduler job=%s done in %s", j.name, time.Since(start).Round(time.Millisecond))
	return err
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("scheduler started jobs=%d tick=%s", len(s.jobs), s.tick)
	for {
		s.RunDue(ctx)
		if err := s.sleep(ctx, s.tick); err != nil {
			log.Printf("scheduler stopping: %v", err)
			return nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
