package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestScheduler(start time.Time) (*Scheduler, *fakeClock) {
	clock := &fakeClock{now: start}
	s := New(Options{Location: start.Location()})
	s.now = clock.Now
	s.sleep = clock.Sleep
	return s, clock
}

func TestSchedulerRunsDueJobsInOrder(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	s, clock := newTestScheduler(time.Date(2024, 1, 3, 8, 28, 30, 0, loc))

	var ran []string
	s.Every("pipeline", 2*time.Minute, func(ctx context.Context) error {
		ran = append(ran, "pipeline")
		return nil
	})
	if err := s.Daily("brief", "08:30", func(ctx context.Context) error {
		ran = append(ran, "brief")
		return nil
	}); err != nil {
		t.Fatalf("Daily returned error: %v", err)
	}

	if n := s.RunDue(context.Background()); n != 0 {
		t.Fatalf("nothing should be due yet, ran %d", n)
	}

	clock.now = time.Date(2024, 1, 3, 8, 30, 30, 0, loc)
	if n := s.RunDue(context.Background()); n != 2 {
		t.Fatalf("expected 2 due jobs, ran %d", n)
	}
	if len(ran) != 2 || ran[0] != "brief" || ran[1] != "pipeline" {
		t.Fatalf("jobs should run earliest-due first, got %v", ran)
	}

	next, ok := s.Next("brief@08:30")
	if !ok || !next.Equal(time.Date(2024, 1, 4, 8, 30, 0, 0, loc)) {
		t.Fatalf("brief should be rescheduled for tomorrow, got %s", next)
	}
	next, _ = s.Next("pipeline")
	if !next.Equal(time.Date(2024, 1, 3, 8, 32, 30, 0, loc)) {
		t.Fatalf("pipeline should be rescheduled two minutes out, got %s", next)
	}
}

func TestSchedulerRecoversPanicAndBacksOff(t *testing.T) {
	s, clock := newTestScheduler(time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC))
	calls := 0
	s.Every("pipeline", time.Minute, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			panic("nil map write")
		}
		return errors.New("fetch failed")
	})

	clock.now = clock.now.Add(time.Minute)
	s.RunDue(context.Background())
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != defaultBackoff {
		t.Fatalf("expected a backoff sleep after panic, got %v", clock.sleeps)
	}

	clock.now = clock.now.Add(time.Minute)
	s.RunDue(context.Background())
	if calls != 2 || len(clock.sleeps) != 2 {
		t.Fatalf("errors should also back off, calls=%d sleeps=%v", calls, clock.sleeps)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	s, _ := newTestScheduler(time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	s.sleep = func(ctx context.Context, d time.Duration) error {
		ticks++
		if ticks == 3 {
			cancel()
		}
		return ctx.Err()
	}
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run should stop cleanly, got %v", err)
	}
	if ticks != 3 {
		t.Fatalf("expected 3 ticks before stop, got %d", ticks)
	}
}

func TestDailyRejectsBadClock(t *testing.T) {
	s, _ := newTestScheduler(time.Now())
	if err := s.Daily("brief", "8h30", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for malformed clock")
	}
}
