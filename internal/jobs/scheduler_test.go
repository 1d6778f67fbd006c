package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/mind-engage/classquiz/internal/attempt"
)

type fakeSweeper struct {
	calls int
	ttl   time.Duration
}

func (f *fakeSweeper) Sweep(_ context.Context, idleTTL time.Duration) attempt.SweepReport {
	f.calls++
	f.ttl = idleTTL
	return attempt.SweepReport{Discarded: 1}
}

func TestSessionSweepRun(t *testing.T) {
	f := &fakeSweeper{}
	SessionSweep{Sweeper: f, IdleTTL: time.Hour}.Run()
	if f.calls != 1 || f.ttl != time.Hour {
		t.Fatalf("calls=%d ttl=%s", f.calls, f.ttl)
	}
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	if _, err := NewScheduler("not a schedule", SessionSweep{Sweeper: &fakeSweeper{}}); err == nil {
		t.Fatalf("expected error")
	}
	c, err := NewScheduler("", SessionSweep{Sweeper: &fakeSweeper{}})
	if err != nil {
		t.Fatalf("default schedule: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("entries = %d", len(c.Entries()))
	}
}
