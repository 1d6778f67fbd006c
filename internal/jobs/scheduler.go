package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mind-engage/classquiz/internal/attempt"
)

// Sweeper is implemented by *attempt.Service.
type Sweeper interface {
	Sweep(ctx context.Context, idleTTL time.Duration) attempt.SweepReport
}

// SessionSweep reaps idle attempt sessions and submits those whose quiz closed.
type SessionSweep struct {
	Sweeper Sweeper
	IdleTTL time.Duration
	Timeout time.Duration
}

func (j SessionSweep) Run() {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	rep := j.Sweeper.Sweep(ctx, j.IdleTTL)
	if rep.Discarded+rep.Submitted+rep.Retried+rep.Failed > 0 {
		log.Printf("[scheduler] session sweep: discarded=%d submitted=%d retried=%d failed=%d",
			rep.Discarded, rep.Submitted, rep.Retried, rep.Failed)
	}
}

// NewScheduler registers the session sweep on schedule. The caller starts
// and stops the returned cron.
func NewScheduler(schedule string, sweep SessionSweep) (*cron.Cron, error) {
	if schedule == "" {
		schedule = "@every 1m"
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddJob(schedule, sweep); err != nil {
		return nil, fmt.Errorf("add session sweep %q: %w", schedule, err)
	}
	log.Printf("[scheduler] session sweep scheduled %q (idle ttl %s)", schedule, sweep.IdleTTL)
	return c, nil
}
