// Package schedule runs jobs on cron expressions inside one process.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/deskpatrol/pkg/logger"
)

type Job struct {
	Name string
	Expr string
	Run  func(ctx context.Context) error
}

// Scheduler fires each job at its next cron tick. Runs of one job never
// overlap; ticks missed while a run is active are skipped.
type Scheduler struct {
	jobs []Job
	now  func() time.Time
	// after is swapped in tests.
	after func(d time.Duration) <-chan time.Time
}

func New(jobs ...Job) (*Scheduler, error) {
	g := gronx.New()
	for _, j := range jobs {
		if j.Run == nil {
			return nil, fmt.Errorf("job %s has no run func", j.Name)
		}
		if !g.IsValid(j.Expr) {
			return nil, fmt.Errorf("job %s: invalid cron expression %q", j.Name, j.Expr)
		}
	}
	return &Scheduler{jobs: jobs, now: time.Now, after: time.After}, nil
}

// Next returns the first tick of expr strictly after ref.
func Next(expr string, ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, ref, false)
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	for ctx.Err() == nil {
		next, err := Next(j.Expr, s.now())
		if err != nil {
			logger.ErrorCF("schedule", "Cannot compute next tick", map[string]any{
				"job":   j.Name,
				"error": err.Error(),
			})
			return
		}
		logger.DebugCF("schedule", "Next tick", map[string]any{"job": j.Name, "at": next.Format(time.RFC3339)})

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
		}

		start := s.now()
		if err := j.Run(ctx); err != nil {
			logger.ErrorCF("schedule", "Job failed", map[string]any{
				"job":   j.Name,
				"error": err.Error(),
			})
			continue
		}
		logger.InfoCF("schedule", "Job finished", map[string]any{
			"job":         j.Name,
			"duration_ms": s.now().Sub(start).Milliseconds(),
		})
	}
}
