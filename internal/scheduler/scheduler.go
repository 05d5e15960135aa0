// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/surplus-charger/internal/log"
	"github.com/tamzrod/surplus-charger/internal/status"
)

// ErrPanic wraps a panic recovered from a task cycle.
var ErrPanic = errors.New("scheduler: task panicked")

// Task is one named periodic job.
type Task struct {
	Name     string
	Interval time.Duration

	// Timeout bounds one cycle. Zero means Interval.
	Timeout time.Duration

	Run func(ctx context.Context) error

	// Health receives every cycle outcome. Optional.
	Health *status.Tracker
}

// Scheduler runs tasks concurrently, one goroutine and ticker per task.
// A failing or panicking task never affects the others.
type Scheduler struct {
	tasks []Task
}

// New validates tasks and builds a scheduler.
func New(tasks ...Task) (*Scheduler, error) {
	tasks = append([]Task(nil), tasks...)
	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("scheduler: task %d: name required", i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("scheduler: duplicate task %q", t.Name)
		}
		seen[t.Name] = struct{}{}

		if t.Interval <= 0 {
			return nil, fmt.Errorf("scheduler: task %q: interval must be > 0", t.Name)
		}
		if t.Run == nil {
			return nil, fmt.Errorf("scheduler: task %q: run func required", t.Name)
		}
		if t.Timeout <= 0 {
			tasks[i].Timeout = t.Interval
		}
	}
	return &Scheduler{tasks: tasks}, nil
}

// Run blocks until ctx is cancelled. The first cycle of every task runs
// immediately. An in-flight cycle is allowed to finish after
// cancellation; no new cycle starts.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			loop(log.WithAttrs(gctx, slog.String("task", t.Name)), t)
			return nil
		})
	}
	return g.Wait()
}

func loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		runCycle(ctx, t)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// select picks randomly among ready cases
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// runCycle runs one cycle detached from shutdown, bounded by the task timeout.
func runCycle(parent context.Context, t Task) {
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), t.Timeout)
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, t.Run)

	if t.Health != nil {
		t.Health.Observe(err)
	}
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "task cycle failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err),
		)
		return
	}
	log.Ctx(ctx).DebugContext(ctx, "task cycle done", slog.Duration("elapsed", time.Since(start)))
}

func safeRun(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return run(ctx)
}
