package maintenance

import (
	"context"
	"fmt"
	"time"

	"documind/internal/logger"
	"documind/utils"
)

// Sweeper drops expired cache entries; *cache.MemoryStore implements it.
type Sweeper interface {
	Sweep() int
}

// StaleFailer fails tasks left pending or running since before a cutoff;
// database.TaskStore implements it.
type StaleFailer interface {
	FailStale(ctx context.Context, before time.Time, reason string) (int64, error)
}

// SweepCacheJob removes expired in-process cache entries.
func SweepCacheJob(store Sweeper) func(ctx context.Context) error {
	return func(context.Context) error {
		if n := store.Sweep(); n > 0 {
			logger.Debug("Swept expired cache entries", "count", n)
		}
		return nil
	}
}

// ReapStaleTasksJob fails tasks not updated within maxAge. Tasks stop
// updating when their process dies mid-run.
func ReapStaleTasksJob(tasks StaleFailer, maxAge time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := utils.WithLongTimeout(ctx)
		defer cancel()

		cutoff := time.Now().UTC().Add(-maxAge)
		n, err := tasks.FailStale(ctx, cutoff, fmt.Sprintf("abandoned: no progress for %s", maxAge))
		if err != nil {
			return fmt.Errorf("reap stale tasks: %w", err)
		}
		if n > 0 {
			logger.Warn("Failed abandoned tasks", "count", n, "cutoff", cutoff)
		}
		return nil
	}
}

// Register schedules the standard jobs. A nil sweeper skips cache sweeping.
func Register(s *Scheduler, sweeper Sweeper, tasks StaleFailer, taskTimeout time.Duration) error {
	if sweeper != nil {
		if err := s.ScheduleInterval("cache-sweep", time.Minute, SweepCacheJob(sweeper)); err != nil {
			return err
		}
	}
	return s.ScheduleInterval("stale-task-reaper", 5*time.Minute, ReapStaleTasksJob(tasks, 2*taskTimeout))
}
