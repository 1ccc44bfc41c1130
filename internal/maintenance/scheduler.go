// Package maintenance runs periodic housekeeping: sweeping expired entries
// from the in-process cache and failing tasks whose runner disappeared.
package maintenance

import (
	"context"
	"time"

	"documind/internal/logger"

	"github.com/go-co-op/gocron"
)

// Scheduler manages the periodic jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.cancel()
}

// ScheduleInterval runs job every interval. Job errors are logged.
func (s *Scheduler) ScheduleInterval(tag string, interval time.Duration, job func(ctx context.Context) error) error {
	_, err := s.scheduler.Every(interval).Tag(tag).Do(func() {
		if err := job(s.ctx); err != nil {
			logger.Error("Scheduled job failed", "job", tag, "error", err)
		}
	})
	return err
}

// Tags lists the scheduled job tags.
func (s *Scheduler) Tags() []string {
	var tags []string
	for _, job := range s.scheduler.Jobs() {
		tags = append(tags, job.Tags()...)
	}
	return tags
}
