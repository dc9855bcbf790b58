package services

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/Wikid82/warden/internal/logger"
)

// RetentionService purges old violation records on a cron schedule.
type RetentionService struct {
	Cron       *cron.Cron
	violations *ViolationService
	days       int
}

// NewRetentionService schedules a purge of records older than days. The
// scheduler is not started until Start is called.
func NewRetentionService(violations *ViolationService, schedule string, days int) (*RetentionService, error) {
	s := &RetentionService{
		Cron:       cron.New(),
		violations: violations,
		days:       days,
	}
	if _, err := s.Cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *RetentionService) Start() {
	s.Cron.Start()
}

// Stop stops the scheduler and waits for a running purge to finish.
func (s *RetentionService) Stop() {
	<-s.Cron.Stop().Done()
}

// RunOnce purges immediately and returns the number of deleted records.
func (s *RetentionService) RunOnce(ctx context.Context) (int64, error) {
	return s.violations.PurgeOlderThan(ctx, s.days)
}

func (s *RetentionService) run() {
	deleted, err := s.RunOnce(context.Background())
	if err != nil {
		logger.Log().WithError(err).Error("Scheduled violation cleanup failed")
		return
	}
	logger.Log().WithField("deleted", deleted).WithField("days", s.days).Info("Scheduled violation cleanup finished")
}
