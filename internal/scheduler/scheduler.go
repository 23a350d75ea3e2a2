package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultRunTimeout bounds a single reconciliation sweep
const DefaultRunTimeout = 2 * time.Minute

// Reconciler settles predictions whose target date has passed
type Reconciler interface {
	ReconcileDue(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs the reconciliation sweep on a cron schedule
type Scheduler struct {
	cron       *cron.Cron
	schedule   string
	reconciler Reconciler
	timeout    time.Duration
	now        func() time.Time
	logger     *logrus.Logger
}

// NewScheduler creates a scheduler. An empty schedule disables it.
func NewScheduler(schedule string, reconciler Reconciler, timeout time.Duration, logger *logrus.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	// standard 5-field parser, descriptors like @hourly included
	c := cron.New()

	return &Scheduler{
		cron:       c,
		schedule:   schedule,
		reconciler: reconciler,
		timeout:    timeout,
		now:        time.Now,
		logger:     logger,
	}
}

// Start registers the sweep and starts the cron loop
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("reconciliation schedule empty, scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.reconcileDue); err != nil {
		return fmt.Errorf("failed to schedule reconciliation %q: %w", s.schedule, err)
	}

	s.logger.WithField("schedule", s.schedule).Info("starting scheduler")
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// RunOnce performs one sweep against the current time
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	count, err := s.reconciler.ReconcileDue(ctx, s.now())
	entry := s.logger.WithFields(logrus.Fields{
		"reconciled": count,
		"duration":   time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Error("reconciliation sweep failed")
		return count, err
	}

	entry.Info("reconciliation sweep finished")
	return count, nil
}

func (s *Scheduler) reconcileDue() {
	_, _ = s.RunOnce(context.Background())
}
