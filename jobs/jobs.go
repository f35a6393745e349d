// Package jobs runs the periodic sync audits: it reports responses stuck in
// Pending and forgets old upstream deletions.
package jobs

import (
	"context"
	"time"

	"github.com/mbolis/airform-sync/config"
	"github.com/mbolis/airform-sync/log"
	"github.com/mbolis/airform-sync/model"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

type Store interface {
	ListPending(ctx context.Context, olderThan time.Time) ([]model.Response, error)
	PruneTombstones(ctx context.Context, before time.Time) (int64, error)
}

type Scheduler struct {
	cron         *cron.Cron
	store        Store
	pendingAfter time.Duration
	tombstoneTTL time.Duration
	now          func() time.Time
}

func New(store Store, cfg config.Config) (*Scheduler, error) {
	logger := cron.PrintfLogger(log.Logger)
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(
				cron.SkipIfStillRunning(logger),
				cron.Recover(logger),
			),
		),
		store:        store,
		pendingAfter: cfg.PendingAfter,
		tombstoneTTL: cfg.TombstoneTTL,
		now:          time.Now,
	}

	_, err := s.cron.AddFunc(cfg.AuditSchedule, func() {
		s.ReportPending(context.Background())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "schedule %q", cfg.AuditSchedule)
	}
	_, err = s.cron.AddFunc(cfg.AuditSchedule, func() {
		s.PruneTombstones(context.Background())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "schedule %q", cfg.AuditSchedule)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// ReportPending logs the responses that have been Pending for longer than
// the configured age. These were captured but their sync outcome was never
// recorded, usually because the process stopped mid-submission.
func (s *Scheduler) ReportPending(ctx context.Context) ([]model.Response, error) {
	stuck, err := s.store.ListPending(ctx, s.now().Add(-s.pendingAfter))
	if err != nil {
		log.Errorf("jobs: list pending: %v", err)
		return nil, err
	}

	for _, r := range stuck {
		log.WithFields(log.Fields{
			"response": r.ID,
			"form":     r.FormID,
			"captured": r.CapturedAt.Format(time.RFC3339),
		}).Warn("response stuck in pending")
	}
	if len(stuck) > 0 {
		log.Warnf("jobs: %d responses stuck in pending", len(stuck))
	}
	return stuck, nil
}

// PruneTombstones forgets the upstream deletions older than the configured
// TTL.
func (s *Scheduler) PruneTombstones(ctx context.Context) (int64, error) {
	n, err := s.store.PruneTombstones(ctx, s.now().Add(-s.tombstoneTTL))
	if err != nil {
		log.Errorf("jobs: prune tombstones: %v", err)
		return 0, err
	}
	if n > 0 {
		log.Debugf("jobs: pruned %d tombstones", n)
	}
	return n, nil
}
