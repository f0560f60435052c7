// Package scheduler runs the periodic housekeeping jobs of the service.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/metrics"
)

// TokenRetention is how long expired close tokens are kept for audit.
const TokenRetention = 30 * 24 * time.Hour

// Job is a named unit of work with a cron spec. Run returns the number of
// rows it affected.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int64, error)
}

type DraftPurger interface {
	DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error)
}

type TokenPurger interface {
	PurgeCloseTokens(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJobs returns the draft expiry and close token purge jobs.
func CleanupJobs(drafts DraftPurger, tokens TokenPurger, now func() time.Time) []Job {
	if now == nil {
		now = time.Now
	}
	return []Job{
		{
			Name: "expired_drafts",
			Spec: "@every 1h",
			Run: func(ctx context.Context) (int64, error) {
				return drafts.DeleteExpiredDrafts(ctx, now().UTC())
			},
		},
		{
			Name: "close_tokens",
			Spec: "@daily",
			Run: func(ctx context.Context) (int64, error) {
				return tokens.PurgeCloseTokens(ctx, now().UTC().Add(-TokenRetention))
			},
		},
	}
}

type Scheduler struct {
	cron    *cron.Cron
	jobs    []Job
	timeout time.Duration
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:    jobs,
		timeout: 5 * time.Minute,
	}
}

// Start registers every job and starts the cron loop. Jobs stop picking
// up new runs once ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs {
		j := j
		if _, err := s.cron.AddFunc(j.Spec, func() {
			if ctx.Err() != nil {
				return
			}
			runCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			run(runCtx, j)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", j.Name, err)
		}
		logrus.WithFields(logrus.Fields{"job": j.Name, "spec": j.Spec}).Info("job scheduled")
	}
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce executes every job immediately, in order. Used by the cleanup
// command.
func RunOnce(ctx context.Context, jobs []Job) error {
	var errs []error
	for _, j := range jobs {
		if _, err := run(ctx, j); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", j.Name, err))
		}
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, j Job) (int64, error) {
	start := time.Now()
	n, err := j.Run(ctx)
	metrics.RecordJob(j.Name, time.Since(start), err == nil)
	log := logrus.WithFields(logrus.Fields{"job": j.Name, "affected": n, "duration": time.Since(start).Round(time.Millisecond).String()})
	if err != nil {
		log.WithError(err).Error("job failed")
		return n, err
	}
	log.Info("job done")
	return n, nil
}
