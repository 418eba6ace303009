package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"rainfall-archive/internal/records"
	"rainfall-archive/internal/services"
	"rainfall-archive/pkg/logging"
)

// Scheduler periodically writes changed datasets to the archive. Each
// changed dataset replaces its years in the archive, so repeated snapshots
// never accumulate duplicates.
type Scheduler struct {
	scheduler *gocron.Scheduler
	datasets  *services.DatasetService
	archive   *services.ArchiveService
	interval  time.Duration
	timeout   time.Duration
	logger    *logging.StructuredLogger
}

// New creates a new Scheduler
func New(datasets *services.DatasetService, archive *services.ArchiveService, interval time.Duration, logger *logging.StructuredLogger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		datasets:  datasets,
		archive:   archive,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// Start schedules the snapshot job and starts the underlying scheduler.
// A non-positive interval disables snapshots.
func (s *Scheduler) Start() error {
	ctx := context.Background()
	if s.interval <= 0 {
		s.logger.Info(ctx, "[SNAPSHOT_DISABLED] Archive snapshots disabled", logging.Fields{})
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(jobCtx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info(ctx, "[SNAPSHOT_SCHEDULED] Archive snapshot job scheduled", logging.Fields{
		"interval": s.interval.String(),
		"archive":  s.archive.Location(),
	})
	return nil
}

// RunOnce snapshots every changed dataset and returns how many were written.
// A failed dataset stays marked as changed and is retried on the next run.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	startTime := time.Now()
	written, failed := 0, 0

	for _, ds := range s.datasets.List() {
		ran, err := ds.Snapshot(func(store *records.Store) error {
			_, err := s.archive.Replace(ctx, store)
			return err
		})
		if err != nil {
			failed++
			s.logger.Error(ctx, "[SNAPSHOT_ERROR] Dataset snapshot failed", logging.Fields{
				"dataset_id": ds.ID,
				"name":       ds.Name,
			}, err)
			continue
		}
		if ran {
			written++
		}
	}

	s.logger.Info(ctx, "[SNAPSHOT_COMPLETE] Archive snapshot run completed", logging.Fields{
		"written":     written,
		"failed":      failed,
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
	return written
}

// Stop stops the scheduler and cancels any future jobs
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
