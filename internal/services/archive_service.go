package services

import (
	"context"
	"errors"
	"time"

	"rainfall-archive/internal/models"
	"rainfall-archive/internal/records"
	"rainfall-archive/internal/repository"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

// ArchiveService exports record stores into the archive
type ArchiveService struct {
	repo    repository.ArchiveRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ArchiveResult contains the outcome of an archive operation
type ArchiveResult struct {
	Archive  string        `json:"archive"`
	Years    []int         `json:"years"`
	Removed  int           `json:"removed"`
	Written  int           `json:"written"`
	Duration time.Duration `json:"-"`
}

// NewArchiveService creates a new archive service
func NewArchiveService(repo repository.ArchiveRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ArchiveService {
	return &ArchiveService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Location names the underlying archive
func (s *ArchiveService) Location() string {
	return s.repo.Location()
}

// Insert appends every observation of store to the archive. Repeated calls
// append duplicates.
func (s *ArchiveService) Insert(ctx context.Context, store *records.Store) (*ArchiveResult, error) {
	startTime := time.Now()
	result := &ArchiveResult{Archive: s.repo.Location(), Years: store.Years()}

	written, err := s.repo.Insert(ctx, store.Observations())
	if err != nil {
		return nil, s.fail(ctx, "archive_insert", err)
	}
	result.Written = written
	result.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[ARCHIVE_INSERT] Store appended to archive", logging.Fields{
		"archive":     result.Archive,
		"years":       result.Years,
		"written":     written,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// Delete removes every archive row whose year appears anywhere in store,
// whatever its month
func (s *ArchiveService) Delete(ctx context.Context, store *records.Store) (*ArchiveResult, error) {
	startTime := time.Now()
	result := &ArchiveResult{Archive: s.repo.Location(), Years: store.Years()}

	removed, err := s.repo.DeleteYears(ctx, result.Years)
	if err != nil {
		return nil, s.fail(ctx, "archive_delete", err)
	}
	result.Removed = removed
	result.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[ARCHIVE_DELETE] Archive rows removed by year", logging.Fields{
		"archive":     result.Archive,
		"years":       result.Years,
		"removed":     removed,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// Replace purges the store's years and appends the store again. A missing
// archive on the purge step is not an error; Insert creates it.
func (s *ArchiveService) Replace(ctx context.Context, store *records.Store) (*ArchiveResult, error) {
	startTime := time.Now()
	result := &ArchiveResult{Archive: s.repo.Location(), Years: store.Years()}

	removed, err := s.repo.DeleteYears(ctx, result.Years)
	var notFound *models.NotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, s.fail(ctx, "archive_replace", err)
	}
	result.Removed = removed

	written, err := s.repo.Insert(ctx, store.Observations())
	if err != nil {
		return nil, s.fail(ctx, "archive_replace", err)
	}
	result.Written = written
	result.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[ARCHIVE_REPLACE] Archive years replaced", logging.Fields{
		"archive":     result.Archive,
		"years":       result.Years,
		"removed":     removed,
		"written":     written,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

func (s *ArchiveService) fail(ctx context.Context, operation string, err error) error {
	class := models.Classify(err)
	s.metrics.RecordOperationError(operation, string(class))
	s.logger.Error(ctx, "[ARCHIVE_ERROR] Archive operation failed", logging.Fields{
		"archive":     s.repo.Location(),
		"operation":   operation,
		"error_class": class,
	}, err)
	return err
}
