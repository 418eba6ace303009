package services

import (
	"context"
	"time"

	"rainfall-archive/internal/models"
	"rainfall-archive/internal/repository"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

// StatisticsService computes moving averages over the archived history
type StatisticsService struct {
	repo    repository.ArchiveRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// MovingAveragePoint is one full window, labelled by the observation that ends it
type MovingAveragePoint struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Value float64 `json:"value"`
}

// MovingAverageReport is the result of a moving-average query
type MovingAverageReport struct {
	StartYear    int                  `json:"start_year"`
	EndYear      int                  `json:"end_year"`
	Window       int                  `json:"window"`
	Observations int                  `json:"observations"`
	Points       []MovingAveragePoint `json:"points"`
}

// Values returns the averages in order
func (r *MovingAverageReport) Values() []float64 {
	values := make([]float64, len(r.Points))
	for i, p := range r.Points {
		values[i] = p.Value
	}
	return values
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.ArchiveRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// MovingAverage returns the trailing simple moving average of archived
// rainfall for startYear..endYear inclusive
func (s *StatisticsService) MovingAverage(ctx context.Context, startYear, endYear, window int) ([]float64, error) {
	report, err := s.MovingAverageReport(ctx, startYear, endYear, window)
	if err != nil {
		return nil, err
	}
	return report.Values(), nil
}

// MovingAverageReport filters the archive to the year range, keeps archive
// order, skips absent values and averages every full trailing window.
// Fewer values than window yields an empty report, not an error.
func (s *StatisticsService) MovingAverageReport(ctx context.Context, startYear, endYear, window int) (*MovingAverageReport, error) {
	if err := models.ValidateWindow(window); err != nil {
		s.metrics.RecordOperationError("sma", string(models.ClassValidation))
		return nil, err
	}

	startTime := time.Now()
	defer func() {
		s.metrics.SMADuration.Observe(time.Since(startTime).Seconds())
	}()

	rows, err := s.repo.Load(ctx)
	if err != nil {
		s.metrics.RecordOperationError("sma", string(models.Classify(err)))
		s.logger.Error(ctx, "[SMA_LOAD_ERROR] Failed to load archive", logging.Fields{
			"archive": s.repo.Location(),
		}, err)
		return nil, err
	}

	selected := make([]models.Observation, 0, len(rows))
	for _, row := range rows {
		if row.Year < startYear || row.Year > endYear || row.Rainfall == nil {
			continue
		}
		selected = append(selected, row)
	}

	values := make([]float64, len(selected))
	for i, row := range selected {
		values[i] = *row.Rainfall
	}
	averages := SimpleMovingAverage(values, window)

	report := &MovingAverageReport{
		StartYear:    startYear,
		EndYear:      endYear,
		Window:       window,
		Observations: len(selected),
		Points:       make([]MovingAveragePoint, len(averages)),
	}
	for i, avg := range averages {
		end := selected[i+window-1]
		report.Points[i] = MovingAveragePoint{Year: end.Year, Month: end.Month, Value: avg}
	}

	s.logger.Info(ctx, "[SMA_COMPLETE] Moving average calculated", logging.Fields{
		"archive":      s.repo.Location(),
		"start_year":   startYear,
		"end_year":     endYear,
		"window":       window,
		"archive_rows": len(rows),
		"observations": len(selected),
		"points":       len(averages),
		"duration_ms":  time.Since(startTime).Milliseconds(),
	})

	return report, nil
}

// SimpleMovingAverage returns one mean per full trailing window of values.
// Positions before the first full window produce nothing.
func SimpleMovingAverage(values []float64, window int) []float64 {
	if window < 1 || len(values) < window {
		return []float64{}
	}

	out := make([]float64, 0, len(values)-window+1)
	for end := window; end <= len(values); end++ {
		var sum float64
		for _, v := range values[end-window : end] {
			sum += v
		}
		out = append(out, sum/float64(window))
	}
	return out
}
