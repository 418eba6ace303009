package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"rainfall-archive/internal/models"
	"rainfall-archive/internal/records"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

// IngestionService loads wide-format rainfall CSVs into record stores
type IngestionService struct {
	layout  models.Layout
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// LoadResult contains the loaded store and load statistics
type LoadResult struct {
	Store        *records.Store
	Source       string
	RowsRead     int
	RowsAccepted int
	RowsRejected int
	Duration     time.Duration
	Rejections   []string
}

// NewIngestionService creates a new ingestion service for the given layout
func NewIngestionService(layout models.Layout, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		layout:  layout,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Layout returns the column layout the service parses with
func (s *IngestionService) Layout() models.Layout {
	return s.layout
}

// Load reads the wide-format CSV at path. A missing file is a NotFoundError;
// the load fails as a whole rather than returning a partial store.
func (s *IngestionService) Load(ctx context.Context, path string) (*LoadResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.metrics.RecordOperationError("load", string(models.ClassNotFound))
		return nil, &models.NotFoundError{Resource: "file", ID: path}
	}
	if err != nil {
		s.metrics.RecordOperationError("load", string(models.ClassIO))
		return nil, &models.IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	return s.load(ctx, path, file)
}

// LoadReader reads a wide-format CSV from r
func (s *IngestionService) LoadReader(ctx context.Context, r io.Reader) (*LoadResult, error) {
	return s.load(ctx, "reader", r)
}

func (s *IngestionService) load(ctx context.Context, source string, r io.Reader) (*LoadResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[LOAD_START] Loading rainfall table", logging.Fields{
		"source": source,
		"stage":  "INITIALIZATION",
	})

	result, err := s.parse(ctx, source, r)
	if err != nil {
		s.metrics.RecordOperationError("load", string(models.Classify(err)))
		s.logger.Error(ctx, "[LOAD_ERROR] Rainfall table load failed", logging.Fields{
			"source": source,
			"stage":  "PARSE",
		}, err)
		return nil, err
	}

	result.Duration = time.Since(startTime)
	s.metrics.LoadDuration.Observe(result.Duration.Seconds())
	s.metrics.RecordLoadRows(result.RowsAccepted, result.RowsRejected)

	s.logger.Info(ctx, "[LOAD_COMPLETE] Rainfall table loaded", logging.Fields{
		"source":        source,
		"rows_read":     result.RowsRead,
		"rows_accepted": result.RowsAccepted,
		"rows_rejected": result.RowsRejected,
		"observations":  result.Store.Len(),
		"duration_ms":   result.Duration.Milliseconds(),
		"stage":         "COMPLETE",
	})

	return result, nil
}

func (s *IngestionService) parse(ctx context.Context, source string, r io.Reader) (*LoadResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	result := &LoadResult{
		Source:     source,
		Rejections: make([]string, 0),
	}

	header, err := reader.Read()
	if err == io.EOF {
		result.Store = records.New()
		return result, nil
	}
	if err != nil {
		return nil, &models.IOError{Op: "read", Path: source, Err: err}
	}

	columns, err := s.layout.MonthColumns(len(header))
	if err != nil {
		return nil, err
	}

	observations := make([]models.Observation, 0)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.IOError{Op: "read", Path: source, Err: err}
		}
		result.RowsRead++

		row, err := s.rawRow(line, record, columns)
		if err == nil {
			var rowObservations []models.Observation
			rowObservations, err = row.ToObservations()
			if err == nil {
				observations = append(observations, rowObservations...)
				result.RowsAccepted++
				continue
			}
		}

		result.RowsRejected++
		result.Rejections = append(result.Rejections, err.Error())
		s.logger.Debug(ctx, "[LOAD_ROW_REJECTED] Year row excluded", logging.Fields{
			"source": source,
			"line":   line,
			"reason": err.Error(),
		})
	}

	result.Store = records.FromObservations(observations)
	return result, nil
}

// rawRow picks the year and month cells out of a CSV record
func (s *IngestionService) rawRow(line int, record []string, columns [models.MonthsPerYear]int) (*models.RawYearRow, error) {
	need := s.layout.YearColumn
	for _, c := range columns {
		if c > need {
			need = c
		}
	}
	if len(record) <= need {
		return nil, &models.ValidationError{
			Field:   "row",
			Value:   fmt.Sprint(len(record)),
			Message: fmt.Sprintf("line %d: expected at least %d cells, got %d", line, need+1, len(record)),
		}
	}

	row := &models.RawYearRow{
		Line: line,
		Year: record[s.layout.YearColumn],
	}
	for i, c := range columns {
		row.Months[i] = record[c]
	}
	return row, nil
}
