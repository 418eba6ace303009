package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"rainfall-archive/internal/models"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

// ArchiveHeader is the first line of every archive file
var ArchiveHeader = []string{"year", "month", "rain"}

// archiveLocks holds one mutex per archive path for the whole process.
// DeleteYears rewrites the file, which must not interleave with appends.
var archiveLocks = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

func lockFor(path string) *sync.Mutex {
	archiveLocks.mu.Lock()
	defer archiveLocks.mu.Unlock()

	l, ok := archiveLocks.locks[path]
	if !ok {
		l = &sync.Mutex{}
		archiveLocks.locks[path] = l
	}
	return l
}

// FileArchive is a long-format CSV archive: header year,month,rain, one row
// per observation, '\n' line endings, absent rainfall as an empty cell.
type FileArchive struct {
	path    string
	lock    *sync.Mutex
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewFileArchive creates a file archive; the file itself is created on first Insert
func NewFileArchive(path string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *FileArchive {
	clean := filepath.Clean(path)
	if abs, err := filepath.Abs(clean); err == nil {
		clean = abs
	}

	return &FileArchive{
		path:    clean,
		lock:    lockFor(clean),
		logger:  logger,
		metrics: metricsCollector,
	}
}

var _ ArchiveRepository = (*FileArchive)(nil)

// Location returns the absolute archive path
func (a *FileArchive) Location() string {
	return a.path
}

// Insert appends the observations, writing the header only into an empty file
func (a *FileArchive) Insert(ctx context.Context, observations []models.Observation) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	timer := a.metrics.NewTimer(a.metrics.ArchiveDuration.WithLabelValues("insert"))
	defer timer.ObserveDuration()

	a.lock.Lock()
	defer a.lock.Unlock()

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, &models.IOError{Op: "open", Path: a.path, Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, &models.IOError{Op: "stat", Path: a.path, Err: err}
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(ArchiveHeader); err != nil {
			return 0, &models.IOError{Op: "write", Path: a.path, Err: err}
		}
	}
	for _, obs := range observations {
		if err := w.Write(encodeArchiveRow(obs)); err != nil {
			return 0, &models.IOError{Op: "write", Path: a.path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, &models.IOError{Op: "write", Path: a.path, Err: err}
	}

	a.metrics.ArchiveRowsWritten.Add(float64(len(observations)))
	a.logger.Debug(ctx, "[ARCHIVE_APPEND] Rows appended", logging.Fields{
		"path":         a.path,
		"rows":         len(observations),
		"wrote_header": info.Size() == 0,
	})

	return len(observations), nil
}

// DeleteYears rewrites the archive without any row whose year is in years.
// The rewrite goes through a temp file in the same directory and a rename.
func (a *FileArchive) DeleteYears(ctx context.Context, years []int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	timer := a.metrics.NewTimer(a.metrics.ArchiveDuration.WithLabelValues("delete"))
	defer timer.ObserveDuration()

	a.lock.Lock()
	defer a.lock.Unlock()

	rows, err := a.readAll()
	if err != nil {
		return 0, err
	}

	drop := yearSet(years)
	kept := make([]models.Observation, 0, len(rows))
	for _, row := range rows {
		if _, ok := drop[row.Year]; ok {
			continue
		}
		kept = append(kept, row)
	}
	removed := len(rows) - len(kept)

	if err := a.rewrite(kept); err != nil {
		return 0, err
	}

	a.metrics.ArchiveRowsPurged.Add(float64(removed))
	a.logger.Debug(ctx, "[ARCHIVE_PURGE] Rows removed by year", logging.Fields{
		"path":    a.path,
		"years":   years,
		"removed": removed,
		"kept":    len(kept),
	})

	return removed, nil
}

// Load returns every archived row in file order
func (a *FileArchive) Load(ctx context.Context) ([]models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	return a.readAll()
}

func (a *FileArchive) readAll() ([]models.Observation, error) {
	file, err := os.Open(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &models.NotFoundError{Resource: "archive", ID: a.path}
	}
	if err != nil {
		return nil, &models.IOError{Op: "open", Path: a.path, Err: err}
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(ArchiveHeader)

	rows := make([]models.Observation, 0)
	for record := 1; ; record++ {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.IOError{Op: "read", Path: a.path, Err: err}
		}
		if record == 1 && isHeader(fields) {
			continue
		}

		obs, err := decodeArchiveRow(fields)
		if err != nil {
			return nil, &models.IOError{Op: "parse", Path: fmt.Sprintf("%s:%d", a.path, record), Err: err}
		}
		rows = append(rows, obs)
	}

	return rows, nil
}

func (a *FileArchive) rewrite(rows []models.Observation) error {
	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".archive-*.tmp")
	if err != nil {
		return &models.IOError{Op: "create", Path: a.path, Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(ArchiveHeader); err != nil {
		cleanup()
		return &models.IOError{Op: "write", Path: tmpPath, Err: err}
	}
	for _, row := range rows {
		if err := w.Write(encodeArchiveRow(row)); err != nil {
			cleanup()
			return &models.IOError{Op: "write", Path: tmpPath, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		cleanup()
		return &models.IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &models.IOError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &models.IOError{Op: "close", Path: tmpPath, Err: err}
	}
	_ = os.Chmod(tmpPath, 0o644)

	if err := os.Rename(tmpPath, a.path); err != nil {
		_ = os.Remove(tmpPath)
		return &models.IOError{Op: "rename", Path: a.path, Err: err}
	}
	return nil
}

func isHeader(record []string) bool {
	for i, name := range ArchiveHeader {
		if record[i] != name {
			return false
		}
	}
	return true
}

func encodeArchiveRow(obs models.Observation) []string {
	rain := ""
	if obs.Rainfall != nil {
		rain = strconv.FormatFloat(*obs.Rainfall, 'f', -1, 64)
	}
	return []string{strconv.Itoa(obs.Year), strconv.Itoa(obs.Month), rain}
}

func decodeArchiveRow(record []string) (models.Observation, error) {
	year, err := strconv.Atoi(record[0])
	if err != nil {
		return models.Observation{}, fmt.Errorf("invalid year %q: %w", record[0], err)
	}
	month, err := strconv.Atoi(record[1])
	if err != nil {
		return models.Observation{}, fmt.Errorf("invalid month %q: %w", record[1], err)
	}

	obs := models.Observation{Year: year, Month: month}
	if record[2] != "" {
		rain, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return models.Observation{}, fmt.Errorf("invalid rain %q: %w", record[2], err)
		}
		obs.Rainfall = models.Float64(rain)
	}
	return obs, nil
}
