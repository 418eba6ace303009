package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"rainfall-archive/internal/models"
	"rainfall-archive/pkg/database"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

const archiveTable = "rainfall_archive"

var schemaStatements = map[string][]string{
	database.DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS rainfall_archive (
			id          BIGSERIAL PRIMARY KEY,
			year        INTEGER NOT NULL,
			month       INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
			rain        DOUBLE PRECISION,
			archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rainfall_archive_year ON rainfall_archive (year)`,
	},
	database.DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS rainfall_archive (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			year        INTEGER NOT NULL,
			month       INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
			rain        REAL,
			archived_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rainfall_archive_year ON rainfall_archive (year)`,
	},
}

// SQLArchive stores the archive in the rainfall_archive table. Rows are
// ordered by their autoincrement id, which preserves append order.
type SQLArchive struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSQLArchive creates a SQL-backed archive repository
func NewSQLArchive(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SQLArchive {
	return &SQLArchive{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

var _ ArchiveRepository = (*SQLArchive)(nil)

// Location returns driver and table name
func (a *SQLArchive) Location() string {
	return a.db.Driver() + ":" + archiveTable
}

// EnsureSchema creates the archive table and its year index if missing
func (a *SQLArchive) EnsureSchema(ctx context.Context) error {
	statements, ok := schemaStatements[a.db.Driver()]
	if !ok {
		return fmt.Errorf("no archive schema for driver %q", a.db.Driver())
	}

	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, "ensure_schema", stmt); err != nil {
			return &models.IOError{Op: "ensure schema", Path: a.Location(), Err: err}
		}
	}
	return nil
}

// Insert appends all observations in a single transaction
func (a *SQLArchive) Insert(ctx context.Context, observations []models.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		a.metrics.ArchiveDuration.WithLabelValues("insert").Observe(duration.Seconds())
		a.logger.Debug(ctx, "[REPO_BATCH_INSERT] Archive batch insert completed", logging.Fields{
			"count":       len(observations),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := a.db.BeginTx(ctx)
	if err != nil {
		return 0, &models.IOError{Op: "begin", Path: a.Location(), Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, a.db.Rebind(
		`INSERT INTO rainfall_archive (year, month, rain) VALUES (?, ?, ?)`,
	))
	if err != nil {
		return 0, &models.IOError{Op: "prepare", Path: a.Location(), Err: err}
	}
	defer stmt.Close()

	for _, obs := range observations {
		if _, err := stmt.ExecContext(ctx, obs.Year, obs.Month, obs.Rainfall); err != nil {
			a.metrics.RecordDBError("insert_error")
			return 0, &models.IOError{Op: "insert", Path: a.Location(), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &models.IOError{Op: "commit", Path: a.Location(), Err: err}
	}

	a.metrics.ArchiveRowsWritten.Add(float64(len(observations)))
	return len(observations), nil
}

// DeleteYears removes every row whose year is in years
func (a *SQLArchive) DeleteYears(ctx context.Context, years []int) (int, error) {
	if len(years) == 0 {
		return 0, nil
	}

	timer := a.metrics.NewTimer(a.metrics.ArchiveDuration.WithLabelValues("delete"))
	defer timer.ObserveDuration()

	query, args, err := sqlx.In(`DELETE FROM rainfall_archive WHERE year IN (?)`, years)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}

	result, err := a.db.ExecContext(ctx, "delete_years", a.db.Rebind(query), args...)
	if err != nil {
		return 0, &models.IOError{Op: "delete", Path: a.Location(), Err: err}
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, &models.IOError{Op: "delete", Path: a.Location(), Err: err}
	}

	a.metrics.ArchiveRowsPurged.Add(float64(removed))
	return int(removed), nil
}

// Load returns all rows in insertion order
func (a *SQLArchive) Load(ctx context.Context) ([]models.Observation, error) {
	rows := make([]models.Observation, 0)
	err := a.db.SelectContext(ctx, "load_archive", &rows,
		`SELECT year, month, rain FROM rainfall_archive ORDER BY id`)
	if err != nil {
		return nil, &models.IOError{Op: "load", Path: a.Location(), Err: err}
	}
	return rows, nil
}
