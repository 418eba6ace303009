package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

// NewSQLiteDB opens (creating if needed) a SQLite database file
func NewSQLiteDB(path string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*DB, error) {
	db, err := sqlx.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	logger.Info(context.Background(), "[DB_INIT] SQLite database opened", logging.Fields{
		"path": path,
	})

	return newDB(db, DriverSQLite, path, 1, logger, metricsCollector), nil
}
