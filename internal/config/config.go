package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rainfall-archive/internal/models"
)

// Archive backends
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Rainfall RainfallConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// RainfallConfig holds dataset and archive settings
type RainfallConfig struct {
	// DataDir is where the server resolves dataset names
	DataDir string
	// ArchiveBackend is one of file, sqlite or postgres
	ArchiveBackend string
	// ArchivePath is the CSV file (file backend) or database file (sqlite backend)
	ArchivePath string
	// LayoutFile is an optional YAML column layout; empty means the default layout
	LayoutFile string
	// SnapshotInterval is how often changed datasets are written to the archive; 0 disables
	SnapshotInterval time.Duration
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment variables win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var (
		cfg  Config
		errs []error
	)

	cfg.Server.Host = getenvDefault("SERVER_HOST", "0.0.0.0")
	cfg.Server.Port = getenvInt("SERVER_PORT", 8080, &errs)
	cfg.Server.ReadTimeout = getenvDuration("SERVER_READ_TIMEOUT", 15*time.Second, &errs)
	cfg.Server.WriteTimeout = getenvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second, &errs)
	cfg.Server.IdleTimeout = getenvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second, &errs)

	cfg.Database.Host = getenvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getenvInt("DB_PORT", 5432, &errs)
	cfg.Database.User = getenvDefault("DB_USER", "rainfall")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Database = getenvDefault("DB_NAME", "rainfall")
	cfg.Database.SSLMode = getenvDefault("DB_SSLMODE", "disable")
	cfg.Database.MaxOpenConns = getenvInt("DB_MAX_OPEN_CONNS", 10, &errs)
	cfg.Database.MaxIdleConns = getenvInt("DB_MAX_IDLE_CONNS", 5, &errs)
	cfg.Database.ConnMaxLifetime = getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute, &errs)
	cfg.Database.ConnMaxIdleTime = getenvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute, &errs)

	cfg.Logging.Level = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))

	cfg.Rainfall.DataDir = getenvDefault("RAINFALL_DATA_DIR", "cities")
	cfg.Rainfall.ArchiveBackend = strings.ToLower(getenvDefault("RAINFALL_ARCHIVE_BACKEND", BackendFile))
	cfg.Rainfall.ArchivePath = getenvDefault("RAINFALL_ARCHIVE_PATH", "archive.csv")
	cfg.Rainfall.LayoutFile = os.Getenv("RAINFALL_LAYOUT_FILE")
	cfg.Rainfall.SnapshotInterval = getenvDuration("ARCHIVE_SNAPSHOT_INTERVAL", 0, &errs)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Logging.Level))
	}

	switch c.Rainfall.ArchiveBackend {
	case BackendFile, BackendSQLite:
		if c.Rainfall.ArchivePath == "" {
			errs = append(errs, errors.New("RAINFALL_ARCHIVE_PATH is required for the file and sqlite backends"))
		}
	case BackendPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			errs = append(errs, errors.New("DB_HOST and DB_NAME are required for the postgres backend"))
		}
		if c.Database.MaxOpenConns < 1 {
			errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns))
		}
	default:
		errs = append(errs, fmt.Errorf("RAINFALL_ARCHIVE_BACKEND must be file, sqlite or postgres, got %q", c.Rainfall.ArchiveBackend))
	}

	if c.Rainfall.SnapshotInterval < 0 {
		errs = append(errs, fmt.Errorf("ARCHIVE_SNAPSHOT_INTERVAL must not be negative, got %s", c.Rainfall.SnapshotInterval))
	}

	return errors.Join(errs...)
}

// Layout returns the configured column layout, or the default one
func (c *Config) Layout() (models.Layout, error) {
	if c.Rainfall.LayoutFile == "" {
		return models.DefaultLayout(), nil
	}
	return LoadLayout(c.Rainfall.LayoutFile)
}

// LoadLayout reads a YAML column layout such as
//
//	year_column: 0
//	metadata_columns: [13, 14, 15, 16]
func LoadLayout(path string) (models.Layout, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Layout{}, &models.NotFoundError{Resource: "layout file", ID: path}
	}
	if err != nil {
		return models.Layout{}, &models.IOError{Op: "read", Path: path, Err: err}
	}

	var layout models.Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return models.Layout{}, &models.ValidationError{
			Field:   "layout",
			Value:   path,
			Message: fmt.Sprintf("invalid layout file %s: %v", path, err),
		}
	}

	if layout.YearColumn < 0 {
		return models.Layout{}, &models.ValidationError{
			Field:   "year_column",
			Value:   strconv.Itoa(layout.YearColumn),
			Message: fmt.Sprintf("year_column must not be negative, got %d", layout.YearColumn),
		}
	}
	for _, c := range layout.MetadataColumns {
		if c < 0 {
			return models.Layout{}, &models.ValidationError{
				Field:   "metadata_columns",
				Value:   strconv.Itoa(c),
				Message: fmt.Sprintf("metadata column must not be negative, got %d", c),
			}
		}
	}

	return layout, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}
