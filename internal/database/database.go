package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"scan-indexer/internal/logging"
	"scan-indexer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database stores index run history.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the history database at dbPath.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("History database path: %s", dbPath)

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// busy_timeout keeps concurrent run recordings from failing on lock
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{db: db, dbPath: dbPath}
	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_runs (
		id TEXT PRIMARY KEY,
		server TEXT NOT NULL,
		role TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		entries INTEGER NOT NULL DEFAULT 0,
		leaves INTEGER NOT NULL DEFAULT 0,
		new_entries INTEGER NOT NULL DEFAULT 0,
		new_leaves INTEGER NOT NULL DEFAULT 0,
		listing_failures INTEGER NOT NULL DEFAULT 0,
		metadata_failures INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_index_runs_server_started ON index_runs(server, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_index_runs_started ON index_runs(started_at DESC);
	`

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.db.Stats().OpenConnections))
}
