package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
	msPerSecond     = 1000

	// Run and entry rows are written by one goroutine at a time; a single
	// connection sidesteps SQLite's writer lock entirely.
	maxOpenConns    = 1
	connMaxIdleTime = 30 * time.Minute
)

// Config maps the database section of config.yaml.
type Config struct {
	// Path is the SQLite file; its directory is created on first open.
	Path string

	// WALMode enables write-ahead logging so status and history reads do
	// not block behind run-entry writes.
	WALMode bool

	// BusyTimeout is the lock wait in seconds before SQLite reports
	// "database is locked".
	BusyTimeout int
}

// DB is the fluidcore database handle: a sql.DB plus migration support
// and health checking. Run history, user accounts, and the audit trail
// all live in this one file.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the SQLite database and verifies the
// connection. Foreign keys are always on: run_entries rows must not
// outlive their run.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeout*msPerSecond)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, path: cfg.Path}
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// Owner-only: the file holds password hashes and the audit trail.
	// Chmod may fail before the first write creates the file; the next
	// open fixes it.
	_ = os.Chmod(cfg.Path, filePermissions)

	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck confirms the connection answers queries.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
