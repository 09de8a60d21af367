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
	dirMode  = 0750
	fileMode = 0600

	// openCheckTimeout bounds the ping that validates a fresh connection.
	openCheckTimeout = 5 * time.Second
)

// Config mirrors the database section of config.yaml.
type Config struct {
	// Path to the SQLite file. Missing parent directories are created.
	Path string

	// WALMode turns on write-ahead logging so history queries can read
	// while a run record is being sealed.
	WALMode bool

	// BusyTimeout in seconds before a lock wait gives up.
	BusyTimeout int
}

// DB holds the run-history store. It embeds *sql.DB, so repositories use
// the standard query API directly.
type DB struct {
	*sql.DB
	path string
}

// dsn renders the go-sqlite3 connection string with the pragmas the
// history store needs. Foreign keys stay on unconditionally.
func dsn(cfg Config) string {
	s := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*1000) //nolint:mnd // seconds to ms
	if cfg.WALMode {
		s += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return s
}

// Open prepares the SQLite file at cfg.Path and verifies it is usable.
// The file and any missing directories are created on first run. The
// connection pool is pinned to a single connection because SQLite allows
// one writer at a time; a second connection would only turn lock waits
// into SQLITE_BUSY errors.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute) //nolint:mnd

	db := &DB{DB: sqlDB, path: cfg.Path}

	ctx, cancel := context.WithTimeout(context.Background(), openCheckTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// Run history is not sensitive but there is no reason to share it.
	// The file may not exist until the first write, so ignore the error.
	_ = os.Chmod(cfg.Path, fileMode)

	return db, nil
}

// Close releases the underlying connection. Safe on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path reports where the SQLite file lives.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query to prove the store is responsive.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// BeginTx opens a transaction, wrapping the error with context.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
