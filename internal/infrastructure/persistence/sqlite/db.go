// Package sqlite implements the kiosk's local durable storage. The outbox
// and the attempt throttle live here so both survive power loss, which on a
// dojo front desk is a weekly event, not a hypothetical.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrClosed indicates the database handle is closed.
	ErrClosed = errors.New("sqlite: database is closed")

	// ErrMigrationFailed indicates a schema migration failure.
	ErrMigrationFailed = errors.New("sqlite: migration failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// DATABASE
// ══════════════════════════════════════════════════════════════════════════════

// Config holds local database configuration.
type Config struct {
	// Path is the database file path. ":memory:" for tests.
	Path string

	// BusyTimeout is how long a writer waits on a locked database before
	// failing. The registrar and the sync coordinator write concurrently.
	BusyTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
	}
}

// DB wraps the sqlite handle and owns the schema.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the local database and applies migrations.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// A single connection sidesteps SQLITE_BUSY between the registrar's
	// enqueue and the coordinator's drain.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		// WAL keeps the fsync on enqueue cheap enough for an interactive
		// kiosk while still making the write durable before the ack.
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	d := &DB{db: db}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// migrations are applied in order; user_version tracks progress.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS pending_mutations (
		id          TEXT PRIMARY KEY,
		collection  TEXT NOT NULL CHECK(collection IN ('check_ins', 'members')),
		member_code TEXT NOT NULL,
		payload     TEXT NOT NULL,
		enqueued_at INTEGER NOT NULL,
		seq         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_mutations_seq ON pending_mutations(seq);
	CREATE INDEX IF NOT EXISTS idx_pending_mutations_code ON pending_mutations(member_code);`,

	`CREATE TABLE IF NOT EXISTS throttle_windows (
		key           TEXT PRIMARY KEY,
		window_start  INTEGER NOT NULL,
		attempts      INTEGER NOT NULL,
		blocked_until INTEGER
	);`,
}

func (d *DB) migrate(ctx context.Context) error {
	var version int
	if err := d.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("%w: read user_version: %v", ErrMigrationFailed, err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin v%d: %v", ErrMigrationFailed, i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: apply v%d: %v", ErrMigrationFailed, i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: bump v%d: %v", ErrMigrationFailed, i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit v%d: %v", ErrMigrationFailed, i+1, err)
		}
	}

	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the database is usable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
