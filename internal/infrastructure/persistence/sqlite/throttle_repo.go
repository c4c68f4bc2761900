package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/throttle"
)

// ══════════════════════════════════════════════════════════════════════════════
// THROTTLE STORE
// Implements throttle.Store. Windows persist so a block is not escaped by
// power-cycling the kiosk.
// ══════════════════════════════════════════════════════════════════════════════

// ThrottleRepository is the sqlite-backed throttle store.
type ThrottleRepository struct {
	db *DB
}

// NewThrottleRepository creates a new ThrottleRepository.
func NewThrottleRepository(db *DB) *ThrottleRepository {
	return &ThrottleRepository{db: db}
}

var _ throttle.Store = (*ThrottleRepository)(nil)

// Get returns the window for key, or nil when none exists.
func (r *ThrottleRepository) Get(ctx context.Context, key string) (*throttle.Window, error) {
	const q = `SELECT window_start, attempts, blocked_until FROM throttle_windows WHERE key = ?`

	var start int64
	var attempts int
	var blocked sql.NullInt64
	err := r.db.db.QueryRowContext(ctx, q, key).Scan(&start, &attempts, &blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("throttle store: get: %w", err)
	}

	w := &throttle.Window{
		Start:    time.UnixMicro(start).UTC(),
		Attempts: attempts,
	}
	if blocked.Valid {
		until := time.UnixMicro(blocked.Int64).UTC()
		w.BlockedUntil = &until
	}
	return w, nil
}

// Put upserts the window for key.
func (r *ThrottleRepository) Put(ctx context.Context, key string, w throttle.Window) error {
	const q = `
		INSERT INTO throttle_windows (key, window_start, attempts, blocked_until)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			window_start = excluded.window_start,
			attempts = excluded.attempts,
			blocked_until = excluded.blocked_until`

	var blocked sql.NullInt64
	if w.BlockedUntil != nil {
		blocked = sql.NullInt64{Int64: w.BlockedUntil.UnixMicro(), Valid: true}
	}

	_, err := r.db.db.ExecContext(ctx, q, key, w.Start.UnixMicro(), w.Attempts, blocked)
	if err != nil {
		return fmt.Errorf("throttle store: put: %w", err)
	}
	return nil
}

// Delete removes the window for key.
func (r *ThrottleRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.db.ExecContext(ctx, `DELETE FROM throttle_windows WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("throttle store: delete: %w", err)
	}
	return nil
}
