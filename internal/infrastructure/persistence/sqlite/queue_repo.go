package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/outbox"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX QUEUE REPOSITORY
// Implements outbox.Queue. The enqueue commit is the durability point: once
// Enqueue returns nil the mutation survives any crash, so the kiosk may show
// its "recorded" message.
// ══════════════════════════════════════════════════════════════════════════════

// QueueRepository is the sqlite-backed offline write queue.
type QueueRepository struct {
	db *DB
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

var _ outbox.Queue = (*QueueRepository)(nil)

// Enqueue durably stores a mutation before returning.
func (r *QueueRepository) Enqueue(ctx context.Context, collection outbox.Collection, memberCode string, payload []byte) (*outbox.PendingMutation, error) {
	if !collection.IsValid() {
		return nil, fmt.Errorf("outbox: unknown collection %q", collection)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("outbox: payload is not valid JSON")
	}

	m := outbox.PendingMutation{
		ID:         uuid.NewString(),
		Collection: collection,
		MemberCode: memberCode,
		Payload:    json.RawMessage(payload),
		EnqueuedAt: time.Now().UTC(),
	}

	// seq is a monotonic insertion counter. enqueued_at alone cannot order
	// entries created inside the same microsecond.
	const q = `
		INSERT INTO pending_mutations (id, collection, member_code, payload, enqueued_at, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pending_mutations))`

	_, err := r.db.db.ExecContext(ctx, q,
		m.ID, string(m.Collection), m.MemberCode, string(payload), m.EnqueuedAt.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("outbox: enqueue: %w", err)
	}

	return &m, nil
}

// ListPending returns all entries in insertion order.
func (r *QueueRepository) ListPending(ctx context.Context) ([]outbox.PendingMutation, error) {
	const q = `
		SELECT id, collection, member_code, payload, enqueued_at
		FROM pending_mutations
		ORDER BY seq`

	rows, err := r.db.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("outbox: list: %w", err)
	}
	defer rows.Close()

	var out []outbox.PendingMutation
	for rows.Next() {
		var m outbox.PendingMutation
		var collection, payload string
		var enqueuedAt int64
		if err := rows.Scan(&m.ID, &collection, &m.MemberCode, &payload, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		m.Collection = outbox.Collection(collection)
		m.Payload = json.RawMessage(payload)
		m.EnqueuedAt = time.UnixMicro(enqueuedAt).UTC()
		out = append(out, m)
	}

	return out, rows.Err()
}

// Remove deletes an entry by ID. Removing a missing entry is not an error.
func (r *QueueRepository) Remove(ctx context.Context, id string) error {
	_, err := r.db.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("outbox: remove %s: %w", id, err)
	}
	return nil
}

// CountPending returns the queue depth.
func (r *QueueRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_mutations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("outbox: count: %w", err)
	}
	return n, nil
}

// PendingSince reports the newest queued check-in timestamp for the member
// code, decoded from the stored payloads.
func (r *QueueRepository) PendingSince(ctx context.Context, memberCode string) (time.Time, bool, error) {
	const q = `
		SELECT payload
		FROM pending_mutations
		WHERE member_code = ? AND collection = ?
		ORDER BY seq DESC`

	rows, err := r.db.db.QueryContext(ctx, q, memberCode, string(outbox.CollectionCheckIns))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("outbox: pending since: %w", err)
	}
	defer rows.Close()

	var latest time.Time
	var found bool
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return time.Time{}, false, fmt.Errorf("outbox: scan payload: %w", err)
		}
		var p outbox.CheckInPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			continue
		}
		if p.Timestamp.After(latest) {
			latest, found = p.Timestamp, true
		}
	}
	if err := rows.Err(); err != nil && err != sql.ErrNoRows {
		return time.Time{}, false, err
	}

	return latest, found, nil
}
