package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/outbox"
	"github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/throttle"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "kiosk.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func checkInBody(t *testing.T, code string, ts time.Time) []byte {
	t.Helper()
	body, err := json.Marshal(outbox.CheckInPayload{
		CheckInID:  "c-" + ts.Format("150405"),
		MemberCode: code,
		Timestamp:  ts,
	})
	require.NoError(t, err)
	return body
}

func TestQueueRepository_EnqueueAndList(t *testing.T) {
	db := openTestDB(t)
	q := NewQueueRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	first, err := q.Enqueue(ctx, outbox.CollectionCheckIns, "ARU-001", checkInBody(t, "ARU-001", base))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, outbox.CollectionCheckIns, "BEK-002", checkInBody(t, "BEK-002", base.Add(time.Minute)))
	require.NoError(t, err)
	third, err := q.Enqueue(ctx, outbox.CollectionMembers, "ARU-001", []byte(`{"member_id":"m-1","member_code":"ARU-001"}`))
	require.NoError(t, err)

	entries, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Insertion order, not member order.
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)
	assert.Equal(t, third.ID, entries[2].ID)
	assert.Equal(t, outbox.CollectionMembers, entries[2].Collection)

	depth, err := q.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestQueueRepository_RejectsBadInput(t *testing.T) {
	db := openTestDB(t)
	q := NewQueueRepository(db)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "laundry", "ARU-001", []byte(`{}`))
	assert.Error(t, err)

	_, err = q.Enqueue(ctx, outbox.CollectionCheckIns, "ARU-001", []byte(`not json`))
	assert.Error(t, err)
}

func TestQueueRepository_Remove(t *testing.T) {
	db := openTestDB(t)
	q := NewQueueRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	m, err := q.Enqueue(ctx, outbox.CollectionCheckIns, "ARU-001", checkInBody(t, "ARU-001", base))
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, m.ID))
	depth, _ := q.CountPending(ctx)
	assert.Zero(t, depth)

	// Idempotent.
	assert.NoError(t, q.Remove(ctx, m.ID))
}

func TestQueueRepository_PendingSince(t *testing.T) {
	db := openTestDB(t)
	q := NewQueueRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	_, _, err := q.PendingSince(ctx, "ARU-001")
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, outbox.CollectionCheckIns, "ARU-001", checkInBody(t, "ARU-001", base))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, outbox.CollectionCheckIns, "ARU-001", checkInBody(t, "ARU-001", base.Add(2*time.Hour)))
	require.NoError(t, err)
	// Member patches must not count as visits.
	_, err = q.Enqueue(ctx, outbox.CollectionMembers, "ARU-001", []byte(`{"member_id":"m-1","member_code":"ARU-001"}`))
	require.NoError(t, err)

	ts, found, err := q.PendingSince(ctx, "ARU-001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, base.Add(2*time.Hour), ts)

	_, found, err = q.PendingSince(ctx, "BEK-002")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQueueRepository_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kiosk.db")
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	db, err := Open(ctx, DefaultConfig(path))
	require.NoError(t, err)
	q := NewQueueRepository(db)
	m, err := q.Enqueue(ctx, outbox.CollectionCheckIns, "ARU-001", checkInBody(t, "ARU-001", base))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Simulates the kiosk restarting after a power cut.
	db2, err := Open(ctx, DefaultConfig(path))
	require.NoError(t, err)
	defer db2.Close()

	entries, err := NewQueueRepository(db2).ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, m.ID, entries[0].ID)

	var p outbox.CheckInPayload
	require.NoError(t, json.Unmarshal(entries[0].Payload, &p))
	assert.Equal(t, base, p.Timestamp.UTC())
}

func TestThrottleRepository_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	r := NewThrottleRepository(db)
	ctx := context.Background()
	start := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	got, err := r.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	until := start.Add(15 * time.Minute)
	require.NoError(t, r.Put(ctx, "k1", throttle.Window{Start: start, Attempts: 3, BlockedUntil: &until}))

	got, err = r.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, start, got.Start)
	assert.Equal(t, 3, got.Attempts)
	require.NotNil(t, got.BlockedUntil)
	assert.Equal(t, until, *got.BlockedUntil)

	// Upsert overwrites.
	require.NoError(t, r.Put(ctx, "k1", throttle.Window{Start: start, Attempts: 1}))
	got, err = r.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.BlockedUntil)

	require.NoError(t, r.Delete(ctx, "k1"))
	got, err = r.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
