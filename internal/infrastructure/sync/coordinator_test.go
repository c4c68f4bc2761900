package sync

import (
	"context"
	"encoding/json"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/outbox"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// replayGateway is an attendance.Gateway fake that can fail specific
// check-in IDs once or forever.
type replayGateway struct {
	mu      stdsync.Mutex
	members map[string]*member.Member

	failIDs  map[string]int // check-in ID -> remaining failures
	offline  bool
	inserted []attendance.CheckIn
	patches  map[string][]attendance.MemberPatch
}

func newReplayGateway(members ...*member.Member) *replayGateway {
	g := &replayGateway{
		members: make(map[string]*member.Member),
		failIDs: make(map[string]int),
		patches: make(map[string][]attendance.MemberPatch),
	}
	for _, m := range members {
		g.members[m.Code.String()] = m
	}
	return g
}

func (g *replayGateway) FindMemberByCode(_ context.Context, code member.MemberCode) (*member.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return nil, shared.Transport("find", errors.New("connection refused"))
	}
	m, ok := g.members[code.String()]
	if !ok {
		return nil, shared.ErrMemberNotFound
	}
	return m.Clone(), nil
}

func (g *replayGateway) ListCheckIns(context.Context, string, time.Time) ([]attendance.CheckIn, error) {
	return nil, nil
}

func (g *replayGateway) InsertCheckIn(_ context.Context, rec attendance.CheckIn) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return shared.Transport("insert", errors.New("connection refused"))
	}
	if n := g.failIDs[rec.ID]; n != 0 {
		if n > 0 {
			g.failIDs[rec.ID] = n - 1
		}
		return shared.Transport("insert", errors.New("connection reset"))
	}
	for _, existing := range g.inserted {
		if existing.ID == rec.ID {
			// Duplicate replay, already applied.
			return nil
		}
	}
	g.inserted = append(g.inserted, rec)
	return nil
}

func (g *replayGateway) UpdateMember(_ context.Context, memberID string, patch attendance.MemberPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return shared.Transport("update", errors.New("connection refused"))
	}
	g.patches[memberID] = append(g.patches[memberID], patch)
	for _, m := range g.members {
		if m.ID == memberID && patch.LastCheckInAt != nil {
			m.RecordCheckIn(*patch.LastCheckInAt)
		}
	}
	return nil
}

func (g *replayGateway) Healthy(context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.offline
}

// memQueue is an in-memory outbox.Queue for coordinator tests.
type memQueue struct {
	mu      stdsync.Mutex
	entries []outbox.PendingMutation
}

func (q *memQueue) Enqueue(_ context.Context, collection outbox.Collection, code string, payload []byte) (*outbox.PendingMutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := outbox.PendingMutation{
		ID:         uuid.NewString(),
		Collection: collection,
		MemberCode: code,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	q.entries = append(q.entries, m)
	return &m, nil
}

func (q *memQueue) ListPending(context.Context) ([]outbox.PendingMutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]outbox.PendingMutation, len(q.entries))
	copy(out, q.entries)
	return out, nil
}

func (q *memQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.entries {
		if m.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) CountPending(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

func (q *memQueue) PendingSince(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func syncMember(t *testing.T, id, code string) *member.Member {
	t.Helper()
	m, err := member.NewMember(member.NewMemberParams{
		ID:          id,
		TenantID:    "dojo-astana",
		Code:        member.MemberCode(code),
		DisplayName: "Member " + id,
		Belt:        member.BeltWhite,
	})
	require.NoError(t, err)
	return m
}

func enqueueCheckIn(t *testing.T, q outbox.Queue, code string, ts time.Time) string {
	t.Helper()
	id := uuid.NewString()
	body, err := json.Marshal(outbox.CheckInPayload{CheckInID: id, MemberCode: code, Timestamp: ts})
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), outbox.CollectionCheckIns, code, body)
	require.NoError(t, err)
	return id
}

func TestCoordinator_DrainsQueue(t *testing.T) {
	gw := newReplayGateway(syncMember(t, "m-1", "ARU-001"), syncMember(t, "m-2", "BEK-002"))
	q := &memQueue{}
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	enqueueCheckIn(t, q, "ARU-001", base)
	enqueueCheckIn(t, q, "BEK-002", base.Add(time.Minute))

	report, err := NewCoordinator(gw, q, nil).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Remaining)

	assert.Len(t, gw.inserted, 2)
	depth, _ := q.CountPending(context.Background())
	assert.Zero(t, depth)

	// Members got their last-visit patches.
	assert.NotEmpty(t, gw.patches["m-1"])
	assert.NotEmpty(t, gw.patches["m-2"])
}

func TestCoordinator_PerItemFailureIsIndependent(t *testing.T) {
	gw := newReplayGateway(syncMember(t, "m-1", "ARU-001"), syncMember(t, "m-2", "BEK-002"))
	q := &memQueue{}
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	enqueueCheckIn(t, q, "ARU-001", base)
	failing := enqueueCheckIn(t, q, "BEK-002", base.Add(time.Minute))
	gw.failIDs[failing] = -1 // fails every time

	coord := NewCoordinator(gw, q, nil)
	report, err := coord.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Remaining)

	// Only the failed entry remains.
	entries, _ := q.ListPending(context.Background())
	require.Len(t, entries, 1)
	assert.Equal(t, "BEK-002", entries[0].MemberCode)

	// Once the failure clears, the next pass retries only that entry.
	gw.failIDs[failing] = 0
	report, err = coord.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Zero(t, report.Remaining)
	assert.Len(t, gw.inserted, 2)
}

func TestCoordinator_HoldsBackSameMemberAfterFailure(t *testing.T) {
	gw := newReplayGateway(syncMember(t, "m-1", "ARU-001"))
	q := &memQueue{}
	base := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	first := enqueueCheckIn(t, q, "ARU-001", base)
	enqueueCheckIn(t, q, "ARU-001", base.Add(2*time.Hour))
	gw.failIDs[first] = -1

	report, err := NewCoordinator(gw, q, nil).Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Applied)
	// Both counted as failed: the second is held back so the morning visit
	// never lands after the afternoon one.
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, gw.inserted)
}

func TestCoordinator_DropsUnappliableEntries(t *testing.T) {
	gw := newReplayGateway(syncMember(t, "m-1", "ARU-001"))
	q := &memQueue{}
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	enqueueCheckIn(t, q, "GHOST-999", base) // nobody owns this code
	_, err := q.Enqueue(context.Background(), outbox.CollectionCheckIns, "ARU-001", []byte(`{broken`))
	require.NoError(t, err)
	enqueueCheckIn(t, q, "ARU-001", base.Add(time.Minute))

	report, err := NewCoordinator(gw, q, nil).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 2, report.Dropped)
	assert.Zero(t, report.Remaining)
}

func TestCoordinator_OfflineKeepsEverything(t *testing.T) {
	gw := newReplayGateway(syncMember(t, "m-1", "ARU-001"))
	gw.offline = true
	q := &memQueue{}
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	enqueueCheckIn(t, q, "ARU-001", base)
	enqueueCheckIn(t, q, "ARU-001", base.Add(2*time.Hour))

	report, err := NewCoordinator(gw, q, nil).Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Applied)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 2, report.Remaining)
}

func TestCoordinator_RejectsOverlappingPasses(t *testing.T) {
	gw := newReplayGateway()
	q := &memQueue{}
	coord := NewCoordinator(gw, q, nil)

	coord.running.Store(true)
	_, err := coord.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	coord.running.Store(false)
	_, err = coord.Sync(context.Background())
	assert.NoError(t, err)
}

func TestCoordinator_MemberPatchReplay(t *testing.T) {
	gw := newReplayGateway(syncMember(t, "m-1", "ARU-001"))
	q := &memQueue{}
	ts := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	body, err := json.Marshal(outbox.MemberPatchPayload{
		MemberID:      "m-1",
		MemberCode:    "ARU-001",
		LastCheckInAt: &ts,
	})
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), outbox.CollectionMembers, "ARU-001", body)
	require.NoError(t, err)

	report, err := NewCoordinator(gw, q, nil).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	require.Len(t, gw.patches["m-1"], 1)
	require.NotNil(t, gw.patches["m-1"][0].LastCheckInAt)
	assert.Equal(t, ts, *gw.patches["m-1"][0].LastCheckInAt)
}

func TestMemoryShadow(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	shadow := NewMemoryShadow(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	_, found, err := shadow.LastPending(ctx, "ARU-001")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, shadow.MarkPending(ctx, "ARU-001", now))

	got, found, err := shadow.LastPending(ctx, "ARU-001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, now, got)

	// An older mark never rewinds the entry.
	require.NoError(t, shadow.MarkPending(ctx, "ARU-001", now.Add(-30*time.Minute)))
	got, _, _ = shadow.LastPending(ctx, "ARU-001")
	assert.Equal(t, now, got)

	// Entries expire after the TTL.
	now = now.Add(time.Hour + time.Second)
	_, found, err = shadow.LastPending(ctx, "ARU-001")
	require.NoError(t, err)
	assert.False(t, found)
}
