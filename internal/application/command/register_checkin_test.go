package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
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

// fakeGateway is an in-memory attendance.Gateway for handler tests.
type fakeGateway struct {
	mu      sync.Mutex
	members map[string]*member.Member

	findErr   error
	insertErr error
	updateErr error

	// insertErrAfterApply applies the insert before returning insertErr,
	// mimicking a timeout that fires after the backend committed the row.
	insertErrAfterApply bool

	inserted []attendance.CheckIn
	patches  []attendance.MemberPatch
}

func newFakeGateway(members ...*member.Member) *fakeGateway {
	g := &fakeGateway{members: make(map[string]*member.Member)}
	for _, m := range members {
		g.members[m.Code.String()] = m
	}
	return g
}

func (g *fakeGateway) FindMemberByCode(_ context.Context, code member.MemberCode) (*member.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.findErr != nil {
		return nil, g.findErr
	}
	m, ok := g.members[code.String()]
	if !ok {
		return nil, shared.ErrMemberNotFound
	}
	return m.Clone(), nil
}

func (g *fakeGateway) ListCheckIns(_ context.Context, memberID string, since time.Time) ([]attendance.CheckIn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []attendance.CheckIn
	for _, rec := range g.inserted {
		if rec.MemberID == memberID && !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (g *fakeGateway) InsertCheckIn(_ context.Context, rec attendance.CheckIn) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.insertErr != nil {
		if g.insertErrAfterApply {
			g.inserted = append(g.inserted, rec)
		}
		return g.insertErr
	}
	g.inserted = append(g.inserted, rec)
	return nil
}

func (g *fakeGateway) UpdateMember(_ context.Context, memberID string, patch attendance.MemberPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	g.patches = append(g.patches, patch)
	for _, m := range g.members {
		if m.ID == memberID && patch.LastCheckInAt != nil {
			m.RecordCheckIn(*patch.LastCheckInAt)
		}
	}
	return nil
}

func (g *fakeGateway) Healthy(context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.findErr == nil
}

// memQueue is an in-memory outbox.Queue for handler tests.
type memQueue struct {
	mu      sync.Mutex
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

func (q *memQueue) PendingSince(_ context.Context, code string) (time.Time, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var latest time.Time
	var found bool
	for _, m := range q.entries {
		if m.MemberCode != code || m.Collection != outbox.CollectionCheckIns {
			continue
		}
		var p outbox.CheckInPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			continue
		}
		if p.Timestamp.After(latest) {
			latest, found = p.Timestamp, true
		}
	}
	return latest, found, nil
}

// blockedGuard always reports the caller as throttled.
type blockedGuard struct{}

func (blockedGuard) Allow(context.Context, string) error {
	return shared.ErrRateLimited
}

func fixedClock(t time.Time) shared.Clock {
	return func() time.Time { return t }
}

func testMember(t *testing.T, code string, lastCheckIn *time.Time) *member.Member {
	t.Helper()
	m, err := member.NewMember(member.NewMemberParams{
		ID:          uuid.NewString(),
		TenantID:    "dojo-astana",
		Code:        member.MemberCode(code),
		DisplayName: "Aruzhan",
		Belt:        member.BeltWhite,
	})
	require.NoError(t, err)
	if lastCheckIn != nil {
		m.RecordCheckIn(*lastCheckIn)
	}
	return m
}

func TestRegisterCheckIn_FirstVisit(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	gw := newFakeGateway(testMember(t, "ARU-001", nil))
	q := &memQueue{}

	h := NewRegisterCheckInHandler(gw, q, nil, nil, RegisterCheckInHandlerConfig{Clock: fixedClock(now)})
	res, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
	require.NoError(t, err)

	assert.False(t, res.Pending)
	assert.NotEmpty(t, res.CheckInID)
	assert.Equal(t, now, res.RecordedAt)
	require.NotNil(t, res.Member)
	require.NotNil(t, res.Member.LastCheckInAt)
	assert.Equal(t, now, *res.Member.LastCheckInAt)

	require.Len(t, gw.inserted, 1)
	assert.Equal(t, now, gw.inserted[0].Timestamp)
	require.Len(t, gw.patches, 1)

	depth, _ := q.CountPending(context.Background())
	assert.Zero(t, depth)
}

func TestRegisterCheckIn_Cooldown(t *testing.T) {
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		elapsed   time.Duration
		wantErr   bool
		remaining int
	}{
		{name: "immediately after", elapsed: 0, wantErr: true, remaining: 60},
		{name: "thirty seconds", elapsed: 30 * time.Second, wantErr: true, remaining: 60},
		{name: "one minute", elapsed: time.Minute, wantErr: true, remaining: 59},
		{name: "fifty nine minutes", elapsed: 59 * time.Minute, wantErr: true, remaining: 1},
		{name: "just under an hour", elapsed: 60*time.Minute - time.Second, wantErr: true, remaining: 1},
		{name: "exactly an hour", elapsed: 60 * time.Minute, wantErr: false},
		{name: "well past", elapsed: 3 * time.Hour, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway(testMember(t, "ARU-001", &base))
			h := NewRegisterCheckInHandler(gw, &memQueue{}, nil, nil, RegisterCheckInHandlerConfig{
				Clock: fixedClock(base.Add(tt.elapsed)),
			})

			_, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrCooldownActive)
			var cooldown *shared.CooldownError
			require.ErrorAs(t, err, &cooldown)
			assert.Equal(t, tt.remaining, cooldown.RemainingMinutes)
		})
	}
}

func TestRegisterCheckIn_BypassCooldown(t *testing.T) {
	base := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	now := base.Add(5 * time.Minute)

	t.Run("explicit bypass", func(t *testing.T) {
		gw := newFakeGateway(testMember(t, "ARU-001", &base))
		h := NewRegisterCheckInHandler(gw, &memQueue{}, nil, nil, RegisterCheckInHandlerConfig{Clock: fixedClock(now)})

		res, err := h.Handle(context.Background(), RegisterCheckInCommand{
			Code:           "ARU-001",
			Source:         SourceKiosk,
			BypassCooldown: true,
		})
		require.NoError(t, err)
		assert.False(t, res.Pending)
	})

	t.Run("manual source bypasses by default", func(t *testing.T) {
		gw := newFakeGateway(testMember(t, "ARU-001", &base))
		h := NewRegisterCheckInHandler(gw, &memQueue{}, nil, nil, RegisterCheckInHandlerConfig{Clock: fixedClock(now)})

		_, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceManual})
		assert.NoError(t, err)
	})
}

func TestRegisterCheckIn_UnknownCode(t *testing.T) {
	gw := newFakeGateway()
	h := NewRegisterCheckInHandler(gw, &memQueue{}, nil, nil, RegisterCheckInHandlerConfig{})

	_, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "NOBODY", Source: SourceKiosk})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegisterCheckIn_Validation(t *testing.T) {
	gw := newFakeGateway()
	q := &memQueue{}
	h := NewRegisterCheckInHandler(gw, q, nil, nil, RegisterCheckInHandlerConfig{})

	tests := []struct {
		name string
		cmd  RegisterCheckInCommand
	}{
		{name: "empty code", cmd: RegisterCheckInCommand{}},
		{name: "whitespace in code", cmd: RegisterCheckInCommand{Code: "bad code"}},
		{name: "unknown source", cmd: RegisterCheckInCommand{Code: "ARU-001", Source: "carrier-pigeon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	// Bad input must never reach the queue even when the backend is down.
	gw.findErr = shared.Transport("find", errors.New("connection refused"))
	_, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "bad code"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	depth, _ := q.CountPending(context.Background())
	assert.Zero(t, depth)
}

func TestRegisterCheckIn_OfflineQueues(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	gw := newFakeGateway()
	gw.findErr = shared.Transport("find", errors.New("connection refused"))
	q := &memQueue{}

	h := NewRegisterCheckInHandler(gw, q, nil, nil, RegisterCheckInHandlerConfig{Clock: fixedClock(now)})

	res, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Nil(t, res.Member)

	entries, err := q.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.CollectionCheckIns, entries[0].Collection)
	assert.Equal(t, "ARU-001", entries[0].MemberCode)

	var payload outbox.CheckInPayload
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, res.CheckInID, payload.CheckInID)
	assert.Equal(t, now, payload.Timestamp)
}

func TestRegisterCheckIn_OfflineCooldownFromQueue(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	gw := newFakeGateway()
	gw.findErr = shared.Transport("find", errors.New("connection refused"))
	q := &memQueue{}

	h := NewRegisterCheckInHandler(gw, q, nil, nil, RegisterCheckInHandlerConfig{Clock: fixedClock(now)})

	_, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
	require.NoError(t, err)

	// Second offline scan inside the window must see the queued visit.
	h2 := NewRegisterCheckInHandler(gw, q, nil, nil, RegisterCheckInHandlerConfig{
		Clock: fixedClock(now.Add(10 * time.Minute)),
	})
	_, err = h2.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCooldownActive)

	depth, _ := q.CountPending(context.Background())
	assert.Equal(t, 1, depth)
}

func TestRegisterCheckIn_InsertFailureFallsBackToQueue(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	gw := newFakeGateway(testMember(t, "ARU-001", nil))
	gw.insertErr = shared.Transport("insert", errors.New("connection reset"))
	q := &memQueue{}

	h := NewRegisterCheckInHandler(gw, q, nil, nil, RegisterCheckInHandlerConfig{Clock: fixedClock(now)})

	res, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
	require.NoError(t, err)
	assert.True(t, res.Pending)

	entries, _ := q.ListPending(context.Background())
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.CollectionCheckIns, entries[0].Collection)
}

func TestRegisterCheckIn_InsertTimeoutKeepsCheckInID(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	gw := newFakeGateway(testMember(t, "ARU-001", nil))
	gw.insertErr = shared.Transport("insert", context.DeadlineExceeded)
	gw.insertErrAfterApply = true
	q := &memQueue{}

	h := NewRegisterCheckInHandler(gw, q, nil, nil, RegisterCheckInHandlerConfig{Clock: fixedClock(now)})

	res, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
	require.NoError(t, err)
	assert.True(t, res.Pending)

	// The row may already be on the backend, so the queued payload must
	// carry the same ID. The replay then dedupes instead of inserting a
	// second visit.
	require.Len(t, gw.inserted, 1)
	entries, _ := q.ListPending(context.Background())
	require.Len(t, entries, 1)

	var payload outbox.CheckInPayload
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, gw.inserted[0].ID, payload.CheckInID)
	assert.Equal(t, payload.CheckInID, res.CheckInID)
}

func TestRegisterCheckIn_UpdateFailureQueuesPatch(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	gw := newFakeGateway(testMember(t, "ARU-001", nil))
	gw.updateErr = shared.Transport("update", errors.New("connection reset"))
	q := &memQueue{}

	h := NewRegisterCheckInHandler(gw, q, nil, nil, RegisterCheckInHandlerConfig{Clock: fixedClock(now)})

	res, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
	require.NoError(t, err)
	assert.True(t, res.Pending)

	// The check-in itself made it through. Only the patch is queued.
	require.Len(t, gw.inserted, 1)
	entries, _ := q.ListPending(context.Background())
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.CollectionMembers, entries[0].Collection)

	var patch outbox.MemberPatchPayload
	require.NoError(t, json.Unmarshal(entries[0].Payload, &patch))
	require.NotNil(t, patch.LastCheckInAt)
	assert.Equal(t, now, *patch.LastCheckInAt)
}

func TestRegisterCheckIn_Throttled(t *testing.T) {
	gw := newFakeGateway(testMember(t, "ARU-001", nil))
	h := NewRegisterCheckInHandler(gw, &memQueue{}, nil, blockedGuard{}, RegisterCheckInHandlerConfig{})

	_, err := h.Handle(context.Background(), RegisterCheckInCommand{Code: "ARU-001", Source: SourceKiosk})
	assert.ErrorIs(t, err, shared.ErrRateLimited)
	assert.Empty(t, gw.inserted)
}
