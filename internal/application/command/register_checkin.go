// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/outbox"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
	"github.com/dojo-hub/dojo-attendance-hub/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER CHECK-IN COMMAND
// Records a member's visit from the front-desk kiosk. The backend is the
// source of truth, but the kiosk must keep accepting visits when the backend
// is unreachable, so rejected writes land in the local outbox instead.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCooldown is the minimum time between two counted visits of the
// same member. A second scan inside this window is a double scan, not a
// second training session.
const DefaultCooldown = 60 * time.Minute

// CheckInSource defines where a check-in attempt came from.
type CheckInSource string

const (
	// SourceKiosk - member scanned their code at the kiosk.
	SourceKiosk CheckInSource = "kiosk"

	// SourceManual - front-desk staff recorded the visit by hand.
	// Manual entries skip the cooldown unless explicitly told otherwise.
	SourceManual CheckInSource = "manual"
)

// IsValid reports whether the source is known.
func (s CheckInSource) IsValid() bool {
	return s == SourceKiosk || s == SourceManual
}

// RegisterCheckInCommand contains the data to register a visit.
type RegisterCheckInCommand struct {
	// Code is the member's check-in code as typed or scanned.
	Code string

	// Timestamp is when the visit happened (defaults to now if zero).
	Timestamp time.Time

	// Source is where the attempt came from.
	Source CheckInSource

	// BypassCooldown skips the double-scan guard.
	// Manual entries bypass it regardless of this flag.
	BypassCooldown bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RegisterCheckInCommand) Validate() error {
	if c.Code == "" {
		return &shared.ValidationError{Field: "code", Message: "code is required"}
	}
	if !member.MemberCode(c.Code).IsValid() {
		return &shared.ValidationError{Field: "code", Message: "malformed check-in code"}
	}
	if c.Source != "" && !c.Source.IsValid() {
		return &shared.ValidationError{Field: "source", Message: fmt.Sprintf("unknown source: %s", c.Source)}
	}
	return nil
}

// RegisterCheckInResult contains the result of registering a visit.
type RegisterCheckInResult struct {
	// CheckInID is the ID assigned to the recorded visit.
	CheckInID string

	// Code is the member code the visit was registered under.
	Code string

	// Pending indicates the visit was accepted into the local queue
	// and has not reached the backend yet.
	Pending bool

	// Member is the member's state after the visit.
	// Nil when the visit was queued offline and the member could not be resolved.
	Member *member.Member

	// RecordedAt is the timestamp the visit was registered with.
	RecordedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// PendingShadow caches the timestamp of the latest not-yet-synced visit per
// member code. It exists so the cooldown holds across kiosk restarts and
// across kiosks sharing one cache, without scanning the whole outbox.
type PendingShadow interface {
	// MarkPending records that a visit for code happened at the given time.
	MarkPending(ctx context.Context, code string, at time.Time) error

	// LastPending returns the latest recorded pending visit time for code.
	LastPending(ctx context.Context, code string) (time.Time, bool, error)
}

// AttemptGuard limits how often check-in attempts are accepted per code.
type AttemptGuard interface {
	// Allow returns shared.ErrRateLimited (wrapped) when the code has
	// exhausted its attempt budget.
	Allow(ctx context.Context, key string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCheckInHandler handles the RegisterCheckInCommand.
type RegisterCheckInHandler struct {
	gateway attendance.Gateway
	queue   outbox.Queue
	shadow  PendingShadow
	guard   AttemptGuard

	cooldown time.Duration
	clock    shared.Clock
}

// RegisterCheckInHandlerConfig contains configuration for the handler.
type RegisterCheckInHandlerConfig struct {
	// Cooldown is the double-scan window. Zero means DefaultCooldown.
	Cooldown time.Duration

	// Clock overrides the time source (tests). Nil means system time.
	Clock shared.Clock
}

// NewRegisterCheckInHandler creates a new RegisterCheckInHandler.
// The guard may be nil when attempt throttling is disabled.
func NewRegisterCheckInHandler(
	gateway attendance.Gateway,
	queue outbox.Queue,
	shadow PendingShadow,
	guard AttemptGuard,
	config RegisterCheckInHandlerConfig,
) *RegisterCheckInHandler {
	if config.Cooldown == 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.Clock == nil {
		config.Clock = shared.SystemClock
	}

	return &RegisterCheckInHandler{
		gateway:  gateway,
		queue:    queue,
		shadow:   shadow,
		guard:    guard,
		cooldown: config.Cooldown,
		clock:    config.Clock,
	}
}

// Handle executes the register check-in command.
//
// Errors callers must branch on:
//   - shared.ValidationError: bad input, never queued
//   - shared.ErrRateLimited: attempt throttled
//   - shared.ErrMemberNotFound: backend answered and the code is unknown
//   - *shared.CooldownError: the member already checked in recently
func (h *RegisterCheckInHandler) Handle(ctx context.Context, cmd RegisterCheckInCommand) (*RegisterCheckInResult, error) {
	if err := cmd.Validate(); err != nil {
		metrics.RecordCheckInRejected("validation")
		return nil, err
	}

	if h.guard != nil {
		if err := h.guard.Allow(ctx, cmd.Code); err != nil {
			metrics.RecordAttemptBlocked()
			return nil, err
		}
	}

	now := h.clock()
	at := cmd.Timestamp
	if at.IsZero() {
		at = now
	}

	bypass := cmd.BypassCooldown || cmd.Source == SourceManual

	mem, err := h.gateway.FindMemberByCode(ctx, member.MemberCode(cmd.Code))
	switch {
	case err == nil:
		return h.registerOnline(ctx, cmd, mem, at, now, bypass)
	case shared.IsTransport(err):
		return h.registerOffline(ctx, cmd, at, now, bypass, "")
	default:
		metrics.RecordCheckInRejected("not_found")
		return nil, err
	}
}

// registerOnline records the visit against the backend directly.
func (h *RegisterCheckInHandler) registerOnline(
	ctx context.Context,
	cmd RegisterCheckInCommand,
	mem *member.Member,
	at, now time.Time,
	bypass bool,
) (*RegisterCheckInResult, error) {
	if !bypass {
		if err := h.checkCooldown(ctx, cmd.Code, mem.LastCheckInAt, now); err != nil {
			metrics.RecordCheckInRejected("cooldown")
			return nil, err
		}
	}

	record, err := attendance.NewCheckIn(uuid.NewString(), mem.ID, mem.TenantID, at)
	if err != nil {
		metrics.RecordCheckInRejected("validation")
		return nil, err
	}

	if err := h.gateway.InsertCheckIn(ctx, record); err != nil {
		if shared.IsTransport(err) {
			// The backend dropped out mid-request. Fall back to the queue
			// so the member is not turned away. The insert may have landed
			// before the timeout, so the queued payload keeps record.ID:
			// the replay then hits the backend's ID dedup instead of
			// creating a second visit.
			return h.registerOffline(ctx, cmd, at, now, true, record.ID)
		}
		return nil, fmt.Errorf("register_checkin: insert: %w", err)
	}

	mem.RecordCheckIn(at)

	result := &RegisterCheckInResult{
		CheckInID:  record.ID,
		Code:       cmd.Code,
		Member:     mem,
		RecordedAt: at,
	}

	patch := attendance.MemberPatch{LastCheckInAt: &at}
	if err := h.gateway.UpdateMember(ctx, mem.ID, patch); err != nil {
		if !shared.IsTransport(err) {
			return nil, fmt.Errorf("register_checkin: update member: %w", err)
		}
		// The visit itself is safe. Queue only the member patch.
		if qErr := h.enqueueMemberPatch(ctx, mem, cmd.Code, at); qErr != nil {
			return nil, fmt.Errorf("register_checkin: queue member patch: %w", qErr)
		}
		h.markPending(ctx, cmd.Code, at)
		result.Pending = true
	}

	metrics.RecordCheckInAccepted()
	return result, nil
}

// registerOffline accepts the visit into the local outbox. The member code is
// resolved when the queue is replayed, so an unknown code is only discovered
// then. checkInID carries an ID that may already be on the backend (the
// insert-timeout fallback); empty means mint a fresh one.
func (h *RegisterCheckInHandler) registerOffline(
	ctx context.Context,
	cmd RegisterCheckInCommand,
	at, now time.Time,
	bypass bool,
	checkInID string,
) (*RegisterCheckInResult, error) {
	if !bypass {
		if err := h.checkCooldown(ctx, cmd.Code, nil, now); err != nil {
			metrics.RecordCheckInRejected("cooldown")
			return nil, err
		}
	}

	if checkInID == "" {
		checkInID = uuid.NewString()
	}
	payload := outbox.CheckInPayload{
		CheckInID:  checkInID,
		MemberCode: cmd.Code,
		Timestamp:  at,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("register_checkin: encode payload: %w", err)
	}

	if _, err := h.queue.Enqueue(ctx, outbox.CollectionCheckIns, cmd.Code, body); err != nil {
		return nil, fmt.Errorf("register_checkin: enqueue: %w", err)
	}
	h.markPending(ctx, cmd.Code, at)

	metrics.RecordCheckInAccepted()
	metrics.RecordCheckInQueued()

	return &RegisterCheckInResult{
		CheckInID:  payload.CheckInID,
		Code:       cmd.Code,
		Pending:    true,
		RecordedAt: at,
	}, nil
}

// checkCooldown compares now against the latest known visit, whether that
// visit is already on the backend or still waiting in the queue.
func (h *RegisterCheckInHandler) checkCooldown(
	ctx context.Context,
	code string,
	lastSynced *time.Time,
	now time.Time,
) error {
	last, ok := h.latestKnownVisit(ctx, code, lastSynced)
	if !ok {
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= h.cooldown {
		return nil
	}

	remaining := h.cooldown - elapsed
	minutes := int(remaining / time.Minute)
	if remaining%time.Minute != 0 {
		minutes++
	}
	return &shared.CooldownError{RemainingMinutes: minutes}
}

// latestKnownVisit returns the freshest visit timestamp the kiosk can see:
// the backend's value, the shadow cache, or the outbox, whichever is latest.
func (h *RegisterCheckInHandler) latestKnownVisit(
	ctx context.Context,
	code string,
	lastSynced *time.Time,
) (time.Time, bool) {
	var last time.Time
	var ok bool

	if lastSynced != nil {
		last, ok = *lastSynced, true
	}

	if h.shadow != nil {
		if t, found, err := h.shadow.LastPending(ctx, code); err == nil && found && t.After(last) {
			last, ok = t, true
		}
	}

	if t, found, err := h.queue.PendingSince(ctx, code); err == nil && found && t.After(last) {
		last, ok = t, true
	}

	return last, ok
}

func (h *RegisterCheckInHandler) enqueueMemberPatch(ctx context.Context, mem *member.Member, code string, at time.Time) error {
	payload := outbox.MemberPatchPayload{
		MemberID:      mem.ID,
		MemberCode:    code,
		LastCheckInAt: &at,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = h.queue.Enqueue(ctx, outbox.CollectionMembers, code, body)
	return err
}

// markPending is best effort. The outbox already holds the durable copy.
func (h *RegisterCheckInHandler) markPending(ctx context.Context, code string, at time.Time) {
	if h.shadow == nil {
		return
	}
	_ = h.shadow.MarkPending(ctx, code, at)
}
