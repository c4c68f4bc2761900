// Package sync drains the offline outbox into the membership backend. One
// pass at a time, oldest first, and a failure for one member never holds up
// another member's writes.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/outbox"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
	"github.com/dojo-hub/dojo-attendance-hub/pkg/metrics"
)

// ErrSyncInProgress is returned when a pass is requested while another pass
// is still draining the queue.
var ErrSyncInProgress = errors.New("sync: pass already in progress")

// Report summarizes one sync pass.
type Report struct {
	// Applied is how many mutations reached the backend and were removed.
	Applied int

	// Failed is how many mutations hit a recoverable failure and stayed
	// queued for the next pass.
	Failed int

	// Dropped is how many mutations were discarded as permanently
	// unappliable (unknown member, undecodable payload).
	Dropped int

	// Remaining is the queue depth after the pass.
	Remaining int
}

// Coordinator replays queued mutations against the backend.
type Coordinator struct {
	gateway attendance.Gateway
	queue   outbox.Queue
	logger  *slog.Logger

	running atomic.Bool
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(gateway attendance.Gateway, queue outbox.Queue, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		gateway: gateway,
		queue:   queue,
		logger:  logger.With(slog.String("component", "sync")),
	}
}

// Sync runs one pass over the queue. Replaying is idempotent: mutation IDs
// are stable across passes and the backend deduplicates by them, so a crash
// between apply and remove costs nothing but a repeat round trip.
func (c *Coordinator) Sync(ctx context.Context) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Report{}, ErrSyncInProgress
	}
	defer c.running.Store(false)

	metrics.RecordSyncCycle()

	var report Report

	pending, err := c.queue.ListPending(ctx)
	if err != nil {
		return report, fmt.Errorf("sync: list pending: %w", err)
	}
	if len(pending) == 0 {
		metrics.UpdateQueueDepth(0)
		return report, nil
	}

	c.logger.Info("sync pass started", slog.Int("pending", len(pending)))

	// Once one of a member's mutations fails, their later mutations are
	// held back so writes land in the order the member produced them.
	held := make(map[string]bool)

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			break
		}
		if held[m.MemberCode] {
			report.Failed++
			continue
		}

		switch err := c.apply(ctx, m); {
		case err == nil:
			if rmErr := c.queue.Remove(ctx, m.ID); rmErr != nil {
				c.logger.Error("remove applied mutation",
					slog.String("id", m.ID),
					slog.String("error", rmErr.Error()))
			}
			report.Applied++
			metrics.RecordMutationApplied()

		case errors.Is(err, errUnappliable):
			c.logger.Warn("dropping unappliable mutation",
				slog.String("id", m.ID),
				slog.String("collection", string(m.Collection)),
				slog.String("member_code", m.MemberCode),
				slog.String("error", err.Error()))
			if rmErr := c.queue.Remove(ctx, m.ID); rmErr != nil {
				c.logger.Error("remove unappliable mutation",
					slog.String("id", m.ID),
					slog.String("error", rmErr.Error()))
			}
			report.Dropped++
			metrics.RecordMutationFailed()

		default:
			c.logger.Warn("mutation failed, keeping queued",
				slog.String("id", m.ID),
				slog.String("member_code", m.MemberCode),
				slog.String("error", err.Error()))
			held[m.MemberCode] = true
			report.Failed++
			metrics.RecordMutationFailed()
		}
	}

	if depth, err := c.queue.CountPending(ctx); err == nil {
		report.Remaining = depth
		metrics.UpdateQueueDepth(depth)
	}

	c.logger.Info("sync pass finished",
		slog.Int("applied", report.Applied),
		slog.Int("failed", report.Failed),
		slog.Int("dropped", report.Dropped),
		slog.Int("remaining", report.Remaining))

	return report, nil
}

// errUnappliable marks mutations that will never succeed, no matter how many
// passes retry them.
var errUnappliable = errors.New("unappliable")

func (c *Coordinator) apply(ctx context.Context, m outbox.PendingMutation) error {
	switch m.Collection {
	case outbox.CollectionCheckIns:
		return c.applyCheckIn(ctx, m)
	case outbox.CollectionMembers:
		return c.applyMemberPatch(ctx, m)
	default:
		return fmt.Errorf("%w: unknown collection %q", errUnappliable, m.Collection)
	}
}

func (c *Coordinator) applyCheckIn(ctx context.Context, m outbox.PendingMutation) error {
	var p outbox.CheckInPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return fmt.Errorf("%w: decode check-in: %v", errUnappliable, err)
	}

	mem, err := c.gateway.FindMemberByCode(ctx, member.MemberCode(p.MemberCode))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// The code was typed while offline and belongs to nobody.
			return fmt.Errorf("%w: member %q not found", errUnappliable, p.MemberCode)
		}
		return err
	}

	rec, err := attendance.NewCheckIn(p.CheckInID, mem.ID, mem.TenantID, p.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnappliable, err)
	}

	if err := c.gateway.InsertCheckIn(ctx, rec); err != nil {
		return err
	}

	// Only advance the member's last visit, never rewind it. A fresher
	// online check-in may have landed while this one sat in the queue.
	if mem.LastCheckInAt == nil || p.Timestamp.After(*mem.LastCheckInAt) {
		ts := p.Timestamp
		patch := attendance.MemberPatch{LastCheckInAt: &ts}
		if err := c.gateway.UpdateMember(ctx, mem.ID, patch); err != nil {
			return err
		}
	}

	return nil
}

func (c *Coordinator) applyMemberPatch(ctx context.Context, m outbox.PendingMutation) error {
	var p outbox.MemberPatchPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return fmt.Errorf("%w: decode member patch: %v", errUnappliable, err)
	}

	memberID := p.MemberID
	if memberID == "" {
		mem, err := c.gateway.FindMemberByCode(ctx, member.MemberCode(p.MemberCode))
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: member %q not found", errUnappliable, p.MemberCode)
			}
			return err
		}
		memberID = mem.ID
	}

	patch := attendance.MemberPatch{LastCheckInAt: p.LastCheckInAt}
	if patch.IsEmpty() {
		return fmt.Errorf("%w: empty member patch", errUnappliable)
	}

	return c.gateway.UpdateMember(ctx, memberID, patch)
}
