// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER STATUS QUERY
// The summary the kiosk screen shows after a scan: rank, risk flag and
// consistency streak. Both the flag and the streak are derived at read time
// from raw check-in records instead of being stored, so they are always
// consistent with the history.
// ══════════════════════════════════════════════════════════════════════════════

// MemberStatusQuery contains the parameters to look up a member's status.
type MemberStatusQuery struct {
	// Code is the member's check-in code.
	Code string

	// HistoryDays bounds how far back check-ins are fetched for the
	// streak. Zero means DefaultHistoryDays.
	HistoryDays int
}

// DefaultHistoryDays is how much history the streak calculation sees. A
// streak longer than this is clipped, which nobody training daily for three
// months has complained about yet.
const DefaultHistoryDays = 90

// Validate validates the query.
func (q MemberStatusQuery) Validate() error {
	if q.Code == "" {
		return &shared.ValidationError{Field: "code", Message: "code is required"}
	}
	if !member.MemberCode(q.Code).IsValid() {
		return &shared.ValidationError{Field: "code", Message: "malformed check-in code"}
	}
	if q.HistoryDays < 0 {
		return &shared.ValidationError{Field: "history_days", Message: "must not be negative"}
	}
	return nil
}

// MemberStatusResult is the member summary.
type MemberStatusResult struct {
	// Member is the resolved member.
	Member *member.Member

	// Flag is the churn-risk classification as of now.
	Flag member.RiskFlag

	// Streak is the consecutive-day attendance streak as of now.
	Streak member.Streak

	// LastCheckInAt is the reconciled latest visit: the denormalized
	// member field or the newest raw record, whichever is later.
	LastCheckInAt *time.Time

	// TotalVisits is the number of check-ins inside the history window.
	TotalVisits int
}

// MemberStatusHandler handles the MemberStatusQuery.
type MemberStatusHandler struct {
	gateway    attendance.Gateway
	thresholds member.FlagThresholds
	location   *time.Location
	clock      shared.Clock
}

// MemberStatusHandlerConfig contains configuration for the handler.
type MemberStatusHandlerConfig struct {
	// Thresholds are the risk flag day boundaries. Zero means defaults.
	Thresholds member.FlagThresholds

	// Location is the academy's local timezone for day arithmetic.
	// Nil means time.Local.
	Location *time.Location

	// Clock overrides the time source (tests).
	Clock shared.Clock
}

// NewMemberStatusHandler creates a new MemberStatusHandler.
func NewMemberStatusHandler(gateway attendance.Gateway, config MemberStatusHandlerConfig) *MemberStatusHandler {
	if config.Thresholds == (member.FlagThresholds{}) {
		config.Thresholds = member.DefaultFlagThresholds()
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Clock == nil {
		config.Clock = shared.SystemClock
	}

	return &MemberStatusHandler{
		gateway:    gateway,
		thresholds: config.Thresholds,
		location:   config.Location,
		clock:      config.Clock,
	}
}

// Handle executes the member status query.
func (h *MemberStatusHandler) Handle(ctx context.Context, q MemberStatusQuery) (*MemberStatusResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	mem, err := h.gateway.FindMemberByCode(ctx, member.MemberCode(q.Code))
	if err != nil {
		return nil, err
	}

	now := h.clock()

	days := q.HistoryDays
	if days == 0 {
		days = DefaultHistoryDays
	}
	since := now.AddDate(0, 0, -days)

	records, err := h.gateway.ListCheckIns(ctx, mem.ID, since)
	if err != nil {
		return nil, fmt.Errorf("member_status: list check-ins: %w", err)
	}

	// The denormalized field can lag behind the raw records when a member
	// patch is still queued. Trust whichever is newer.
	last := mem.LastCheckInAt
	if latest, ok := attendance.LatestTimestamp(records); ok {
		if last == nil || latest.After(*last) {
			last = &latest
		}
	}

	return &MemberStatusResult{
		Member:        mem,
		Flag:          member.ClassifyFlag(last, now, h.thresholds),
		Streak:        member.CalculateStreak(attendance.Timestamps(records), now, h.location),
		LastCheckInAt: last,
		TotalVisits:   len(records),
	}, nil
}
