// Package attendance contains the append-only check-in record and the
// contract of the remote store that owns it.
package attendance

import (
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// CheckIn is a single attendance record. Records are immutable once created
// and are never updated or deleted by this core; deleting one is an
// administrative action that happens elsewhere.
type CheckIn struct {
	// ID - unique identifier (UUID in string form), generated locally so
	// that offline replays stay deduplicable.
	ID string

	// MemberID - the member this record belongs to.
	MemberID string

	// TenantID - the academy the record belongs to.
	TenantID member.TenantID

	// Timestamp - authoritative instant the check-in occurred. For offline
	// check-ins this is the kiosk time at scan, not the sync time.
	Timestamp time.Time
}

// NewCheckIn creates a validated check-in record.
func NewCheckIn(id, memberID string, tenantID member.TenantID, ts time.Time) (CheckIn, error) {
	if id == "" {
		return CheckIn{}, &shared.ValidationError{Field: "id", Message: "is required"}
	}
	if memberID == "" {
		return CheckIn{}, &shared.ValidationError{Field: "member_id", Message: "is required"}
	}
	if !tenantID.IsValid() {
		return CheckIn{}, &shared.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if ts.IsZero() {
		return CheckIn{}, &shared.ValidationError{Field: "timestamp", Message: "is required"}
	}

	return CheckIn{
		ID:        id,
		MemberID:  memberID,
		TenantID:  tenantID,
		Timestamp: ts,
	}, nil
}

// Timestamps extracts the raw instants from a record slice, which is the
// input shape the streak calculator wants.
func Timestamps(records []CheckIn) []time.Time {
	stamps := make([]time.Time, len(records))
	for i, r := range records {
		stamps[i] = r.Timestamp
	}
	return stamps
}

// LatestTimestamp returns max(record timestamp) and whether any record
// exists. Reads use this to reconcile a stale denormalized LastCheckInAt.
func LatestTimestamp(records []CheckIn) (time.Time, bool) {
	var latest time.Time
	for _, r := range records {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	return latest, !latest.IsZero()
}
