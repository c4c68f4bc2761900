package attendance

import (
	"context"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
)

// MemberPatch is a partial update applied to a member at the remote store.
// Nil fields are left untouched.
type MemberPatch struct {
	LastCheckInAt *time.Time
	Belt          *member.Belt
	Stripes       *int
}

// IsEmpty reports whether the patch changes nothing.
func (p MemberPatch) IsEmpty() bool {
	return p.LastCheckInAt == nil && p.Belt == nil && p.Stripes == nil
}

// Gateway is the remote relational store that owns members and check-in
// records. Implementations must surface unreachability as a
// shared.TransportError so callers can route the write to the offline queue;
// a call that exceeds its bounded timeout counts as unreachable, not as an
// indeterminate state.
type Gateway interface {
	// FindMemberByCode resolves a kiosk code to exactly one member.
	// Returns shared.ErrMemberNotFound when no member matches and
	// shared.ErrAmbiguousCode if the uniqueness invariant on codes is
	// broken upstream.
	FindMemberByCode(ctx context.Context, code member.MemberCode) (*member.Member, error)

	// ListCheckIns returns the member's check-in records at or after
	// since. A zero since returns the full history.
	ListCheckIns(ctx context.Context, memberID string, since time.Time) ([]CheckIn, error)

	// InsertCheckIn appends one attendance record.
	InsertCheckIn(ctx context.Context, rec CheckIn) error

	// UpdateMember applies a partial update to a member.
	UpdateMember(ctx context.Context, memberID string, patch MemberPatch) error

	// Healthy reports whether the store is currently reachable. This is
	// the binary online/offline signal the sync layer watches.
	Healthy(ctx context.Context) bool
}
