// Package member contains the domain model for a tracked dojo member.
// This is the core of the business logic - there are no external dependencies
// here beyond the shared error taxonomy.
package member

import (
	"strings"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// MemberCode is the short code a member types or scans at the kiosk.
// Codes are unique per tenant; resolution to more than one member is a data
// defect the registrar guards against.
type MemberCode string

// IsValid checks the code is 3-20 characters without whitespace.
func (c MemberCode) IsValid() bool {
	s := string(c)
	return len(s) >= 3 && len(s) <= 20 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation of the code.
func (c MemberCode) String() string {
	return string(c)
}

// TenantID identifies the academy a member belongs to.
type TenantID string

// IsValid checks that the tenant ID is non-empty.
func (t TenantID) IsValid() bool {
	return t != ""
}

// String returns the string representation of the tenant ID.
func (t TenantID) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// BELT PROGRESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

// Belt is an ordinal rank. The zero value is BeltUnknown so that a Member
// scanned from an unexpected source never silently becomes a white belt.
type Belt int

const (
	BeltUnknown Belt = iota
	BeltWhite
	BeltYellow
	BeltOrange
	BeltGreen
	BeltBlue
	BeltPurple
	BeltBrown
	BeltBlack
)

// beltSequence is the strictly ordered promotion ladder. BeltBlack is the
// terminal rank: it absorbs further stripe grants.
var beltSequence = []Belt{
	BeltWhite,
	BeltYellow,
	BeltOrange,
	BeltGreen,
	BeltBlue,
	BeltPurple,
	BeltBrown,
	BeltBlack,
}

// MaxStripes is the stripe count at which the next grant promotes instead.
const MaxStripes = 4

// String returns the belt name.
func (b Belt) String() string {
	switch b {
	case BeltWhite:
		return "white"
	case BeltYellow:
		return "yellow"
	case BeltOrange:
		return "orange"
	case BeltGreen:
		return "green"
	case BeltBlue:
		return "blue"
	case BeltPurple:
		return "purple"
	case BeltBrown:
		return "brown"
	case BeltBlack:
		return "black"
	default:
		return "unknown"
	}
}

// ParseBelt parses a belt name. Unrecognized names yield BeltUnknown, which
// behaves as an absorbing state in the progression engine.
func ParseBelt(s string) Belt {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white":
		return BeltWhite
	case "yellow":
		return BeltYellow
	case "orange":
		return BeltOrange
	case "green":
		return BeltGreen
	case "blue":
		return BeltBlue
	case "purple":
		return BeltPurple
	case "brown":
		return BeltBrown
	case "black":
		return BeltBlack
	default:
		return BeltUnknown
	}
}

// IsTerminal reports whether b is the last belt of the ladder.
func (b Belt) IsTerminal() bool {
	return b == beltSequence[len(beltSequence)-1]
}

// inSequence returns the position of b in the ladder, or -1.
func (b Belt) inSequence() int {
	for i, rank := range beltSequence {
		if rank == b {
			return i
		}
	}
	return -1
}

// ══════════════════════════════════════════════════════════════════════════════
// RISK FLAG
// ══════════════════════════════════════════════════════════════════════════════

// RiskFlag is the tri-state churn classification derived from recency of
// attendance. It is always recomputed on read, never stored.
type RiskFlag string

const (
	// FlagFresh - the member attended recently.
	FlagFresh RiskFlag = "fresh"
	// FlagWarning - attendance is lapsing.
	FlagWarning RiskFlag = "warning"
	// FlagCritical - the member is at churn risk, or has never attended.
	FlagCritical RiskFlag = "critical"
)

// IsValid checks that the flag is one of the three known states.
func (f RiskFlag) IsValid() bool {
	switch f {
	case FlagFresh, FlagWarning, FlagCritical:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: MEMBER
// ══════════════════════════════════════════════════════════════════════════════

// Member is a tracked person. The remote store owns this record; the core
// holds a copy only for the duration of one operation and never caches it.
type Member struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// TenantID - the academy this member belongs to.
	TenantID TenantID

	// Code - kiosk check-in code, unique per tenant.
	Code MemberCode

	// DisplayName - name shown at the kiosk and in reports.
	DisplayName string

	// Belt - current rank on the promotion ladder.
	Belt Belt

	// Stripes - degree count within the current belt, 0..MaxStripes.
	Stripes int

	// LastCheckInAt - denormalized cache of max(check-in timestamp).
	// nil means the member has never checked in. Any divergence from the
	// attendance records themselves is a defect; reads treat the records
	// as authoritative.
	LastCheckInAt *time.Time

	// CreatedAt - record creation time at the remote store.
	CreatedAt time.Time

	// UpdatedAt - last modification time at the remote store.
	UpdatedAt time.Time
}

// NewMemberParams contains parameters for constructing a Member.
type NewMemberParams struct {
	ID          string
	TenantID    TenantID
	Code        MemberCode
	DisplayName string
	Belt        Belt
	Stripes     int
}

// NewMember creates a Member with all fields validated.
func NewMember(params NewMemberParams) (*Member, error) {
	if params.ID == "" {
		return nil, &shared.ValidationError{Field: "id", Message: "is required"}
	}
	if !params.TenantID.IsValid() {
		return nil, &shared.ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if !params.Code.IsValid() {
		return nil, shared.ErrInvalidMemberCode
	}

	name := strings.TrimSpace(params.DisplayName)
	if len(name) == 0 || len(name) > 100 {
		return nil, &shared.ValidationError{Field: "display_name", Message: "must be 1-100 chars"}
	}
	if params.Stripes < 0 || params.Stripes > MaxStripes {
		return nil, &shared.ValidationError{Field: "stripes", Message: "must be 0-4"}
	}

	now := time.Now().UTC()

	return &Member{
		ID:          params.ID,
		TenantID:    params.TenantID,
		Code:        params.Code,
		DisplayName: name,
		Belt:        params.Belt,
		Stripes:     params.Stripes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// RecordCheckIn advances the denormalized last-check-in cache. It never
// moves the timestamp backwards, which keeps replayed offline writes safe.
func (m *Member) RecordCheckIn(at time.Time) {
	if m.LastCheckInAt == nil || at.After(*m.LastCheckInAt) {
		ts := at
		m.LastCheckInAt = &ts
	}
	m.UpdatedAt = time.Now().UTC()
}

// HasAttended reports whether the member has at least one check-in.
func (m *Member) HasAttended() bool {
	return m.LastCheckInAt != nil
}

// Clone returns a copy of the member.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	clone := *m
	if m.LastCheckInAt != nil {
		ts := *m.LastCheckInAt
		clone.LastCheckInAt = &ts
	}
	return &clone
}
