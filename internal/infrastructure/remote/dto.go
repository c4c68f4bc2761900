package remote

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// Wire shapes of the membership backend's REST API. Kept separate from the
// domain types so a backend field rename stays inside this package.
// ══════════════════════════════════════════════════════════════════════════════

// MemberDTO is the backend's member representation.
type MemberDTO struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Code          string     `json:"code"`
	DisplayName   string     `json:"display_name"`
	Belt          string     `json:"belt"`
	Stripes       int        `json:"stripes"`
	LastCheckInAt *time.Time `json:"last_check_in_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CheckInDTO is the backend's attendance record representation.
type CheckInDTO struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	TenantID  string    `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
}

// memberSearchResponse wraps the code lookup endpoint's response.
type memberSearchResponse struct {
	Members []MemberDTO `json:"members"`
}

// checkInListResponse wraps the check-in listing endpoint's response.
type checkInListResponse struct {
	CheckIns []CheckInDTO `json:"check_ins"`
}

// memberPatchRequest is the partial update body. Absent fields stay absent
// on the wire so the backend can tell "unset" from "zero".
type memberPatchRequest struct {
	LastCheckInAt *time.Time `json:"last_check_in_at,omitempty"`
	Belt          *string    `json:"belt,omitempty"`
	Stripes       *int       `json:"stripes,omitempty"`
}

// errorResponse is the backend's error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
