package remote

import (
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
)

// Mapper converts between wire DTOs and domain types.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ToMember converts a MemberDTO to a domain member. An unrecognized belt
// string maps to member.BeltUnknown rather than failing the whole lookup.
func (m *Mapper) ToMember(dto MemberDTO) *member.Member {
	mem := &member.Member{
		ID:          dto.ID,
		TenantID:    member.TenantID(dto.TenantID),
		Code:        member.MemberCode(dto.Code),
		DisplayName: dto.DisplayName,
		Belt:        member.ParseBelt(dto.Belt),
		Stripes:     dto.Stripes,
		CreatedAt:   dto.CreatedAt,
		UpdatedAt:   dto.UpdatedAt,
	}
	if dto.LastCheckInAt != nil {
		ts := dto.LastCheckInAt.UTC()
		mem.LastCheckInAt = &ts
	}
	return mem
}

// ToCheckIn converts a CheckInDTO to a domain record.
func (m *Mapper) ToCheckIn(dto CheckInDTO) attendance.CheckIn {
	return attendance.CheckIn{
		ID:        dto.ID,
		MemberID:  dto.MemberID,
		TenantID:  member.TenantID(dto.TenantID),
		Timestamp: dto.Timestamp.UTC(),
	}
}

// FromCheckIn converts a domain record to its wire shape.
func (m *Mapper) FromCheckIn(rec attendance.CheckIn) CheckInDTO {
	return CheckInDTO{
		ID:        rec.ID,
		MemberID:  rec.MemberID,
		TenantID:  rec.TenantID.String(),
		Timestamp: rec.Timestamp.UTC(),
	}
}

// FromPatch converts a domain patch to its wire shape.
func (m *Mapper) FromPatch(patch attendance.MemberPatch) memberPatchRequest {
	req := memberPatchRequest{
		LastCheckInAt: patch.LastCheckInAt,
		Stripes:       patch.Stripes,
	}
	if patch.Belt != nil {
		belt := patch.Belt.String()
		req.Belt = &belt
	}
	return req
}
