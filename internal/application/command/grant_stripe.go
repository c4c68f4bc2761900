package command

import (
	"context"
	"fmt"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT STRIPE COMMAND
// Promotes a member one step on the belt ladder: a stripe, or the next belt
// once the stripes are full. Promotions only happen with the coach standing
// at the desk, so this command has no offline path - if the backend is down
// the grant is simply retried later.
// ══════════════════════════════════════════════════════════════════════════════

// GrantStripeCommand contains the data to promote a member one step.
type GrantStripeCommand struct {
	// Code is the member's check-in code.
	Code string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c GrantStripeCommand) Validate() error {
	if c.Code == "" {
		return &shared.ValidationError{Field: "code", Message: "code is required"}
	}
	if !member.MemberCode(c.Code).IsValid() {
		return &shared.ValidationError{Field: "code", Message: "malformed check-in code"}
	}
	return nil
}

// GrantStripeResult contains the result of a promotion.
type GrantStripeResult struct {
	// MemberID is the promoted member.
	MemberID string

	// PreviousBelt and PreviousStripes are the rank before the grant.
	PreviousBelt    member.Belt
	PreviousStripes int

	// Belt and Stripes are the rank after the grant.
	Belt    member.Belt
	Stripes int

	// Promoted indicates the belt itself changed, not just a stripe.
	Promoted bool
}

// GrantStripeHandler handles the GrantStripeCommand.
type GrantStripeHandler struct {
	gateway attendance.Gateway
}

// NewGrantStripeHandler creates a new GrantStripeHandler.
func NewGrantStripeHandler(gateway attendance.Gateway) *GrantStripeHandler {
	return &GrantStripeHandler{gateway: gateway}
}

// Handle executes the grant stripe command.
func (h *GrantStripeHandler) Handle(ctx context.Context, cmd GrantStripeCommand) (*GrantStripeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	mem, err := h.gateway.FindMemberByCode(ctx, member.MemberCode(cmd.Code))
	if err != nil {
		return nil, err
	}

	belt, stripes := member.GrantStripe(mem.Belt, mem.Stripes)

	result := &GrantStripeResult{
		MemberID:        mem.ID,
		PreviousBelt:    mem.Belt,
		PreviousStripes: mem.Stripes,
		Belt:            belt,
		Stripes:         stripes,
		Promoted:        belt != mem.Belt,
	}

	// Terminal and unknown ranks absorb grants. Nothing to persist.
	if belt == mem.Belt && stripes == mem.Stripes {
		return result, nil
	}

	patch := attendance.MemberPatch{Belt: &belt, Stripes: &stripes}
	if err := h.gateway.UpdateMember(ctx, mem.ID, patch); err != nil {
		return nil, fmt.Errorf("grant_stripe: update member: %w", err)
	}

	return result, nil
}
