package member

import (
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
	"github.com/dojo-hub/dojo-attendance-hub/pkg/timeutil"
)

// FlagThresholds holds the per-tenant churn thresholds in whole days.
// The invariant warningAfterDays < criticalAfterDays is enforced at the
// configuration boundary via Validate, never inside ClassifyFlag.
type FlagThresholds struct {
	WarningAfterDays  int
	CriticalAfterDays int
}

// DefaultFlagThresholds returns the thresholds used when a tenant has not
// configured its own.
func DefaultFlagThresholds() FlagThresholds {
	return FlagThresholds{
		WarningAfterDays:  7,
		CriticalAfterDays: 14,
	}
}

// Validate rejects malformed thresholds. Call this where the configuration
// enters the system.
func (t FlagThresholds) Validate() error {
	if t.WarningAfterDays <= 0 {
		return &shared.ValidationError{Field: "warning_after_days", Message: "must be positive"}
	}
	if t.CriticalAfterDays <= t.WarningAfterDays {
		return &shared.ValidationError{Field: "critical_after_days", Message: "must be greater than warning_after_days"}
	}
	return nil
}

// ClassifyFlag maps a member's last check-in to the tri-state risk flag.
// It is a pure function: callers pass now explicitly and must re-evaluate it
// on every read rather than caching the result.
//
// A nil lastCheckInAt means the member never attended and is maximum risk.
// Day differences use the whole-day floor of elapsed wall-clock time, and
// boundary days belong to the lower-risk band: daysSince == warningAfterDays
// is still fresh.
func ClassifyFlag(lastCheckInAt *time.Time, now time.Time, thresholds FlagThresholds) RiskFlag {
	if lastCheckInAt == nil {
		return FlagCritical
	}

	daysSince := timeutil.ElapsedWholeDays(*lastCheckInAt, now)

	switch {
	case daysSince <= thresholds.WarningAfterDays:
		return FlagFresh
	case daysSince <= thresholds.CriticalAfterDays:
		return FlagWarning
	default:
		return FlagCritical
	}
}
