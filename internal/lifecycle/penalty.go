package lifecycle

import (
	"fmt"

	"github.com/diagnosis/evshare-bookings/internal/domain"
)

// Tier is the band of the late check-out schedule an overtime falls in.
type Tier int

const (
	TierNone Tier = iota
	TierWarning
	TierHalfHour
	TierFullHour
	TierLinear
)

// TierFor classifies minutes of overtime. Boundaries with the default
// CheckOutAfter: <=5 none, <15 warning, <=30 half hour, <60 one hour,
// >=60 linear.
func TierFor(overtimeMinutes float64, c domain.Constraints) Tier {
	switch {
	case overtimeMinutes <= c.CheckOutAfter.Minutes():
		return TierNone
	case overtimeMinutes < domain.PenaltyWarningMinutes:
		return TierWarning
	case overtimeMinutes <= domain.PenaltyHalfHourMinutes:
		return TierHalfHour
	case overtimeMinutes < domain.PenaltyLinearMinutes:
		return TierFullHour
	default:
		return TierLinear
	}
}

// PenaltyHours is the quota debited for checking out overtimeMinutes late.
func PenaltyHours(overtimeMinutes float64, c domain.Constraints) float64 {
	switch TierFor(overtimeMinutes, c) {
	case TierHalfHour:
		return domain.PenaltyHalfTierHours
	case TierFullHour:
		return domain.PenaltyFullTierHours
	case TierLinear:
		extra := (overtimeMinutes - domain.PenaltyLinearMinutes) / 60
		return c.Penalty.OvertimeBase + extra*c.Penalty.OvertimeRatePerHour
	default:
		return 0
	}
}

// PenaltyMessage is the user-facing summary of a check-out.
func PenaltyMessage(overtimeMinutes, penaltyHours float64, c domain.Constraints) string {
	switch TierFor(overtimeMinutes, c) {
	case TierNone:
		return "Checked out on time"
	case TierWarning:
		return fmt.Sprintf("Checked out %d minutes late. No penalty this time, please return the vehicle on time", int(overtimeMinutes))
	default:
		return fmt.Sprintf("Checked out %d minutes late. %s quota hours have been added as a penalty", int(overtimeMinutes), trimHours(penaltyHours))
	}
}

func trimHours(h float64) string {
	s := fmt.Sprintf("%.2f", h)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
