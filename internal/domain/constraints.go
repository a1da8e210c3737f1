package domain

import "time"

// Constraints are the booking rules. They are configuration, not data.
type Constraints struct {
	MinAdvance      time.Duration
	MaxAdvanceDays  int
	MinGap          time.Duration
	CheckInBefore   time.Duration
	CheckInAfter    time.Duration
	CheckOutAfter   time.Duration
	AutoCancelGrace time.Duration
	Penalty         PenaltySchedule
}

// PenaltySchedule parameterizes the late check-out branch at and above one
// hour of overtime: OvertimeBase + (minutes-60)/60 * OvertimeRatePerHour.
// The sub-hour tiers are fixed.
type PenaltySchedule struct {
	OvertimeBase        float64
	OvertimeRatePerHour float64
}

// Penalty tier breakpoints, in minutes of overtime. The no-penalty margin
// below the warning tier is Constraints.CheckOutAfter.
const (
	PenaltyWarningMinutes  = 15.0
	PenaltyHalfHourMinutes = 30.0
	PenaltyLinearMinutes   = 60.0

	PenaltyHalfTierHours = 0.5
	PenaltyFullTierHours = 1.0
)

func DefaultConstraints() Constraints {
	return Constraints{
		MinAdvance:      15 * time.Minute,
		MaxAdvanceDays:  14,
		MinGap:          30 * time.Minute,
		CheckInBefore:   15 * time.Minute,
		CheckInAfter:    15 * time.Minute,
		CheckOutAfter:   5 * time.Minute,
		AutoCancelGrace: 5 * time.Minute,
		Penalty: PenaltySchedule{
			OvertimeBase:        1.0,
			OvertimeRatePerHour: 2.0,
		},
	}
}
