package lifecycle

import (
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
)

// DisplayState is what the UI shows. It adds OVERTIME and NO_SHOW, which
// are never persisted.
type DisplayState string

const (
	DisplayBooked    DisplayState = "BOOKED"
	DisplayNoShow    DisplayState = "NO_SHOW"
	DisplayInUse     DisplayState = "INUSE"
	DisplayOvertime  DisplayState = "OVERTIME"
	DisplayComplete  DisplayState = "COMPLETE"
	DisplayCancelled DisplayState = "CANCELLED"
)

// Display derives the display state from the persisted status and now.
func Display(b *domain.Booking, now time.Time, c domain.Constraints) DisplayState {
	switch b.Status {
	case domain.StatusBooked:
		if CheckInRegion(now, b.StartTime, c) == RegionExpired {
			return DisplayNoShow
		}
		return DisplayBooked
	case domain.StatusInUse:
		if now.After(b.EndTime) {
			return DisplayOvertime
		}
		return DisplayInUse
	case domain.StatusComplete:
		return DisplayComplete
	default:
		return DisplayCancelled
	}
}

// ViewState is a snapshot of everything the UI re-renders on each tick.
type ViewState struct {
	Status                domain.Status
	Display               DisplayState
	CanCheckIn            bool
	CanCheckOut           bool
	CanCancel             bool
	CheckInRegion         Region
	CheckInOpensAt        time.Time
	CheckInClosesAt       time.Time
	AutoCancelAt          *time.Time
	OvertimeMinutes       float64
	ProjectedPenaltyHours float64
	PenaltyTier           Tier
}

// Evaluate computes the view for viewerID at now. It holds no timers; the
// caller decides how often to re-evaluate.
func Evaluate(b *domain.Booking, viewerID string, now time.Time, c domain.Constraints) ViewState {
	v := ViewState{
		Status:          b.Status,
		Display:         Display(b, now, c),
		CheckInRegion:   CheckInRegion(now, b.StartTime, c),
		CheckInOpensAt:  b.StartTime.Add(-c.CheckInBefore),
		CheckInClosesAt: b.StartTime.Add(c.CheckInAfter),
	}
	owner := b.IsOwner(viewerID)

	switch b.Status {
	case domain.StatusBooked:
		v.CanCheckIn = owner && v.CheckInRegion == RegionOpen
		v.CanCancel = owner
		at := AutoCancelAt(b, c)
		v.AutoCancelAt = &at
	case domain.StatusInUse:
		v.CanCheckOut = owner && CanCheckOut(b, now)
		v.OvertimeMinutes = OvertimeMinutes(b, now)
		v.PenaltyTier = TierFor(v.OvertimeMinutes, c)
		v.ProjectedPenaltyHours = PenaltyHours(v.OvertimeMinutes, c)
	case domain.StatusComplete:
		if b.CheckOutTime != nil {
			v.OvertimeMinutes = OvertimeMinutes(b, *b.CheckOutTime)
			v.PenaltyTier = TierFor(v.OvertimeMinutes, c)
		}
		v.ProjectedPenaltyHours = b.PenaltyHours
	}
	return v
}
