// Package lifecycle is the booking state machine:
//
//	BOOKED --checkIn--> INUSE --checkOut--> COMPLETE
//	BOOKED --cancel/expire--> CANCELLED
//
// OVERTIME is a display state layered on INUSE. Transitions are pure: they
// return the post-state and its side effects and leave persistence to the
// caller, which must confirm them with the backend.
package lifecycle

import (
	"fmt"
	"math"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
)

const clockLayout = "15:04"

// Effect describes what a transition does to the co-owner's quota.
type Effect struct {
	QuotaCreditHours float64
	PenaltyHours     float64
	OvertimeMinutes  float64
}

// Transition is the result of a permitted command.
type Transition struct {
	From    domain.Status
	To      domain.Status
	Booking domain.Booking
	Effect  Effect
	Message string
}

// Region is where an instant falls relative to a booking's check-in window.
type Region int

const (
	RegionTooEarly Region = iota
	RegionOpen
	RegionExpired
)

func (r Region) String() string {
	switch r {
	case RegionTooEarly:
		return "too_early"
	case RegionOpen:
		return "active"
	default:
		return "expired"
	}
}

// CheckInRegion places now against [start-CheckInBefore, start+CheckInAfter].
func CheckInRegion(now, start time.Time, c domain.Constraints) Region {
	switch {
	case now.Before(start.Add(-c.CheckInBefore)):
		return RegionTooEarly
	case now.After(start.Add(c.CheckInAfter)):
		return RegionExpired
	default:
		return RegionOpen
	}
}

// AutoCancelAt is when an un-checked-in booking is forfeited.
func AutoCancelAt(b *domain.Booking, c domain.Constraints) time.Time {
	return b.StartTime.Add(c.CheckInAfter + c.AutoCancelGrace)
}

// OvertimeMinutes is how far past EndTime now is, never negative.
func OvertimeMinutes(b *domain.Booking, now time.Time) float64 {
	return math.Max(0, now.Sub(b.EndTime).Minutes())
}

func guard(op string, b *domain.Booking, want domain.Status) error {
	if b.Status == want {
		return nil
	}
	msg := fmt.Sprintf("booking is %s", b.Status)
	if b.Status.IsTerminal() {
		msg = fmt.Sprintf("booking is already %s", b.Status)
	}
	return &domain.TransitionError{Op: op, From: b.Status, Code: domain.CodeInvalidState, Message: msg}
}

// CheckIn moves BOOKED to INUSE inside the check-in window. Photo evidence
// is the caller's precondition.
func CheckIn(b domain.Booking, req domain.CheckInReq, c domain.Constraints) (Transition, error) {
	if err := guard("check-in", &b, domain.StatusBooked); err != nil {
		return Transition{}, err
	}
	loc := domain.WireLocation()
	switch CheckInRegion(req.At, b.StartTime, c) {
	case RegionTooEarly:
		return Transition{}, &domain.TransitionError{
			Op: "check-in", From: b.Status, Code: domain.CodeTooEarly,
			Message: fmt.Sprintf("too early to check in, check-in opens at %s",
				b.StartTime.Add(-c.CheckInBefore).In(loc).Format(clockLayout)),
		}
	case RegionExpired:
		return Transition{}, &domain.TransitionError{
			Op: "check-in", From: b.Status, Code: domain.CodeWindowExpired,
			Message: fmt.Sprintf("check-in window closed at %s, the booking will be cancelled automatically",
				b.StartTime.Add(c.CheckInAfter).In(loc).Format(clockLayout)),
		}
	}

	at := req.At
	next := b
	next.Status = domain.StatusInUse
	next.CheckInTime = &at
	next.CheckInPhotos = append([]string(nil), req.Photos...)
	if req.Notes != "" {
		next.Notes = req.Notes
	}
	return Transition{From: b.Status, To: next.Status, Booking: next, Message: "Checked in"}, nil
}

// CanCheckOut is the UI guard: check-out is offered once the booking is
// due. CheckOut itself does not enforce it.
func CanCheckOut(b *domain.Booking, now time.Time) bool {
	return b.Status == domain.StatusInUse && !now.Before(b.EndTime)
}

// CheckOut moves INUSE to COMPLETE and computes the late-return penalty.
func CheckOut(b domain.Booking, req domain.CheckOutReq, c domain.Constraints) (Transition, error) {
	if err := guard("check-out", &b, domain.StatusInUse); err != nil {
		return Transition{}, err
	}
	if b.CheckInTime != nil && req.At.Before(*b.CheckInTime) {
		return Transition{}, &domain.TransitionError{
			Op: "check-out", From: b.Status, Code: domain.CodeInvalidState,
			Message: "check-out time is before check-in time",
		}
	}

	overtime := OvertimeMinutes(&b, req.At)
	penalty := PenaltyHours(overtime, c)

	at := req.At
	next := b
	next.Status = domain.StatusComplete
	next.CheckOutTime = &at
	next.PenaltyHours = penalty
	if req.DamageReport != "" {
		next.DamageReport = req.DamageReport
	}
	return Transition{
		From:    b.Status,
		To:      next.Status,
		Booking: next,
		Effect:  Effect{PenaltyHours: penalty, OvertimeMinutes: overtime},
		Message: PenaltyMessage(overtime, penalty, c),
	}, nil
}

// Cancel moves BOOKED to CANCELLED for the reserving user and credits the
// reserved hours back.
func Cancel(b domain.Booking, userID string) (Transition, error) {
	if err := guard("cancel", &b, domain.StatusBooked); err != nil {
		return Transition{}, err
	}
	if !b.IsOwner(userID) {
		return Transition{}, &domain.TransitionError{
			Op: "cancel", From: b.Status, Code: domain.CodeNotOwner,
			Message: "only the user who made the booking can cancel it",
		}
	}
	next := b
	next.Status = domain.StatusCancelled
	return Transition{
		From:    b.Status,
		To:      next.Status,
		Booking: next,
		Effect:  Effect{QuotaCreditHours: b.Duration().Hours()},
		Message: "Booking cancelled",
	}, nil
}

// Expire cancels a booking nobody checked in to once the grace period after
// the check-in window has passed. The reserved hours are forfeited.
func Expire(b domain.Booking, now time.Time, c domain.Constraints) (Transition, error) {
	if err := guard("expire", &b, domain.StatusBooked); err != nil {
		return Transition{}, err
	}
	if !now.After(AutoCancelAt(&b, c)) {
		return Transition{}, &domain.TransitionError{
			Op: "expire", From: b.Status, Code: domain.CodeNotYetDue,
			Message: "check-in grace period has not elapsed",
		}
	}
	next := b
	next.Status = domain.StatusCancelled
	return Transition{
		From:    b.Status,
		To:      next.Status,
		Booking: next,
		Message: "Booking cancelled automatically: no check-in",
	}, nil
}
