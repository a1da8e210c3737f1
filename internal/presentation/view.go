package presentation

import (
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/lifecycle"
)

// BookingView is the detail and list item payload sent to the UI.
type BookingView struct {
	Booking               domain.BookingDTO `json:"booking"`
	Display               string            `json:"display"`
	Label                 string            `json:"label"`
	Color                 string            `json:"color"`
	CanCheckIn            bool              `json:"canCheckIn"`
	CanCheckOut           bool              `json:"canCheckOut"`
	CanCancel             bool              `json:"canCancel"`
	CheckIn               *Progress         `json:"checkIn,omitempty"`
	AutoCancelAt          *domain.WireTime  `json:"autoCancelAt,omitempty"`
	OvertimeMinutes       int               `json:"overtimeMinutes,omitempty"`
	ProjectedPenaltyHours float64           `json:"projectedPenaltyHours,omitempty"`
	Mine                  bool              `json:"mine"`
}

// Build evaluates b at now for viewerID and renders it.
func Build(b *domain.Booking, viewerID string, now time.Time, c domain.Constraints) BookingView {
	vs := lifecycle.Evaluate(b, viewerID, now, c)
	v := BookingView{
		Booking:               b.ToDTO(),
		Display:               string(vs.Display),
		Label:                 DisplayLabel(vs.Display),
		Color:                 DisplayColor(vs.Display),
		CanCheckIn:            vs.CanCheckIn,
		CanCheckOut:           vs.CanCheckOut,
		CanCancel:             vs.CanCancel,
		OvertimeMinutes:       int(vs.OvertimeMinutes),
		ProjectedPenaltyHours: vs.ProjectedPenaltyHours,
		Mine:                  b.IsOwner(viewerID),
	}
	if b.Status == domain.StatusBooked {
		p := CheckInProgress(now, b.StartTime, c)
		v.CheckIn = &p
	}
	if vs.AutoCancelAt != nil {
		at := domain.NewWireTime(*vs.AutoCancelAt)
		v.AutoCancelAt = &at
	}
	return v
}

// BuildList renders bookings in the order given.
func BuildList(bookings []domain.Booking, viewerID string, now time.Time, c domain.Constraints) []BookingView {
	out := make([]BookingView, 0, len(bookings))
	for i := range bookings {
		out = append(out, Build(&bookings[i], viewerID, now, c))
	}
	return out
}
