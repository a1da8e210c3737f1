package domain

import "time"

// Booking is a single reservation of one vehicle by one co-owner. Bookings
// are never deleted; they end in COMPLETE or CANCELLED.
type Booking struct {
	ID            string
	GroupID       string
	VehicleID     string
	UserID        string
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
	CheckInTime   *time.Time
	CheckOutTime  *time.Time
	CheckInPhotos []string
	Notes         string
	DamageReport  string
	PenaltyHours  float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Duration of the reserved interval.
func (b *Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// IsOwner checks if the given user reserved this booking
func (b *Booking) IsOwner(userID string) bool {
	return userID != "" && b.UserID == userID
}

// BlocksSchedule reports whether the booking still occupies its slot for
// conflict checks.
func (b *Booking) BlocksSchedule() bool {
	return b.Status != StatusCancelled
}

// CreateBookingReq is the create command issued to the backend.
type CreateBookingReq struct {
	GroupID   string
	VehicleID string
	UserID    string
	StartTime time.Time
	EndTime   time.Time
	Notes     string
}

// CheckInReq carries the check-in evidence. At least one photo is required.
type CheckInReq struct {
	Photos []string
	Notes  string
	At     time.Time
}

// CheckOutReq carries the check-out time and the penalty computed locally.
type CheckOutReq struct {
	DamageReport string
	At           time.Time
	PenaltyHours float64
}

// BookingDTO is the JSON shape exchanged with the backend and the UI.
type BookingDTO struct {
	ID            string    `json:"id"`
	GroupID       string    `json:"groupId,omitempty"`
	VehicleID     string    `json:"vehicleId,omitempty"`
	UserID        string    `json:"userId"`
	StartTime     WireTime  `json:"startTime"`
	EndTime       WireTime  `json:"endTime"`
	Status        Status    `json:"status"`
	CheckInTime   *WireTime `json:"checkInTime,omitempty"`
	CheckOutTime  *WireTime `json:"checkOutTime,omitempty"`
	CheckInPhotos []string  `json:"checkInPhotos,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	DamageReport  string    `json:"damageReport,omitempty"`
	PenaltyHours  float64   `json:"penaltyHours,omitempty"`
}

func (b *Booking) ToDTO() BookingDTO {
	return BookingDTO{
		ID:            b.ID,
		GroupID:       b.GroupID,
		VehicleID:     b.VehicleID,
		UserID:        b.UserID,
		StartTime:     NewWireTime(b.StartTime),
		EndTime:       NewWireTime(b.EndTime),
		Status:        b.Status,
		CheckInTime:   WireTimePtr(b.CheckInTime),
		CheckOutTime:  WireTimePtr(b.CheckOutTime),
		CheckInPhotos: b.CheckInPhotos,
		Notes:         b.Notes,
		DamageReport:  b.DamageReport,
		PenaltyHours:  b.PenaltyHours,
	}
}

func (d *BookingDTO) ToBooking() Booking {
	return Booking{
		ID:            d.ID,
		GroupID:       d.GroupID,
		VehicleID:     d.VehicleID,
		UserID:        d.UserID,
		StartTime:     d.StartTime.Time,
		EndTime:       d.EndTime.Time,
		Status:        d.Status,
		CheckInTime:   d.CheckInTime.TimePtr(),
		CheckOutTime:  d.CheckOutTime.TimePtr(),
		CheckInPhotos: d.CheckInPhotos,
		Notes:         d.Notes,
		DamageReport:  d.DamageReport,
		PenaltyHours:  d.PenaltyHours,
	}
}
