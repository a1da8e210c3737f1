package service

import (
	"context"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
)

// Backend is the authoritative store of bookings and quota. GetBooking
// returns nil, nil when the booking does not exist.
type Backend interface {
	GetQuota(ctx context.Context, groupID, vehicleID, userID string) (*domain.QuotaSnapshot, error)
	ListBookings(ctx context.Context, groupID, vehicleID string, from, to time.Time) ([]domain.Booking, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	CreateBooking(ctx context.Context, req domain.CreateBookingReq) (*domain.Booking, error)
	CheckIn(ctx context.Context, id, userID string, req domain.CheckInReq) (*domain.Booking, error)
	CheckOut(ctx context.Context, id, userID string, req domain.CheckOutReq) (*domain.Booking, error)
	Cancel(ctx context.Context, id, userID string) (*domain.Booking, error)
	Expire(ctx context.Context, id string, at time.Time) (*domain.Booking, error)
	ListStaleBooked(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
	Ping(ctx context.Context) error
}
