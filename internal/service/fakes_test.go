package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
)

type fakeBackend struct {
	mu        sync.Mutex
	bookings  map[string]*domain.Booking
	quota     domain.QuotaSnapshot
	seq       int
	createErr error
	// createGate, when set, blocks CreateBooking until it is closed.
	createGate chan struct{}
	expired    []string
	refreshes  int
}

func newFakeBackend(q domain.QuotaSnapshot) *fakeBackend {
	return &fakeBackend{bookings: map[string]*domain.Booking{}, quota: q}
}

func (f *fakeBackend) add(b domain.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := b
	f.bookings[b.ID] = &cp
}

func (f *fakeBackend) GetQuota(_ context.Context, _, _, _ string) (*domain.QuotaSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quota
	return &q, nil
}

func (f *fakeBackend) ListBookings(_ context.Context, groupID, vehicleID string, _, _ time.Time) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.GroupID == groupID && b.VehicleID == vehicleID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetBooking(_ context.Context, id string) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBackend) CreateBooking(_ context.Context, req domain.CreateBookingReq) (*domain.Booking, error) {
	if f.createGate != nil {
		<-f.createGate
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	b := &domain.Booking{
		ID:        fmt.Sprintf("b-%d", f.seq),
		GroupID:   req.GroupID,
		VehicleID: req.VehicleID,
		UserID:    req.UserID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    domain.StatusBooked,
		Notes:     req.Notes,
	}
	f.bookings[b.ID] = b
	f.quota.HoursUsed += b.Duration().Hours()
	cp := *b
	return &cp, nil
}

func (f *fakeBackend) update(id string, fn func(b *domain.Booking)) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	fn(b)
	cp := *b
	return &cp, nil
}

func (f *fakeBackend) CheckIn(_ context.Context, id, _ string, req domain.CheckInReq) (*domain.Booking, error) {
	return f.update(id, func(b *domain.Booking) {
		at := req.At
		b.Status = domain.StatusInUse
		b.CheckInTime = &at
		b.CheckInPhotos = req.Photos
	})
}

func (f *fakeBackend) CheckOut(_ context.Context, id, _ string, req domain.CheckOutReq) (*domain.Booking, error) {
	return f.update(id, func(b *domain.Booking) {
		at := req.At
		b.Status = domain.StatusComplete
		b.CheckOutTime = &at
		b.PenaltyHours = req.PenaltyHours
		b.DamageReport = req.DamageReport
	})
}

func (f *fakeBackend) Cancel(_ context.Context, id, _ string) (*domain.Booking, error) {
	return f.update(id, func(b *domain.Booking) { b.Status = domain.StatusCancelled })
}

func (f *fakeBackend) Expire(_ context.Context, id string, _ time.Time) (*domain.Booking, error) {
	f.mu.Lock()
	f.expired = append(f.expired, id)
	f.mu.Unlock()
	return f.update(id, func(b *domain.Booking) { b.Status = domain.StatusCancelled })
}

func (f *fakeBackend) ListStaleBooked(_ context.Context, cutoff time.Time, _ int) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.Status == domain.StatusBooked && b.StartTime.Before(cutoff) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBackend) Ping(context.Context) error { return nil }

type publishedEvent struct {
	subject string
	data    any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{subject, data})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.subject)
	}
	return out
}
