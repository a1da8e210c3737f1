package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/overlay"
	"github.com/diagnosis/evshare-bookings/pkg/events"
)

type fakeSubscriber struct {
	handlers map[string]func(*events.Message)
}

func (f *fakeSubscriber) Subscribe(subject string, handler func(*events.Message)) error {
	f.handlers[subject] = handler
	return nil
}

func (f *fakeSubscriber) deliver(t *testing.T, subject string, payload any) {
	t.Helper()
	h, ok := f.handlers[subject]
	if !ok {
		t.Fatalf("no handler for %s", subject)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	h(&events.Message{Subject: subject, Data: data})
}

func confirmedEntry(t *testing.T, ov *overlay.Overlay, id string) {
	t.Helper()
	b := domain.Booking{GroupID: "g1", VehicleID: "v1", UserID: "u1", StartTime: at(9, 10, 0), EndTime: at(9, 12, 0)}
	holdID, v := ov.Hold(nil, b, func([]domain.Booking) domain.Verdict { return domain.Accept() })
	if !v.Valid {
		t.Fatal("hold rejected")
	}
	b.ID = id
	b.Status = domain.StatusBooked
	ov.Reconcile(holdID, b)
}

func TestSubscribeInvalidations_DropsCancelledBooking(t *testing.T) {
	ov := overlay.New(time.Minute)
	sub := &fakeSubscriber{handlers: map[string]func(*events.Message){}}
	if err := SubscribeInvalidations(sub, ov); err != nil {
		t.Fatal(err)
	}

	confirmedEntry(t, ov, "b-remote")
	confirmedEntry(t, ov, "b-other")

	sub.deliver(t, events.BookingCanceled, events.BookingCanceledEvent{BookingID: "b-remote", UserID: "u1"})

	merged := ov.Merge("g1", "v1", nil)
	if len(merged) != 1 || merged[0].ID != "b-other" {
		t.Fatalf("merged %+v", merged)
	}

	sub.deliver(t, events.BookingExpired, events.BookingExpiredEvent{BookingID: "b-other"})
	if ov.Len() != 0 {
		t.Fatalf("overlay still holds %d entries", ov.Len())
	}
}

func TestSubscribeInvalidations_IgnoresMalformed(t *testing.T) {
	ov := overlay.New(time.Minute)
	sub := &fakeSubscriber{handlers: map[string]func(*events.Message){}}
	if err := SubscribeInvalidations(sub, ov); err != nil {
		t.Fatal(err)
	}
	confirmedEntry(t, ov, "b1")

	sub.handlers[events.BookingCanceled](&events.Message{Subject: events.BookingCanceled, Data: []byte("not json")})
	if ov.Len() != 1 {
		t.Fatal("malformed event removed an entry")
	}
}
