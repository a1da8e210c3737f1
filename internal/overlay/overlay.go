// Package overlay keeps locally issued booking commands visible before the
// backend has confirmed them. An entry is pending until the backend answers,
// then either dropped (rollback) or kept as confirmed until a fresh backend
// listing includes it (reconcile).
package overlay

import (
	"sync"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/google/uuid"
)

type state int

const (
	statePending state = iota
	stateConfirmed
)

type entry struct {
	booking   domain.Booking
	state     state
	expiresAt time.Time
}

type scope struct{ groupID, vehicleID string }

// Overlay is safe for concurrent use.
type Overlay struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

func New(ttl time.Duration) *Overlay {
	return &Overlay{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Hold merges the pending entries for the candidate's group and vehicle into
// authoritative, runs check on the result and, if it passes, records the
// candidate as pending. Checking and recording happen under one lock so two
// local creates cannot both pass against the same slot.
func (o *Overlay) Hold(authoritative []domain.Booking, candidate domain.Booking, check func([]domain.Booking) domain.Verdict) (string, domain.Verdict) {
	o.mu.Lock()
	defer o.mu.Unlock()

	merged := o.mergeLocked(scope{candidate.GroupID, candidate.VehicleID}, authoritative)
	v := check(merged)
	if !v.Valid {
		return "", v
	}

	id := "pending-" + uuid.NewString()
	candidate.ID = id
	candidate.Status = domain.StatusBooked
	o.entries[id] = &entry{booking: candidate, state: statePending, expiresAt: o.now().Add(o.ttl)}
	return id, v
}

// Reconcile replaces a pending entry with the backend's booking. The entry
// stays visible until a listing that includes it is merged.
func (o *Overlay) Reconcile(holdID string, confirmed domain.Booking) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[holdID]
	if !ok {
		return
	}
	e.booking = confirmed
	e.state = stateConfirmed
	e.expiresAt = o.now().Add(o.ttl)
}

// Rollback drops a pending entry after the backend rejected the command.
func (o *Overlay) Rollback(holdID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, holdID)
}

// Forget drops any entry for bookingID, typically after the booking was
// cancelled here or on another instance.
func (o *Overlay) Forget(bookingID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, e := range o.entries {
		if e.booking.ID == bookingID {
			delete(o.entries, id)
			return true
		}
	}
	return false
}

// Merge returns authoritative plus any local entries for the same group and
// vehicle that it does not contain yet.
func (o *Overlay) Merge(groupID, vehicleID string, authoritative []domain.Booking) []domain.Booking {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mergeLocked(scope{groupID, vehicleID}, authoritative)
}

// Len reports the number of live entries.
func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

func (o *Overlay) mergeLocked(sc scope, authoritative []domain.Booking) []domain.Booking {
	seen := make(map[string]struct{}, len(authoritative))
	for i := range authoritative {
		seen[authoritative[i].ID] = struct{}{}
	}

	now := o.now()
	merged := append([]domain.Booking(nil), authoritative...)
	for id, e := range o.entries {
		if now.After(e.expiresAt) {
			delete(o.entries, id)
			continue
		}
		if e.booking.GroupID != sc.groupID || e.booking.VehicleID != sc.vehicleID {
			continue
		}
		if e.state == stateConfirmed {
			if _, ok := seen[e.booking.ID]; ok {
				delete(o.entries, id)
				continue
			}
		}
		merged = append(merged, e.booking)
	}
	return merged
}
