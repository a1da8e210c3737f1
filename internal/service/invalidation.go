package service

import (
	"encoding/json"
	"fmt"

	"github.com/diagnosis/evshare-bookings/internal/overlay"
	"github.com/diagnosis/evshare-bookings/pkg/events"
	"github.com/diagnosis/evshare-bookings/pkg/logger"
	"github.com/diagnosis/evshare-bookings/pkg/metrics"
)

type bookingRef struct {
	BookingID string `json:"booking_id"`
}

// SubscribeInvalidations drops overlay entries for bookings that another
// instance cancelled or expired.
func SubscribeInvalidations(sub events.Subscriber, ov *overlay.Overlay) error {
	handler := func(msg *events.Message) {
		var ref bookingRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.BookingID == "" {
			logger.Warn("ignoring malformed booking event", "subject", msg.Subject, "error", err)
			return
		}
		if ov.Forget(ref.BookingID) {
			metrics.PendingHolds.Set(float64(ov.Len()))
			logger.Debug("overlay entry dropped", "subject", msg.Subject, "booking_id", ref.BookingID)
		}
	}
	for _, subject := range []string{events.BookingCanceled, events.BookingExpired} {
		if err := sub.Subscribe(subject, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
	}
	return nil
}
