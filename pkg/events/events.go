package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/evshare-bookings/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
}

type Message struct {
	Subject string
	Data    []byte
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("evshare-bookings"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{Subject: msg.Subject, Data: msg.Data})
	})
	return err
}

func (n *NATSEventBus) Ping(ctx context.Context) error {
	if !n.conn.IsConnected() {
		return fmt.Errorf("nats connection %s", n.conn.Status())
	}
	return nil
}

func (n *NATSEventBus) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// NopPublisher drops every event. Used when NATS is disabled or unreachable.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

const (
	BookingCreated    = "booking.created"
	BookingCheckedIn  = "booking.checked_in"
	BookingCheckedOut = "booking.checked_out"
	BookingCanceled   = "booking.canceled"
	BookingExpired    = "booking.expired"
	QuotaPenalized    = "quota.penalized"
)

type BookingCreatedEvent struct {
	BookingID        string    `json:"booking_id"`
	GroupID          string    `json:"group_id"`
	VehicleID        string    `json:"vehicle_id"`
	UserID           string    `json:"user_id"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	HoursCurrentWeek float64   `json:"hours_current_week"`
	HoursNextWeek    float64   `json:"hours_next_week"`
	CreatedAt        time.Time `json:"created_at"`
}

type BookingCheckedInEvent struct {
	BookingID   string    `json:"booking_id"`
	UserID      string    `json:"user_id"`
	PhotoCount  int       `json:"photo_count"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

type BookingCheckedOutEvent struct {
	BookingID       string    `json:"booking_id"`
	UserID          string    `json:"user_id"`
	OvertimeMinutes int       `json:"overtime_minutes"`
	PenaltyHours    float64   `json:"penalty_hours"`
	DamageReported  bool      `json:"damage_reported"`
	CheckedOutAt    time.Time `json:"checked_out_at"`
}

type BookingCanceledEvent struct {
	BookingID     string    `json:"booking_id"`
	UserID        string    `json:"user_id"`
	CreditedHours float64   `json:"credited_hours"`
	CanceledAt    time.Time `json:"canceled_at"`
}

type BookingExpiredEvent struct {
	BookingID    string    `json:"booking_id"`
	UserID       string    `json:"user_id"`
	ForfeitHours float64   `json:"forfeit_hours"`
	ExpiredAt    time.Time `json:"expired_at"`
	AutoCancelAt time.Time `json:"auto_cancel_at"`
}

type QuotaPenalizedEvent struct {
	BookingID     string    `json:"booking_id"`
	UserID        string    `json:"user_id"`
	GroupID       string    `json:"group_id"`
	PenaltyHours  float64   `json:"penalty_hours"`
	WeekStartDate time.Time `json:"week_start_date"`
}
