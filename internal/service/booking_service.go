package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/lifecycle"
	"github.com/diagnosis/evshare-bookings/internal/overlay"
	"github.com/diagnosis/evshare-bookings/internal/presentation"
	"github.com/diagnosis/evshare-bookings/internal/quota"
	"github.com/diagnosis/evshare-bookings/internal/validator"
	"github.com/diagnosis/evshare-bookings/pkg/events"
	"github.com/diagnosis/evshare-bookings/pkg/logger"
	"github.com/diagnosis/evshare-bookings/pkg/metrics"
)

const staleBatchSize = 100

type BookingService interface {
	Validate(ctx context.Context, req SlotReq) (*ValidationResult, error)
	Create(ctx context.Context, req SlotReq) (*domain.Booking, error)
	Get(ctx context.Context, id, viewerID string) (*presentation.BookingView, error)
	List(ctx context.Context, groupID, vehicleID, viewerID string) ([]presentation.BookingView, error)
	Quota(ctx context.Context, groupID, vehicleID, userID string) (*domain.QuotaSnapshot, error)
	CheckIn(ctx context.Context, id, userID string, photos []string, notes string) (*domain.Booking, error)
	CheckOut(ctx context.Context, id, userID, damageReport string) (*CheckOutResult, error)
	Cancel(ctx context.Context, id, userID string) (*domain.Booking, error)
	ExpireStale(ctx context.Context) (int, error)
}

// SlotReq is a proposed reservation.
type SlotReq struct {
	GroupID   string
	VehicleID string
	UserID    string
	Start     time.Time
	End       time.Time
	Notes     string
}

type ValidationResult struct {
	Verdict          domain.Verdict
	Quota            *domain.QuotaSnapshot
	HoursCurrentWeek float64
	HoursNextWeek    float64
}

type CheckOutResult struct {
	Booking         *domain.Booking
	PenaltyHours    float64
	OvertimeMinutes float64
	Message         string
}

type Option func(*bookingService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *bookingService) { s.now = now }
}

type bookingService struct {
	backend Backend
	events  events.Publisher
	overlay *overlay.Overlay
	c       domain.Constraints
	now     func() time.Time
}

func NewBookingService(backend Backend, publisher events.Publisher, ov *overlay.Overlay, c domain.Constraints, opts ...Option) BookingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &bookingService{
		backend: backend,
		events:  publisher,
		overlay: ov,
		c:       c,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// refresh fetches quota and the vehicle's bookings around [from, to]
// concurrently. Validation never runs on cached data.
func (s *bookingService) refresh(ctx context.Context, req SlotReq, from, to time.Time) (*domain.QuotaSnapshot, []domain.Booking, error) {
	var (
		q        *domain.QuotaSnapshot
		bookings []domain.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		q, err = s.backend.GetQuota(gctx, req.GroupID, req.VehicleID, req.UserID)
		if err != nil {
			return fmt.Errorf("refresh quota: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bookings, err = s.backend.ListBookings(gctx, req.GroupID, req.VehicleID, from, to)
		if err != nil {
			return fmt.Errorf("refresh bookings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return q, bookings, nil
}

// window is the span of existing bookings that can affect req. Callers
// precheck req first, so both times are set.
func (s *bookingService) window(req SlotReq) (time.Time, time.Time) {
	margin := s.c.MinGap + time.Minute
	return req.Start.Add(-margin), req.End.Add(margin)
}

func (s *bookingService) input(req SlotReq, now time.Time, existing []domain.Booking, q *domain.QuotaSnapshot) validator.Input {
	return validator.Input{
		Start:    req.Start,
		End:      req.End,
		Now:      now,
		Existing: existing,
		Quota:    q,
	}
}

func recordVerdict(v domain.Verdict) {
	label := metrics.RuleAccepted
	if !v.Valid {
		label = string(v.Rule)
	}
	metrics.ValidationsTotal.WithLabelValues(label).Inc()
}

func (s *bookingService) Validate(ctx context.Context, req SlotReq) (*ValidationResult, error) {
	if v := validator.Precheck(req.Start, req.End, s.now(), s.c); !v.Valid {
		recordVerdict(v)
		return &ValidationResult{Verdict: v}, nil
	}
	from, to := s.window(req)
	q, bookings, err := s.refresh(ctx, req, from, to)
	if err != nil {
		return nil, err
	}
	merged := s.overlay.Merge(req.GroupID, req.VehicleID, bookings)
	v := validator.Validate(s.input(req, s.now(), merged, q), s.c)
	recordVerdict(v)

	res := &ValidationResult{Verdict: v, Quota: q}
	if v.Valid && q != nil {
		ap := quota.Apportion(q.WeekStartDate, req.Start, req.End)
		res.HoursCurrentWeek, res.HoursNextWeek = ap.CurrentHours(), ap.NextHours()
	}
	return res, nil
}

// Create re-validates against freshly fetched data, holds the slot in the
// overlay while the backend commits, then reconciles or rolls back.
func (s *bookingService) Create(ctx context.Context, req SlotReq) (*domain.Booking, error) {
	if v := validator.Precheck(req.Start, req.End, s.now(), s.c); !v.Valid {
		recordVerdict(v)
		metrics.CommandsTotal.WithLabelValues("create", metrics.OutcomeRejected).Inc()
		return nil, v.Err()
	}
	from, to := s.window(req)
	q, bookings, err := s.refresh(ctx, req, from, to)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("create", metrics.OutcomeFailed).Inc()
		return nil, err
	}

	now := s.now()
	candidate := domain.Booking{
		GroupID:   req.GroupID,
		VehicleID: req.VehicleID,
		UserID:    req.UserID,
		StartTime: req.Start,
		EndTime:   req.End,
		Notes:     req.Notes,
	}
	holdID, v := s.overlay.Hold(bookings, candidate, func(existing []domain.Booking) domain.Verdict {
		return validator.Validate(s.input(req, now, existing, q), s.c)
	})
	recordVerdict(v)
	if !v.Valid {
		metrics.CommandsTotal.WithLabelValues("create", metrics.OutcomeRejected).Inc()
		logger.InfoContext(ctx, "booking rejected", "rule", v.Rule, "reason", v.Reason)
		return nil, v.Err()
	}
	metrics.PendingHolds.Set(float64(s.overlay.Len()))

	b, err := s.backend.CreateBooking(ctx, domain.CreateBookingReq{
		GroupID:   req.GroupID,
		VehicleID: req.VehicleID,
		UserID:    req.UserID,
		StartTime: req.Start,
		EndTime:   req.End,
		Notes:     req.Notes,
	})
	if err != nil {
		s.overlay.Rollback(holdID)
		metrics.PendingHolds.Set(float64(s.overlay.Len()))
		metrics.CommandsTotal.WithLabelValues("create", metrics.OutcomeFailed).Inc()
		logger.ErrorContext(ctx, "create booking failed", "error", err)
		return nil, err
	}
	s.overlay.Reconcile(holdID, *b)
	metrics.CommandsTotal.WithLabelValues("create", metrics.OutcomeOK).Inc()

	ctx = logger.WithBooking(ctx, b.ID)
	logger.InfoContext(ctx, "booking created", "start", b.StartTime, "end", b.EndTime)

	evt := events.BookingCreatedEvent{
		BookingID: b.ID,
		GroupID:   b.GroupID,
		VehicleID: b.VehicleID,
		UserID:    b.UserID,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		CreatedAt: now,
	}
	if q != nil {
		ap := quota.Apportion(q.WeekStartDate, b.StartTime, b.EndTime)
		evt.HoursCurrentWeek, evt.HoursNextWeek = ap.CurrentHours(), ap.NextHours()
	}
	s.publish(ctx, events.BookingCreated, evt)
	return b, nil
}

func (s *bookingService) load(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := s.backend.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b == nil {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (s *bookingService) Get(ctx context.Context, id, viewerID string) (*presentation.BookingView, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	v := presentation.Build(b, viewerID, s.now(), s.c)
	return &v, nil
}

// List returns this week's and next week's bookings for a vehicle,
// including local creates the backend listing does not show yet.
func (s *bookingService) List(ctx context.Context, groupID, vehicleID, viewerID string) ([]presentation.BookingView, error) {
	now := s.now()
	from := domain.WeekStart(now.In(domain.WireLocation()))
	to := domain.AddWeeks(from, 2)
	bookings, err := s.backend.ListBookings(ctx, groupID, vehicleID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	merged := s.overlay.Merge(groupID, vehicleID, bookings)
	return presentation.BuildList(merged, viewerID, now, s.c), nil
}

func (s *bookingService) Quota(ctx context.Context, groupID, vehicleID, userID string) (*domain.QuotaSnapshot, error) {
	q, err := s.backend.GetQuota(ctx, groupID, vehicleID, userID)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return q, nil
}

func (s *bookingService) CheckIn(ctx context.Context, id, userID string, photos []string, notes string) (*domain.Booking, error) {
	photos = compact(photos)
	if len(photos) == 0 {
		return nil, domain.ErrPhotoRequired
	}
	ctx = logger.WithBooking(ctx, id)

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsOwner(userID) {
		return nil, domain.ErrForbidden
	}

	req := domain.CheckInReq{Photos: photos, Notes: strings.TrimSpace(notes), At: s.now()}
	if _, err := lifecycle.CheckIn(*b, req, s.c); err != nil {
		metrics.CommandsTotal.WithLabelValues("check_in", metrics.OutcomeRejected).Inc()
		return nil, err
	}

	updated, err := s.backend.CheckIn(ctx, id, userID, req)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("check_in", metrics.OutcomeFailed).Inc()
		logger.ErrorContext(ctx, "check-in failed", "error", err)
		return nil, err
	}
	metrics.CommandsTotal.WithLabelValues("check_in", metrics.OutcomeOK).Inc()
	logger.InfoContext(ctx, "booking checked in", "photos", len(photos))

	s.publish(ctx, events.BookingCheckedIn, events.BookingCheckedInEvent{
		BookingID:   updated.ID,
		UserID:      userID,
		PhotoCount:  len(photos),
		CheckedInAt: req.At,
	})
	return updated, nil
}

func (s *bookingService) CheckOut(ctx context.Context, id, userID, damageReport string) (*CheckOutResult, error) {
	ctx = logger.WithBooking(ctx, id)

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsOwner(userID) {
		return nil, domain.ErrForbidden
	}

	now := s.now()
	t, err := lifecycle.CheckOut(*b, domain.CheckOutReq{DamageReport: strings.TrimSpace(damageReport), At: now}, s.c)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("check_out", metrics.OutcomeRejected).Inc()
		return nil, err
	}

	updated, err := s.backend.CheckOut(ctx, id, userID, domain.CheckOutReq{
		DamageReport: t.Booking.DamageReport,
		At:           now,
		PenaltyHours: t.Effect.PenaltyHours,
	})
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("check_out", metrics.OutcomeFailed).Inc()
		logger.ErrorContext(ctx, "check-out failed", "error", err)
		return nil, err
	}

	penalty := t.Effect.PenaltyHours
	if updated.PenaltyHours > 0 {
		penalty = updated.PenaltyHours
	}
	metrics.CommandsTotal.WithLabelValues("check_out", metrics.OutcomeOK).Inc()
	metrics.PenaltyHoursTotal.Add(penalty)
	logger.InfoContext(ctx, "booking checked out", "overtime_minutes", t.Effect.OvertimeMinutes, "penalty_hours", penalty)

	s.publish(ctx, events.BookingCheckedOut, events.BookingCheckedOutEvent{
		BookingID:       updated.ID,
		UserID:          userID,
		OvertimeMinutes: int(t.Effect.OvertimeMinutes),
		PenaltyHours:    penalty,
		DamageReported:  t.Booking.DamageReport != "",
		CheckedOutAt:    now,
	})
	if penalty > 0 {
		s.publish(ctx, events.QuotaPenalized, events.QuotaPenalizedEvent{
			BookingID:     updated.ID,
			UserID:        userID,
			GroupID:       b.GroupID,
			PenaltyHours:  penalty,
			WeekStartDate: domain.WeekStart(now.In(domain.WireLocation())),
		})
	}

	return &CheckOutResult{
		Booking:         updated,
		PenaltyHours:    penalty,
		OvertimeMinutes: t.Effect.OvertimeMinutes,
		Message:         lifecycle.PenaltyMessage(t.Effect.OvertimeMinutes, penalty, s.c),
	}, nil
}

func (s *bookingService) Cancel(ctx context.Context, id, userID string) (*domain.Booking, error) {
	ctx = logger.WithBooking(ctx, id)

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := lifecycle.Cancel(*b, userID)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("cancel", metrics.OutcomeRejected).Inc()
		return nil, err
	}

	updated, err := s.backend.Cancel(ctx, id, userID)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("cancel", metrics.OutcomeFailed).Inc()
		logger.ErrorContext(ctx, "cancel failed", "error", err)
		return nil, err
	}
	metrics.CommandsTotal.WithLabelValues("cancel", metrics.OutcomeOK).Inc()
	s.forget(id)
	logger.InfoContext(ctx, "booking cancelled", "credited_hours", t.Effect.QuotaCreditHours)

	s.publish(ctx, events.BookingCanceled, events.BookingCanceledEvent{
		BookingID:     updated.ID,
		UserID:        userID,
		CreditedHours: t.Effect.QuotaCreditHours,
		CanceledAt:    s.now(),
	})
	return updated, nil
}

// ExpireStale cancels booked reservations whose check-in grace period has
// passed. Failures are collected so one bad booking does not stop the sweep.
func (s *bookingService) ExpireStale(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-(s.c.CheckInAfter + s.c.AutoCancelGrace))
	stale, err := s.backend.ListStaleBooked(ctx, cutoff, staleBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale bookings: %w", err)
	}

	var (
		expired int
		errs    []error
	)
	for i := range stale {
		b := stale[i]
		if _, err := lifecycle.Expire(b, now, s.c); err != nil {
			continue
		}
		bctx := logger.WithBooking(ctx, b.ID)
		if _, err := s.backend.Expire(bctx, b.ID, now); err != nil {
			logger.ErrorContext(bctx, "auto-cancel failed", "error", err)
			errs = append(errs, fmt.Errorf("expire %s: %w", b.ID, err))
			continue
		}
		expired++
		metrics.ExpiredTotal.Inc()
		s.forget(b.ID)
		logger.InfoContext(bctx, "booking auto-cancelled, no check-in", "forfeit_hours", b.Duration().Hours())
		s.publish(bctx, events.BookingExpired, events.BookingExpiredEvent{
			BookingID:    b.ID,
			UserID:       b.UserID,
			ForfeitHours: b.Duration().Hours(),
			ExpiredAt:    now,
			AutoCancelAt: lifecycle.AutoCancelAt(&b, s.c),
		})
	}
	return expired, errors.Join(errs...)
}

func (s *bookingService) forget(id string) {
	if s.overlay.Forget(id) {
		metrics.PendingHolds.Set(float64(s.overlay.Len()))
	}
}

func (s *bookingService) publish(ctx context.Context, subject string, payload any) {
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
