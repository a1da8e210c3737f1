package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/lifecycle"
	"github.com/diagnosis/evshare-bookings/internal/quota"
	"github.com/diagnosis/evshare-bookings/internal/validator"
)

// BookingRepository is the authoritative Postgres store for bookings and
// weekly quota. Every command re-checks its rules under row locks.
type BookingRepository interface {
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

type bookingRepository struct {
	pool *pgxpool.Pool
	c    domain.Constraints
	now  func() time.Time
}

func NewBookingRepository(pool *pgxpool.Pool, c domain.Constraints) BookingRepository {
	return &bookingRepository{pool: pool, c: c, now: time.Now}
}

const bookingCols = `id::text, group_id, vehicle_id, user_id,
start_time, end_time, status,
check_in_time, check_out_time, check_in_photos,
COALESCE(notes, ''), COALESCE(damage_report, ''), penalty_hours,
created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (*domain.Booking, error) {
	var (
		b      domain.Booking
		status string
	)
	err := row.Scan(
		&b.ID, &b.GroupID, &b.VehicleID, &b.UserID,
		&b.StartTime, &b.EndTime, &status,
		&b.CheckInTime, &b.CheckOutTime, &b.CheckInPhotos,
		&b.Notes, &b.DamageReport, &b.PenaltyHours,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st, ok := domain.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("booking %s has unknown status %q", b.ID, status)
	}
	b.Status = st
	localize(&b)
	return &b, nil
}

// localize moves every timestamp into the wire zone so week arithmetic and
// formatting agree with what clients send.
func localize(b *domain.Booking) {
	loc := domain.WireLocation()
	b.StartTime = b.StartTime.In(loc)
	b.EndTime = b.EndTime.In(loc)
	b.CreatedAt = b.CreatedAt.In(loc)
	b.UpdatedAt = b.UpdatedAt.In(loc)
	if b.CheckInTime != nil {
		t := b.CheckInTime.In(loc)
		b.CheckInTime = &t
	}
	if b.CheckOutTime != nil {
		t := b.CheckOutTime.In(loc)
		b.CheckOutTime = &t
	}
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *bookingRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *bookingRepository) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *bookingRepository) ListBookings(ctx context.Context, groupID, vehicleID string, from, to time.Time) ([]domain.Booking, error) {
	q := `SELECT ` + bookingCols + ` FROM bookings WHERE group_id=$1 AND vehicle_id=$2`
	args := []any{groupID, vehicleID}
	if !from.IsZero() {
		args = append(args, from)
		q += fmt.Sprintf(` AND end_time >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		q += fmt.Sprintf(` AND start_time <= $%d`, len(args))
	}
	q += ` ORDER BY start_time`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *bookingRepository) ListStaleBooked(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT ` + bookingCols + ` FROM bookings
	WHERE status='BOOKED' AND start_time < $1
	ORDER BY start_time LIMIT $2`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *bookingRepository) GetQuota(ctx context.Context, groupID, vehicleID, userID string) (*domain.QuotaSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	k := quotaKey{groupID, vehicleID, userID}
	share, err := loadShare(ctx, tx, k, false)
	if err != nil {
		return nil, err
	}
	ws := domain.WeekStart(r.now().In(domain.WireLocation()))
	row, err := ensureWeek(ctx, tx, k, ws, share.limit())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	snap := row.snapshot(share)
	return &snap, nil
}

func (r *bookingRepository) CreateBooking(ctx context.Context, req domain.CreateBookingReq) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The vehicle row lock serializes creates per vehicle, so the conflict
	// check below sees every committed booking.
	k := quotaKey{req.GroupID, req.VehicleID, req.UserID}
	share, err := loadShare(ctx, tx, k, true)
	if err != nil {
		return nil, err
	}

	now := r.now().In(domain.WireLocation())
	ws := domain.WeekStart(now)
	row, err := ensureWeek(ctx, tx, k, ws, share.limit())
	if err != nil {
		return nil, err
	}
	snap := row.snapshot(share)

	existing, err := r.neighbours(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	verdict := validator.Validate(validator.Input{
		Start:    req.StartTime,
		End:      req.EndTime,
		Now:      now,
		Existing: existing,
		Quota:    &snap,
	}, r.c)
	if err := verdict.Err(); err != nil {
		return nil, err
	}

	ap := quota.Apportion(ws, req.StartTime, req.EndTime)
	const ins = `INSERT INTO bookings (
		id, group_id, vehicle_id, user_id, start_time, end_time, status, notes,
		quota_week_start, hours_current_week, hours_next_week
	) VALUES ($1,$2,$3,$4,$5,$6,'BOOKED',NULLIF($7,''),$8,$9,$10)
	RETURNING ` + bookingCols
	b, err := scanBooking(tx.QueryRow(ctx, ins,
		uuid.NewString(), req.GroupID, req.VehicleID, req.UserID,
		req.StartTime, req.EndTime, req.Notes,
		ws, ap.CurrentHours(), ap.NextHours(),
	))
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := applyEntries(ctx, tx, k, debitEntries(ws, ap)); err != nil {
		return nil, fmt.Errorf("debit quota: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// neighbours returns the vehicle's bookings close enough to req to matter
// for the overlap and gap rules.
func (r *bookingRepository) neighbours(ctx context.Context, tx pgx.Tx, req domain.CreateBookingReq) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
	WHERE vehicle_id=$1 AND status <> 'CANCELLED' AND end_time >= $2 AND start_time <= $3`
	margin := r.c.MinGap + time.Minute
	rows, err := tx.Query(ctx, q, req.VehicleID, req.StartTime.Add(-margin), req.EndTime.Add(margin))
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func lockBooking(ctx context.Context, tx pgx.Tx, id string) (*domain.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1 FOR UPDATE`
	b, err := scanBooking(tx.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (r *bookingRepository) CheckIn(ctx context.Context, id, userID string, req domain.CheckInReq) (*domain.Booking, error) {
	return r.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, b domain.Booking) (*domain.Booking, error) {
		if !b.IsOwner(userID) {
			return nil, domain.ErrForbidden
		}
		t, err := lifecycle.CheckIn(b, req, r.c)
		if err != nil {
			return nil, err
		}
		const q = `UPDATE bookings
		SET status=$2, check_in_time=$3, check_in_photos=$4, notes=NULLIF($5,''), updated_at=now()
		WHERE id=$1 RETURNING ` + bookingCols
		nb := t.Booking
		return scanBooking(tx.QueryRow(ctx, q, id, nb.Status.String(), nb.CheckInTime, nb.CheckInPhotos, nb.Notes))
	})
}

func (r *bookingRepository) CheckOut(ctx context.Context, id, userID string, req domain.CheckOutReq) (*domain.Booking, error) {
	return r.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, b domain.Booking) (*domain.Booking, error) {
		if !b.IsOwner(userID) {
			return nil, domain.ErrForbidden
		}
		t, err := lifecycle.CheckOut(b, req, r.c)
		if err != nil {
			return nil, err
		}
		nb := t.Booking
		const q = `UPDATE bookings
		SET status=$2, check_out_time=$3, penalty_hours=$4, damage_report=NULLIF($5,''), updated_at=now()
		WHERE id=$1 RETURNING ` + bookingCols
		out, err := scanBooking(tx.QueryRow(ctx, q, id, nb.Status.String(), nb.CheckOutTime, nb.PenaltyHours, nb.DamageReport))
		if err != nil {
			return nil, err
		}

		if t.Effect.PenaltyHours > 0 {
			k := quotaKey{b.GroupID, b.VehicleID, b.UserID}
			share, err := loadShare(ctx, tx, k, false)
			if err != nil {
				return nil, err
			}
			entries := penaltyEntries(req.At, t.Effect.PenaltyHours)
			if _, err := ensureWeek(ctx, tx, k, entries[0].weekStart, share.limit()); err != nil {
				return nil, err
			}
			if err := applyEntries(ctx, tx, k, entries); err != nil {
				return nil, fmt.Errorf("charge penalty: %w", err)
			}
		}
		return out, nil
	})
}

func (r *bookingRepository) Cancel(ctx context.Context, id, userID string) (*domain.Booking, error) {
	return r.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, b domain.Booking) (*domain.Booking, error) {
		if _, err := lifecycle.Cancel(b, userID); err != nil {
			return nil, err
		}
		out, err := setCancelled(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := creditBack(ctx, tx, id, quotaKey{b.GroupID, b.VehicleID, b.UserID}); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (r *bookingRepository) Expire(ctx context.Context, id string, at time.Time) (*domain.Booking, error) {
	return r.transition(ctx, id, func(ctx context.Context, tx pgx.Tx, b domain.Booking) (*domain.Booking, error) {
		if _, err := lifecycle.Expire(b, at, r.c); err != nil {
			return nil, err
		}
		return setCancelled(ctx, tx, id)
	})
}

func setCancelled(ctx context.Context, tx pgx.Tx, id string) (*domain.Booking, error) {
	const q = `UPDATE bookings SET status='CANCELLED', updated_at=now() WHERE id=$1 RETURNING ` + bookingCols
	return scanBooking(tx.QueryRow(ctx, q, id))
}

// creditBack returns a cancelled booking's hours to the weeks they were
// charged to.
func creditBack(ctx context.Context, tx pgx.Tx, id string, k quotaKey) error {
	var (
		ws     time.Time
		hc, hn float64
	)
	const q = `SELECT quota_week_start, hours_current_week, hours_next_week FROM bookings WHERE id=$1`
	if err := tx.QueryRow(ctx, q, id).Scan(&ws, &hc, &hn); err != nil {
		return err
	}
	ws = ws.In(domain.WireLocation())

	var open bool
	if hn > 0 {
		var err error
		if open, err = weekExists(ctx, tx, k, nextWeek(ws)); err != nil {
			return fmt.Errorf("credit next week: %w", err)
		}
	}
	if err := applyEntries(ctx, tx, k, creditEntries(ws, hc, hn, open)); err != nil {
		return fmt.Errorf("credit quota: %w", err)
	}
	return nil
}

type transitionFunc func(ctx context.Context, tx pgx.Tx, b domain.Booking) (*domain.Booking, error)

func (r *bookingRepository) transition(ctx context.Context, id string, fn transitionFunc) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := lockBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	out, err := fn(ctx, tx, *b)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
