package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/evshare-bookings/internal/domain"
)

type quotaKey struct {
	groupID, vehicleID, userID string
}

// share is a co-owner's stake in a vehicle.
type share struct {
	weeklyQuotaHours float64
	ownershipRate    float64
}

func (s share) limit() float64 {
	return domain.HoursLimitFor(s.weeklyQuotaHours, s.ownershipRate)
}

// weekRow is one quota_weeks row.
type weekRow struct {
	weekStart    time.Time
	hoursUsed    float64
	hoursDebt    float64
	hoursAdvance float64
}

func (w weekRow) snapshot(s share) domain.QuotaSnapshot {
	return domain.QuotaSnapshot{
		WeekStartDate:    w.weekStart,
		HoursLimit:       s.limit(),
		HoursUsed:        w.hoursUsed,
		HoursDebt:        w.hoursDebt,
		HoursAdvance:     w.hoursAdvance,
		OwnershipRate:    s.ownershipRate,
		WeeklyQuotaHours: s.weeklyQuotaHours,
	}
}

// carryOver opens the week after prev: hours reserved in advance become
// used, and consumption beyond the limit becomes debt.
func carryOver(prev weekRow, limit float64) weekRow {
	return weekRow{
		weekStart: nextWeek(prev.weekStart),
		hoursUsed: prev.hoursAdvance,
		hoursDebt: math.Max(0, prev.hoursUsed+prev.hoursDebt-limit),
	}
}

// rollForward carries from the latest stored week up to ws. Once a week
// carries nothing the chain is empty.
func rollForward(latest weekRow, ws time.Time, limit float64) weekRow {
	row := latest
	for row.weekStart.Before(ws) {
		row = carryOver(row, limit)
		if row.hoursUsed == 0 && row.hoursDebt == 0 {
			return weekRow{weekStart: ws}
		}
	}
	row.weekStart = ws
	return row
}

func nextWeek(ws time.Time) time.Time {
	return domain.AddWeeks(ws, 1)
}

// loadShare reads the co-owner's stake. With lockVehicle it also takes the
// vehicle row lock.
func loadShare(ctx context.Context, tx pgx.Tx, k quotaKey, lockVehicle bool) (share, error) {
	q := `SELECT v.weekly_quota_hours, c.ownership_rate
	FROM vehicles v
	JOIN co_owners c ON c.vehicle_id = v.id AND c.group_id = v.group_id
	WHERE v.group_id=$1 AND v.id=$2 AND c.user_id=$3`
	if lockVehicle {
		q += ` FOR UPDATE OF v`
	}
	var s share
	err := tx.QueryRow(ctx, q, k.groupID, k.vehicleID, k.userID).Scan(&s.weeklyQuotaHours, &s.ownershipRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return share{}, domain.ErrForbidden
	}
	if err != nil {
		return share{}, fmt.Errorf("load ownership share: %w", err)
	}
	return s, nil
}

// ensureWeek returns the locked quota row for ws, creating it from the
// latest earlier week when this is the first access of the week.
func ensureWeek(ctx context.Context, tx pgx.Tx, k quotaKey, ws time.Time, limit float64) (weekRow, error) {
	const sel = `SELECT week_start, hours_used, hours_debt, hours_advance FROM quota_weeks
	WHERE group_id=$1 AND vehicle_id=$2 AND user_id=$3 AND week_start=$4 FOR UPDATE`

	row, err := scanWeek(tx.QueryRow(ctx, sel, k.groupID, k.vehicleID, k.userID, ws))
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return weekRow{}, err
	}

	const latest = `SELECT week_start, hours_used, hours_debt, hours_advance FROM quota_weeks
	WHERE group_id=$1 AND vehicle_id=$2 AND user_id=$3 AND week_start < $4
	ORDER BY week_start DESC LIMIT 1`
	fresh := weekRow{weekStart: ws}
	prev, err := scanWeek(tx.QueryRow(ctx, latest, k.groupID, k.vehicleID, k.userID, ws))
	switch {
	case err == nil:
		fresh = rollForward(prev, ws, limit)
	case !errors.Is(err, pgx.ErrNoRows):
		return weekRow{}, err
	}

	const ins = `INSERT INTO quota_weeks (group_id, vehicle_id, user_id, week_start, hours_used, hours_debt, hours_advance)
	VALUES ($1,$2,$3,$4,$5,$6,0) ON CONFLICT DO NOTHING`
	if _, err := tx.Exec(ctx, ins, k.groupID, k.vehicleID, k.userID, ws, fresh.hoursUsed, fresh.hoursDebt); err != nil {
		return weekRow{}, fmt.Errorf("open quota week: %w", err)
	}
	return scanWeek(tx.QueryRow(ctx, sel, k.groupID, k.vehicleID, k.userID, ws))
}

func scanWeek(row pgx.Row) (weekRow, error) {
	var w weekRow
	if err := row.Scan(&w.weekStart, &w.hoursUsed, &w.hoursDebt, &w.hoursAdvance); err != nil {
		return weekRow{}, err
	}
	w.weekStart = w.weekStart.In(domain.WireLocation())
	return w, nil
}
