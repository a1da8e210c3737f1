package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/quota"
)

type quotaColumn string

const (
	colUsed    quotaColumn = "hours_used"
	colDebt    quotaColumn = "hours_debt"
	colAdvance quotaColumn = "hours_advance"
)

// quotaEntry is one adjustment to a quota_weeks row. Columns never go
// below zero.
type quotaEntry struct {
	weekStart time.Time
	column    quotaColumn
	delta     float64
}

// debitEntries charges a new booking: this week's part to used, next
// week's part to this week's advance.
func debitEntries(ws time.Time, ap quota.Apportionment) []quotaEntry {
	var out []quotaEntry
	if hc := ap.CurrentHours(); hc > 0 {
		out = append(out, quotaEntry{ws, colUsed, hc})
	}
	if hn := ap.NextHours(); hn > 0 {
		out = append(out, quotaEntry{ws, colAdvance, hn})
	}
	return out
}

// creditEntries reverses debitEntries for a cancelled booking charged in
// week ws. Once next week's row exists the advance has already moved into
// its used hours, so that is where the credit goes.
func creditEntries(ws time.Time, hc, hn float64, nextWeekOpen bool) []quotaEntry {
	var out []quotaEntry
	if hc > 0 {
		out = append(out, quotaEntry{ws, colUsed, -hc})
	}
	if hn > 0 {
		if nextWeekOpen {
			out = append(out, quotaEntry{nextWeek(ws), colUsed, -hn})
		} else {
			out = append(out, quotaEntry{ws, colAdvance, -hn})
		}
	}
	return out
}

// penaltyEntries adds late check-out hours to the debt of the week the
// check-out happened in.
func penaltyEntries(at time.Time, hours float64) []quotaEntry {
	if hours <= 0 {
		return nil
	}
	return []quotaEntry{{domain.WeekStart(at.In(domain.WireLocation())), colDebt, hours}}
}

func applyEntries(ctx context.Context, tx pgx.Tx, k quotaKey, entries []quotaEntry) error {
	for _, e := range entries {
		q := fmt.Sprintf(`UPDATE quota_weeks SET %[1]s = GREATEST(0, %[1]s + $5), updated_at = now()
		WHERE group_id=$1 AND vehicle_id=$2 AND user_id=$3 AND week_start=$4`, e.column)
		if _, err := tx.Exec(ctx, q, k.groupID, k.vehicleID, k.userID, e.weekStart, e.delta); err != nil {
			return fmt.Errorf("adjust %s for week %s: %w", e.column, e.weekStart.Format(time.DateOnly), err)
		}
	}
	return nil
}

func weekExists(ctx context.Context, tx pgx.Tx, k quotaKey, ws time.Time) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM quota_weeks
	WHERE group_id=$1 AND vehicle_id=$2 AND user_id=$3 AND week_start=$4)`
	var ok bool
	err := tx.QueryRow(ctx, q, k.groupID, k.vehicleID, k.userID, ws).Scan(&ok)
	return ok, err
}
