package domain

import (
	"math"
	"time"
)

// QuotaSnapshot is a co-owner's allowance for one (group, vehicle, user)
// as of WeekStartDate. It is refreshed from the backend before every
// validation and never mutated locally.
type QuotaSnapshot struct {
	WeekStartDate    time.Time
	HoursLimit       float64
	HoursUsed        float64
	HoursDebt        float64
	HoursAdvance     float64
	OwnershipRate    float64
	WeeklyQuotaHours float64
}

// HoursLimitFor derives a week's limit from the vehicle's weekly quota and
// the co-owner's ownership share in percent.
func HoursLimitFor(weeklyQuotaHours, ownershipRate float64) float64 {
	return weeklyQuotaHours * ownershipRate / 100
}

func (q *QuotaSnapshot) NextWeekStart() time.Time {
	return AddWeeks(q.WeekStartDate, 1)
}

// HorizonEnd is the last instant a booking may start at: the end of next week.
func (q *QuotaSnapshot) HorizonEnd() time.Time {
	return AddWeeks(q.WeekStartDate, 2)
}

func (q *QuotaSnapshot) RemainingHours() float64 {
	return q.HoursLimit - q.HoursUsed - q.HoursDebt
}

// ExcessDebt is the part of this week's consumption that overflows the
// limit and rolls into next week.
func (q *QuotaSnapshot) ExcessDebt() float64 {
	return math.Max(0, q.HoursUsed+q.HoursDebt-q.HoursLimit)
}

func (q *QuotaSnapshot) RemainingHoursNextWeek() float64 {
	return q.HoursLimit - q.ExcessDebt() - q.HoursAdvance
}

// QuotaDTO is the JSON shape of a snapshot as fetched from the backend.
type QuotaDTO struct {
	WeekStartDate          WireTime `json:"weekStartDate"`
	HoursLimit             float64  `json:"hoursLimit"`
	HoursUsed              float64  `json:"hoursUsed"`
	HoursDebt              float64  `json:"hoursDebt"`
	HoursAdvance           float64  `json:"hoursAdvance"`
	OwnershipRate          float64  `json:"ownershipRate"`
	WeeklyQuotaHours       float64  `json:"weeklyQuotaHours"`
	RemainingHours         float64  `json:"remainingHours"`
	RemainingHoursNextWeek float64  `json:"remainingHoursNextWeek"`
}

func (q *QuotaSnapshot) ToDTO() QuotaDTO {
	return QuotaDTO{
		WeekStartDate:          NewWireTime(q.WeekStartDate),
		HoursLimit:             q.HoursLimit,
		HoursUsed:              q.HoursUsed,
		HoursDebt:              q.HoursDebt,
		HoursAdvance:           q.HoursAdvance,
		OwnershipRate:          q.OwnershipRate,
		WeeklyQuotaHours:       q.WeeklyQuotaHours,
		RemainingHours:         q.RemainingHours(),
		RemainingHoursNextWeek: q.RemainingHoursNextWeek(),
	}
}

// ToSnapshot rebuilds a snapshot. A missing hoursLimit is derived from
// the weekly quota and ownership rate.
func (d *QuotaDTO) ToSnapshot() QuotaSnapshot {
	limit := d.HoursLimit
	if limit == 0 && d.WeeklyQuotaHours > 0 {
		limit = HoursLimitFor(d.WeeklyQuotaHours, d.OwnershipRate)
	}
	return QuotaSnapshot{
		WeekStartDate:    d.WeekStartDate.Time,
		HoursLimit:       limit,
		HoursUsed:        d.HoursUsed,
		HoursDebt:        d.HoursDebt,
		HoursAdvance:     d.HoursAdvance,
		OwnershipRate:    d.OwnershipRate,
		WeeklyQuotaHours: d.WeeklyQuotaHours,
	}
}

// WeekStart returns Monday 00:00 of the week containing t, in t's location.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// AddWeeks steps n calendar weeks. Across a DST change the result keeps the
// wall clock, so week starts stay at local midnight.
func AddWeeks(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}
