// Package quota decides whether a proposed interval fits a co-owner's
// weekly allowance, splitting intervals that straddle the week boundary.
package quota

import (
	"math"
	"strconv"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
)

// epsilon absorbs float noise from converting durations to hours.
const epsilon = 1e-9

// Apportionment is the part of an interval charged to each week. The two
// parts always sum to the interval's duration.
type Apportionment struct {
	CurrentWeek time.Duration
	NextWeek    time.Duration
}

func (a Apportionment) CurrentHours() float64 { return a.CurrentWeek.Hours() }
func (a Apportionment) NextHours() float64    { return a.NextWeek.Hours() }
func (a Apportionment) Total() time.Duration  { return a.CurrentWeek + a.NextWeek }
func (a Apportionment) Spans() bool           { return a.CurrentWeek > 0 && a.NextWeek > 0 }

// Apportion splits [start,end) at the next calendar week start. Anything after the boundary
// is charged to next week, including time past the end of next week.
func Apportion(weekStart, start, end time.Time) Apportionment {
	boundary := domain.AddWeeks(weekStart, 1)
	switch {
	case !end.After(boundary):
		return Apportionment{CurrentWeek: end.Sub(start)}
	case !start.Before(boundary):
		return Apportionment{NextWeek: end.Sub(start)}
	default:
		return Apportionment{
			CurrentWeek: boundary.Sub(start),
			NextWeek:    end.Sub(boundary),
		}
	}
}

// Check reports whether reserving [start,end) is affordable under q. When
// both weeks are touched both must have room; there is no partial accept.
func Check(q domain.QuotaSnapshot, start, end time.Time) domain.Verdict {
	a := Apportion(q.WeekStartDate, start, end)
	hc, hn := a.CurrentHours(), a.NextHours()
	detail := domain.QuotaShortfall{
		HoursRequested:         a.Total().Hours(),
		HoursCurrentWeek:       hc,
		HoursNextWeek:          hn,
		RemainingHours:         q.RemainingHours(),
		RemainingHoursNextWeek: q.RemainingHoursNextWeek(),
	}

	if a.CurrentWeek > 0 && q.HoursUsed+q.HoursDebt+hc > q.HoursLimit+epsilon {
		detail.ShortfallHours = hc - detail.RemainingHours
		v := domain.Reject(domain.RuleQuotaCurrentWeek,
			"Not enough quota this week: requested %sh, %sh remaining (short by %sh)",
			fmtHours(hc), fmtHours(math.Max(0, detail.RemainingHours)), fmtHours(detail.ShortfallHours))
		v.Quota = &detail
		return v
	}

	if a.NextWeek > 0 && q.ExcessDebt()+q.HoursAdvance+hn > q.HoursLimit+epsilon {
		detail.ShortfallHours = hn - detail.RemainingHoursNextWeek
		v := domain.Reject(domain.RuleQuotaNextWeek,
			"Not enough quota next week: requested %sh, %sh remaining (short by %sh)",
			fmtHours(hn), fmtHours(math.Max(0, detail.RemainingHoursNextWeek)), fmtHours(detail.ShortfallHours))
		v.Quota = &detail
		return v
	}

	return domain.Accept()
}

func fmtHours(h float64) string {
	return strconv.FormatFloat(math.Round(h*100)/100, 'f', -1, 64)
}
