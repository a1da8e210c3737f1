// Package validator decides whether a proposed reservation is legal. The
// rules run in a fixed order and the first failure wins.
package validator

import (
	"math"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/quota"
	"github.com/diagnosis/evshare-bookings/internal/timewin"
)

const (
	dateLayout = "2006-01-02"
	slotLayout = "Jan 2 15:04"
)

// Input is everything a single validation pass needs. Existing holds the
// bookings of the same group and vehicle in any status; Quota is optional.
type Input struct {
	Start    time.Time
	End      time.Time
	Now      time.Time
	Existing []domain.Booking
	Quota    *domain.QuotaSnapshot
}

type rule func(Input, domain.Constraints) domain.Verdict

var rules = []rule{
	checkPresent,
	checkAdvanceNotice,
	checkHorizon,
	checkOrdered,
	checkSchedule,
	checkQuota,
}

// Validate runs the eligibility rules. It never mutates its input.
func Validate(in Input, c domain.Constraints) domain.Verdict {
	for _, r := range rules {
		if v := r(in, c); !v.Valid {
			return v
		}
	}
	return domain.Accept()
}

// Precheck runs the leading rules that need no fetched data. When it
// rejects, Validate would return the same verdict.
func Precheck(start, end, now time.Time, c domain.Constraints) domain.Verdict {
	in := Input{Start: start, End: end, Now: now}
	for _, r := range rules[:2] {
		if v := r(in, c); !v.Valid {
			return v
		}
	}
	return domain.Accept()
}

func checkPresent(in Input, _ domain.Constraints) domain.Verdict {
	if in.Start.IsZero() || in.End.IsZero() {
		return domain.Reject(domain.RuleMissingTimes, "Please select both a start time and an end time (missing times)")
	}
	return domain.Accept()
}

func checkAdvanceNotice(in Input, c domain.Constraints) domain.Verdict {
	if in.Start.Before(in.Now.Add(c.MinAdvance)) {
		return domain.Reject(domain.RuleMinAdvance,
			"Bookings must start at least %d minutes from now", int(c.MinAdvance.Minutes()))
	}
	return domain.Accept()
}

func checkHorizon(in Input, c domain.Constraints) domain.Verdict {
	loc := domain.WireLocation()
	if in.Quota != nil && !in.Quota.WeekStartDate.IsZero() {
		from, to := in.Quota.WeekStartDate, in.Quota.HorizonEnd()
		if in.Start.Before(from) || in.Start.After(to) {
			return domain.Reject(domain.RuleHorizon,
				"Bookings can only start between %s and %s (this week and next week)",
				from.In(loc).Format(dateLayout), to.In(loc).Format(dateLayout))
		}
		return domain.Accept()
	}
	daysUntilStart := in.Start.Sub(in.Now).Hours() / 24
	if daysUntilStart > float64(c.MaxAdvanceDays) {
		last := in.Now.AddDate(0, 0, c.MaxAdvanceDays)
		return domain.Reject(domain.RuleHorizon,
			"Bookings can be made at most %d days in advance (between %s and %s)",
			c.MaxAdvanceDays, in.Now.In(loc).Format(dateLayout), last.In(loc).Format(dateLayout))
	}
	return domain.Accept()
}

func checkOrdered(in Input, _ domain.Constraints) domain.Verdict {
	if !in.End.After(in.Start) {
		return domain.Reject(domain.RuleEndBeforeStart, "End time must be after start time")
	}
	return domain.Accept()
}

func checkSchedule(in Input, c domain.Constraints) domain.Verdict {
	minGap := c.MinGap.Minutes()
	loc := domain.WireLocation()
	for i := range in.Existing {
		b := &in.Existing[i]
		if !b.BlocksSchedule() {
			continue
		}
		slot := b.StartTime.In(loc).Format(slotLayout) + " - " + b.EndTime.In(loc).Format(slotLayout)
		if timewin.Overlaps(in.Start, in.End, b.StartTime, b.EndTime) {
			return domain.Reject(domain.RuleConflict,
				"This time overlaps an existing booking (%s); bookings must be at least %d minutes apart",
				slot, int(minGap))
		}
		gap := timewin.SeparationMinutes(in.Start, in.End, b.StartTime, b.EndTime)
		if gap < minGap {
			return domain.Reject(domain.RuleMinGap,
				"Bookings must be at least %d minutes apart; only %d minutes between this booking and %s",
				int(minGap), int(math.Floor(gap)), slot)
		}
	}
	return domain.Accept()
}

func checkQuota(in Input, _ domain.Constraints) domain.Verdict {
	if in.Quota == nil {
		return domain.Accept()
	}
	return quota.Check(*in.Quota, in.Start, in.End)
}
