package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
)

func ts(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func baseQuota() *domain.QuotaSnapshot {
	return &domain.QuotaSnapshot{
		WeekStartDate: ts("2024-06-03T00:00"),
		HoursLimit:    10,
		HoursUsed:     2,
	}
}

func existing(id, start, end string, status domain.Status) domain.Booking {
	return domain.Booking{ID: id, UserID: "other", StartTime: ts(start), EndTime: ts(end), Status: status}
}

func TestMain(m *testing.M) {
	domain.SetWireLocation(time.UTC)
	m.Run()
}

func TestValidate_Accept(t *testing.T) {
	v := Validate(Input{
		Start: ts("2024-06-05T09:00"),
		End:   ts("2024-06-05T11:00"),
		Now:   ts("2024-06-04T09:00"),
		Quota: baseQuota(),
	}, domain.DefaultConstraints())
	if !v.Valid {
		t.Fatalf("expected valid, got %q", v.Reason)
	}
}

func TestValidate_TooSoon(t *testing.T) {
	v := Validate(Input{
		Start: ts("2024-06-05T09:00"),
		End:   ts("2024-06-05T11:00"),
		Now:   ts("2024-06-05T08:50"),
		Quota: baseQuota(),
	}, domain.DefaultConstraints())
	if v.Valid || v.Rule != domain.RuleMinAdvance {
		t.Fatalf("expected min advance rejection, got %+v", v)
	}
	if !strings.Contains(v.Reason, "15") {
		t.Fatalf("reason should name the required minutes: %q", v.Reason)
	}
}

func TestValidate_QuotaOverflow(t *testing.T) {
	q := baseQuota()
	q.HoursLimit, q.HoursUsed = 5, 4
	v := Validate(Input{
		Start: ts("2024-06-05T09:00"),
		End:   ts("2024-06-05T11:00"),
		Now:   ts("2024-06-04T09:00"),
		Quota: q,
	}, domain.DefaultConstraints())
	if v.Valid || v.Quota == nil || v.Quota.ShortfallHours != 1 {
		t.Fatalf("expected 1h shortfall, got %+v", v)
	}
}

func TestValidate_MinimumGap(t *testing.T) {
	v := Validate(Input{
		Start:    ts("2024-06-05T11:15"),
		End:      ts("2024-06-05T12:00"),
		Now:      ts("2024-06-04T09:00"),
		Existing: []domain.Booking{existing("b1", "2024-06-05T09:00", "2024-06-05T11:00", domain.StatusBooked)},
		Quota:    baseQuota(),
	}, domain.DefaultConstraints())
	if v.Valid || v.Rule != domain.RuleMinGap {
		t.Fatalf("expected min gap rejection, got %+v", v)
	}
	if !strings.Contains(v.Reason, "30 minutes") {
		t.Fatalf("reason should name the required gap: %q", v.Reason)
	}
}

func TestValidate_GapBeforeExistingBooking(t *testing.T) {
	v := Validate(Input{
		Start:    ts("2024-06-05T07:00"),
		End:      ts("2024-06-05T08:45"),
		Now:      ts("2024-06-04T09:00"),
		Existing: []domain.Booking{existing("b1", "2024-06-05T09:00", "2024-06-05T11:00", domain.StatusBooked)},
	}, domain.DefaultConstraints())
	if v.Valid || v.Rule != domain.RuleMinGap {
		t.Fatalf("expected min gap rejection, got %+v", v)
	}
}

func TestValidate_ExactGapIsAllowed(t *testing.T) {
	v := Validate(Input{
		Start:    ts("2024-06-05T11:30"),
		End:      ts("2024-06-05T12:00"),
		Now:      ts("2024-06-04T09:00"),
		Existing: []domain.Booking{existing("b1", "2024-06-05T09:00", "2024-06-05T11:00", domain.StatusInUse)},
	}, domain.DefaultConstraints())
	if !v.Valid {
		t.Fatalf("30 minute gap should be accepted: %q", v.Reason)
	}
}

func TestValidate_TouchingIsConflict(t *testing.T) {
	v := Validate(Input{
		Start:    ts("2024-06-05T11:00"),
		End:      ts("2024-06-05T12:00"),
		Now:      ts("2024-06-04T09:00"),
		Existing: []domain.Booking{existing("b1", "2024-06-05T09:00", "2024-06-05T11:00", domain.StatusBooked)},
	}, domain.DefaultConstraints())
	if v.Valid || v.Rule != domain.RuleConflict {
		t.Fatalf("expected conflict, got %+v", v)
	}
}

func TestValidate_CancelledBookingsIgnored(t *testing.T) {
	v := Validate(Input{
		Start:    ts("2024-06-05T09:30"),
		End:      ts("2024-06-05T10:30"),
		Now:      ts("2024-06-04T09:00"),
		Existing: []domain.Booking{existing("b1", "2024-06-05T09:00", "2024-06-05T11:00", domain.StatusCancelled)},
	}, domain.DefaultConstraints())
	if !v.Valid {
		t.Fatalf("cancelled bookings must not block: %q", v.Reason)
	}
}

func TestValidate_FirstFailureWins(t *testing.T) {
	v := Validate(Input{
		Start:    ts("2024-06-05T09:00"),
		End:      ts("2024-06-05T10:00"),
		Now:      ts("2024-06-05T08:50"),
		Existing: []domain.Booking{existing("b1", "2024-06-05T09:00", "2024-06-05T11:00", domain.StatusBooked)},
		Quota:    baseQuota(),
	}, domain.DefaultConstraints())
	if v.Rule != domain.RuleMinAdvance {
		t.Fatalf("advance notice must be reported before the conflict, got %s", v.Rule)
	}
}

func TestValidate_MissingTimes(t *testing.T) {
	v := Validate(Input{Start: ts("2024-06-05T09:00"), Now: ts("2024-06-04T09:00")}, domain.DefaultConstraints())
	if v.Rule != domain.RuleMissingTimes || !strings.Contains(v.Reason, "missing times") {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestValidate_EndBeforeStart(t *testing.T) {
	v := Validate(Input{
		Start: ts("2024-06-05T11:00"),
		End:   ts("2024-06-05T09:00"),
		Now:   ts("2024-06-04T09:00"),
	}, domain.DefaultConstraints())
	if v.Rule != domain.RuleEndBeforeStart {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestValidate_Horizon(t *testing.T) {
	tests := []struct {
		name  string
		start string
		quota *domain.QuotaSnapshot
		valid bool
	}{
		{"end of next week with quota", "2024-06-16T20:00", baseQuota(), true},
		{"beyond next week with quota", "2024-06-17T01:00", baseQuota(), false},
		{"within fallback horizon", "2024-06-17T09:00", nil, true},
		{"beyond fallback horizon", "2024-06-19T09:00", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := ts(tt.start)
			q := tt.quota
			if q != nil {
				q.HoursLimit = 100
			}
			v := Validate(Input{Start: start, End: start.Add(time.Hour), Now: ts("2024-06-04T09:00"), Quota: q}, domain.DefaultConstraints())
			if v.Valid != tt.valid {
				t.Fatalf("valid = %v (%q), want %v", v.Valid, v.Reason, tt.valid)
			}
			if !tt.valid && v.Rule != domain.RuleHorizon {
				t.Fatalf("expected horizon rule, got %s", v.Rule)
			}
		})
	}
}

func TestPrecheck_AgreesWithValidate(t *testing.T) {
	c := domain.DefaultConstraints()
	now := time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		start, end time.Time
		want       domain.Rule
	}{
		{"missing start", time.Time{}, now.Add(2 * time.Hour), domain.RuleMissingTimes},
		{"missing end", now.Add(time.Hour), time.Time{}, domain.RuleMissingTimes},
		{"too soon", now.Add(5 * time.Minute), now.Add(time.Hour), domain.RuleMinAdvance},
		{"fine so far", now.Add(time.Hour), now.Add(2 * time.Hour), ""},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			pre := Precheck(tt.start, tt.end, now, c)
			if pre.Rule != tt.want {
				t.Fatalf("Precheck rule %q, want %q", pre.Rule, tt.want)
			}
			if !pre.Valid {
				full := Validate(Input{Start: tt.start, End: tt.end, Now: now}, c)
				if full.Rule != pre.Rule || full.Reason != pre.Reason {
					t.Fatalf("Validate %+v disagrees with Precheck %+v", full, pre)
				}
			}
		})
	}
}
