package repository

import (
	"testing"
	"time"
)

func week(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCarryOver(t *testing.T) {
	prev := weekRow{weekStart: week(2025, 1, 6), hoursUsed: 12, hoursDebt: 2, hoursAdvance: 3}

	got := carryOver(prev, 10)
	if !got.weekStart.Equal(week(2025, 1, 13)) {
		t.Fatalf("weekStart = %v", got.weekStart)
	}
	if got.hoursUsed != 3 {
		t.Errorf("advance should become used: got %v", got.hoursUsed)
	}
	if got.hoursDebt != 4 {
		t.Errorf("excess 12+2-10 should become debt: got %v", got.hoursDebt)
	}
	if got.hoursAdvance != 0 {
		t.Errorf("advance must start empty: got %v", got.hoursAdvance)
	}
}

func TestCarryOver_NoExcess(t *testing.T) {
	got := carryOver(weekRow{weekStart: week(2025, 1, 6), hoursUsed: 4, hoursDebt: 1}, 10)
	if got.hoursDebt != 0 || got.hoursUsed != 0 {
		t.Fatalf("expected a clean week, got %+v", got)
	}
}

func TestRollForward(t *testing.T) {
	cases := []struct {
		name     string
		latest   weekRow
		target   time.Time
		limit    float64
		wantUsed float64
		wantDebt float64
	}{
		{
			name:     "adjacent week",
			latest:   weekRow{weekStart: week(2025, 1, 6), hoursUsed: 8, hoursAdvance: 5},
			target:   week(2025, 1, 13),
			limit:    10,
			wantUsed: 5,
		},
		{
			name:     "debt chain across a skipped week",
			latest:   weekRow{weekStart: week(2025, 1, 6), hoursUsed: 10, hoursDebt: 15},
			target:   week(2025, 1, 20),
			limit:    10,
			wantDebt: 5,
		},
		{
			name:   "long gap settles to empty",
			latest: weekRow{weekStart: week(2025, 1, 6), hoursUsed: 9, hoursAdvance: 4},
			target: week(2025, 3, 3),
			limit:  10,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rollForward(tc.latest, tc.target, tc.limit)
			if !got.weekStart.Equal(tc.target) {
				t.Fatalf("weekStart = %v, want %v", got.weekStart, tc.target)
			}
			if got.hoursUsed != tc.wantUsed || got.hoursDebt != tc.wantDebt || got.hoursAdvance != 0 {
				t.Fatalf("got %+v, want used=%v debt=%v", got, tc.wantUsed, tc.wantDebt)
			}
		})
	}
}

func TestShareLimit(t *testing.T) {
	s := share{weeklyQuotaHours: 40, ownershipRate: 25}
	if s.limit() != 10 {
		t.Fatalf("limit = %v", s.limit())
	}
	snap := weekRow{weekStart: week(2025, 1, 6), hoursUsed: 3}.snapshot(s)
	if snap.HoursLimit != 10 || snap.RemainingHours() != 7 {
		t.Fatalf("snapshot %+v", snap)
	}
}
