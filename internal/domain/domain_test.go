package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseStatus_Spellings(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"BOOKED", StatusBooked},
		{"booked", StatusBooked},
		{"INUSE", StatusInUse},
		{"in_use", StatusInUse},
		{"OVERTIME", StatusInUse},
		{"COMPLETE", StatusComplete},
		{"COMPLETED", StatusComplete},
		{"Completed", StatusComplete},
		{"CANCELLED", StatusCancelled},
		{"canceled", StatusCancelled},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.raw)
		if !ok || got != tt.want {
			t.Errorf("ParseStatus(%q) = %v,%v want %v", tt.raw, got, ok, tt.want)
		}
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestStatus_JSONUsesBackendSpelling(t *testing.T) {
	b, err := json.Marshal(struct {
		S Status `json:"s"`
	}{StatusComplete})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"s":"COMPLETE"}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}

func TestWireTime_RoundTripWithoutOffset(t *testing.T) {
	SetWireLocation(time.UTC)
	defer SetWireLocation(nil)

	var dto BookingDTO
	in := `{"id":"b1","userId":"u1","startTime":"2024-06-05T09:00:00.000","endTime":"2024-06-05T11:00:00.000","status":"COMPLETED"}`
	if err := json.Unmarshal([]byte(in), &dto); err != nil {
		t.Fatal(err)
	}
	b := dto.ToBooking()
	if !b.StartTime.Equal(time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", b.StartTime)
	}
	if b.Status != StatusComplete {
		t.Fatalf("expected COMPLETE, got %v", b.Status)
	}

	out, _ := json.Marshal(b.ToDTO())
	var back map[string]any
	json.Unmarshal(out, &back)
	if back["startTime"] != "2024-06-05T09:00:00.000" {
		t.Fatalf("expected offset-less wire time, got %v", back["startTime"])
	}
}

func TestParseWireTime_AcceptsOffset(t *testing.T) {
	got, err := ParseWireTime("2024-06-05T09:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected %v", got)
	}
}

func TestQuotaSnapshot_Derived(t *testing.T) {
	q := QuotaSnapshot{HoursLimit: 10, HoursUsed: 8, HoursDebt: 4, HoursAdvance: 1}
	if got := q.RemainingHours(); got != -2 {
		t.Fatalf("remaining = %v", got)
	}
	if got := q.ExcessDebt(); got != 2 {
		t.Fatalf("excess = %v", got)
	}
	if got := q.RemainingHoursNextWeek(); got != 7 {
		t.Fatalf("remaining next week = %v", got)
	}
}

func TestQuotaDTO_DerivesLimitFromShare(t *testing.T) {
	d := QuotaDTO{WeeklyQuotaHours: 40, OwnershipRate: 25}
	if got := d.ToSnapshot().HoursLimit; got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
}

func TestWeekStart_Monday(t *testing.T) {
	sunday := time.Date(2024, 6, 9, 22, 0, 0, 0, time.UTC)
	if got := WeekStart(sunday); !got.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected week start %v", got)
	}
}

func TestVerdictErr(t *testing.T) {
	if Accept().Err() != nil {
		t.Fatal("valid verdict must not produce an error")
	}
	err := Reject(RuleMinGap, "bookings must be at least %d minutes apart", 30).Err()
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Rule != RuleMinGap {
		t.Fatalf("unexpected error %v", err)
	}
}
