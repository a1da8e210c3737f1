package main

import (
	"testing"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/pkg/config"
)

func TestConstraints_DefaultsMatchDomain(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := constraints(cfg.Booking.Rules), domain.DefaultConstraints(); got != want {
		t.Fatalf("config defaults %+v drifted from domain defaults %+v", got, want)
	}
}

func TestConstraints_CarriesOverrides(t *testing.T) {
	t.Setenv("CHECK_OUT_AFTER", "10m")
	t.Setenv("PENALTY_OVERTIME_BASE", "4")

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	c := constraints(cfg.Booking.Rules)
	if c.CheckOutAfter != 10*time.Minute || c.Penalty.OvertimeBase != 4 {
		t.Fatalf("constraints %+v", c)
	}
}
