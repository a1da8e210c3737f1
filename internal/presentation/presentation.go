// Package presentation maps booking state to list and detail view data.
// It has no rule authority of its own: every region and permission comes
// from the lifecycle package.
package presentation

import (
	"fmt"
	"math"
	"time"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/lifecycle"
)

func StatusLabel(s domain.Status) string {
	switch s {
	case domain.StatusBooked:
		return "Booked"
	case domain.StatusInUse:
		return "In use"
	case domain.StatusComplete:
		return "Completed"
	case domain.StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// StatusColor returns a tag color token understood by the UI kit.
func StatusColor(s domain.Status) string {
	switch s {
	case domain.StatusBooked:
		return "blue"
	case domain.StatusInUse:
		return "green"
	case domain.StatusComplete:
		return "default"
	case domain.StatusCancelled:
		return "red"
	default:
		return "default"
	}
}

func DisplayLabel(d lifecycle.DisplayState) string {
	switch d {
	case lifecycle.DisplayBooked:
		return "Booked"
	case lifecycle.DisplayNoShow:
		return "Missed check-in"
	case lifecycle.DisplayInUse:
		return "In use"
	case lifecycle.DisplayOvertime:
		return "Overtime"
	case lifecycle.DisplayComplete:
		return "Completed"
	default:
		return "Cancelled"
	}
}

func DisplayColor(d lifecycle.DisplayState) string {
	switch d {
	case lifecycle.DisplayBooked:
		return "blue"
	case lifecycle.DisplayNoShow:
		return "volcano"
	case lifecycle.DisplayInUse:
		return "green"
	case lifecycle.DisplayOvertime:
		return "orange"
	case lifecycle.DisplayComplete:
		return "default"
	default:
		return "red"
	}
}

// Progress drives the check-in progress bar.
type Progress struct {
	Percent int    `json:"percent"`
	State   string `json:"state"`
	Text    string `json:"text"`
}

// CheckInProgress reports where now sits inside the check-in window. Its
// State is exactly the lifecycle check-in region.
func CheckInProgress(now, start time.Time, c domain.Constraints) Progress {
	opens := start.Add(-c.CheckInBefore)
	closes := start.Add(c.CheckInAfter)
	region := lifecycle.CheckInRegion(now, start, c)

	p := Progress{State: region.String()}
	switch region {
	case lifecycle.RegionTooEarly:
		p.Text = fmt.Sprintf("Check-in opens in %s", humanize(opens.Sub(now)))
	case lifecycle.RegionOpen:
		window := closes.Sub(opens)
		if window > 0 {
			p.Percent = int(math.Round(float64(now.Sub(opens)) / float64(window) * 100))
		} else {
			p.Percent = 100
		}
		p.Text = fmt.Sprintf("Check-in open, %s left", humanize(closes.Sub(now)))
	default:
		p.Percent = 100
		p.Text = "Check-in window has closed"
	}
	return p
}

func humanize(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d min", int(math.Ceil(d.Minutes())))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) - h*60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dmin", h, m)
}
