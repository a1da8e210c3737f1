package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// WireLayout is the offset-less timestamp format the backend accepts for
// booking payloads. Values are interpreted in the configured wire location.
const WireLayout = "2006-01-02T15:04:05.000"

var wireLocation atomic.Pointer[time.Location]

// SetWireLocation sets the zone used to read and write offset-less
// timestamps. Nil resets it to the process local zone.
func SetWireLocation(loc *time.Location) {
	wireLocation.Store(loc)
}

func WireLocation() *time.Location {
	if loc := wireLocation.Load(); loc != nil {
		return loc
	}
	return time.Local
}

var wireParseLayouts = []string{
	WireLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseWireTime accepts the offset-less wire format and, defensively,
// RFC3339 timestamps carrying an explicit offset.
func ParseWireTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range wireParseLayouts {
		if t, err := time.ParseInLocation(layout, s, WireLocation()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func FormatWireTime(t time.Time) string {
	return t.In(WireLocation()).Format(WireLayout)
}

// WireTime is a time.Time that travels in WireLayout.
type WireTime struct {
	time.Time
}

func NewWireTime(t time.Time) WireTime { return WireTime{Time: t} }

// WireTimePtr returns nil for a nil input.
func WireTimePtr(t *time.Time) *WireTime {
	if t == nil {
		return nil
	}
	return &WireTime{Time: *t}
}

func (w WireTime) MarshalJSON() ([]byte, error) {
	if w.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(FormatWireTime(w.Time))
}

func (w *WireTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		w.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		w.Time = time.Time{}
		return nil
	}
	t, err := ParseWireTime(s)
	if err != nil {
		return err
	}
	w.Time = t
	return nil
}

// TimePtr returns nil for a nil or zero WireTime.
func (w *WireTime) TimePtr() *time.Time {
	if w == nil || w.IsZero() {
		return nil
	}
	t := w.Time
	return &t
}
