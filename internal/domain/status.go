package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Status is the persisted lifecycle state of a booking. OVERTIME is not a
// Status: it is derived from INUSE and the clock, see lifecycle.DisplayState.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusBooked
	StatusInUse
	StatusComplete
	StatusCancelled
)

// String returns the spelling the backend uses on the wire.
func (s Status) String() string {
	switch s {
	case StatusBooked:
		return "BOOKED"
	case StatusInUse:
		return "INUSE"
	case StatusComplete:
		return "COMPLETE"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus canonicalizes every spelling the backend and older clients
// have been seen to send. It is the only place raw status strings are
// compared.
func ParseStatus(raw string) (Status, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
	switch s {
	case "BOOKED", "RESERVED":
		return StatusBooked, true
	case "INUSE", "CHECKEDIN", "OVERTIME":
		return StatusInUse, true
	case "COMPLETE", "COMPLETED", "CHECKEDOUT":
		return StatusComplete, true
	case "CANCELLED", "CANCELED":
		return StatusCancelled, true
	default:
		return StatusUnknown, false
	}
}

// IsTerminal reports whether no transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusCancelled
}

func (s Status) MarshalText() ([]byte, error) {
	if s == StatusUnknown {
		return nil, fmt.Errorf("cannot marshal unknown booking status")
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown booking status %q", string(b))
	}
	*s = st
	return nil
}

// Scan implements sql.Scanner so pgx can read the text column directly.
func (s *Status) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		*s = StatusUnknown
		return nil
	default:
		return fmt.Errorf("cannot scan %T into booking status", src)
	}
}

func (s Status) Value() (driver.Value, error) {
	return s.String(), nil
}
