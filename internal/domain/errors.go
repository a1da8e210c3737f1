package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("booking not found")
	ErrForbidden     = errors.New("booking belongs to another user")
	ErrPhotoRequired = errors.New("at least one check-in photo is required")
)

// Rule identifies which eligibility rule rejected a booking.
type Rule string

const (
	RuleMissingTimes     Rule = "missing_times"
	RuleMinAdvance       Rule = "min_advance"
	RuleHorizon          Rule = "horizon"
	RuleEndBeforeStart   Rule = "end_before_start"
	RuleConflict         Rule = "conflict"
	RuleMinGap           Rule = "min_gap"
	RuleQuotaCurrentWeek Rule = "quota_current_week"
	RuleQuotaNextWeek    Rule = "quota_next_week"
)

// QuotaShortfall carries the exact figures behind a quota rejection.
type QuotaShortfall struct {
	HoursRequested         float64 `json:"hoursRequested"`
	HoursCurrentWeek       float64 `json:"hoursCurrentWeek"`
	HoursNextWeek          float64 `json:"hoursNextWeek"`
	RemainingHours         float64 `json:"remainingHours"`
	RemainingHoursNextWeek float64 `json:"remainingHoursNextWeek"`
	ShortfallHours         float64 `json:"shortfallHours"`
}

// Verdict is the outcome of an eligibility check.
type Verdict struct {
	Valid  bool            `json:"valid"`
	Reason string          `json:"reason,omitempty"`
	Rule   Rule            `json:"rule,omitempty"`
	Quota  *QuotaShortfall `json:"quota,omitempty"`
}

func Accept() Verdict { return Verdict{Valid: true} }

func Reject(rule Rule, format string, args ...any) Verdict {
	return Verdict{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Err returns nil for a valid verdict and a *ValidationError otherwise.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Rule: v.Rule, Reason: v.Reason, Quota: v.Quota}
}

// ValidationError is a local, synchronous rejection. It is never retried.
type ValidationError struct {
	Rule   Rule
	Reason string
	Quota  *QuotaShortfall
}

func (e *ValidationError) Error() string { return e.Reason }

// TransitionCode classifies lifecycle guard failures.
type TransitionCode string

const (
	CodeTooEarly      TransitionCode = "too_early"
	CodeWindowExpired TransitionCode = "window_expired"
	CodeInvalidState  TransitionCode = "invalid_state"
	CodeNotOwner      TransitionCode = "not_owner"
	CodeNotYetDue     TransitionCode = "not_yet_due"
)

// TransitionError is returned when a lifecycle command is not permitted
// for the booking's current state or at the current time.
type TransitionError struct {
	Op      string
	From    Status
	Code    TransitionCode
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// GenericCommandMessage is surfaced when the backend gives no message.
const GenericCommandMessage = "the booking service could not complete the request, please try again"

// CommandError is a remote failure of a create, check-in, check-out or
// cancel command. Message is the backend's text when it sent one.
type CommandError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericCommandMessage
}

func (e *CommandError) Unwrap() error { return e.Err }
