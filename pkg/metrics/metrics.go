package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "evshare"

var (
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "validations_total", Help: "Eligibility checks by outcome rule (accepted when valid)"},
		[]string{"rule"},
	)
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "commands_total", Help: "Booking commands by outcome"},
		[]string{"command", "outcome"},
	)
	PenaltyHoursTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "penalty_hours_total", Help: "Overtime penalty hours charged"})
	ExpiredTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "bookings_expired_total", Help: "Bookings auto-cancelled for missing check-in"})
	PendingHolds      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pending_holds", Help: "Bookings held in the pending overlay"})
	BackendLatency    = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of booking backend calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// RuleAccepted labels validations that passed every rule.
const RuleAccepted = "accepted"
