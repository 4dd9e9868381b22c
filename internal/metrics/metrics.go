package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth and recovery metrics
var (
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somnia_otp_issued_total",
			Help: "One-time codes stored, by purpose",
		},
		[]string{"purpose"},
	)

	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somnia_otp_verifications_total",
			Help: "One-time code verification attempts, by purpose and result",
		},
		[]string{"purpose", "result"}, // result: success/miss
	)

	SessionsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somnia_sessions_issued_total",
			Help: "Session tokens issued",
		},
		[]string{"kind"}, // kind: user/guest
	)

	GuestResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somnia_guest_resets_total",
			Help: "Guest account wipe-and-reseed runs",
		},
		[]string{"result"},
	)

	MailFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somnia_mail_failures_total",
			Help: "Outbound mail sends that failed, by purpose",
		},
		[]string{"purpose"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somnia_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)
)
