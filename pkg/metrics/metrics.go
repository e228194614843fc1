package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BookingsCreated counts bookings created since start.
var BookingsCreated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "skilllink_bookings_created_total",
		Help: "Total number of bookings created",
	},
)

// BookingTransitions counts lifecycle transitions by target status.
var BookingTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "skilllink_booking_transitions_total",
		Help: "Total number of booking status transitions",
	},
	[]string{"to"},
)

// CreditsSpent counts credits deducted from wallets by reason.
var CreditsSpent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "skilllink_credits_spent_total",
		Help: "Total credits deducted from wallets",
	},
	[]string{"reason"},
)

// OTPRequests counts one-time codes issued.
var OTPRequests = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "skilllink_otp_requests_total",
		Help: "Total OTP codes issued",
	},
)

// Database connection pool metrics, sampled periodically from main.
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skilllink_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBIdleConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skilllink_db_idle_connections",
			Help: "Number of idle connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skilllink_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(BookingsCreated, BookingTransitions, CreditsSpent, OTPRequests)
	prometheus.MustRegister(DBOpenConns, DBIdleConns, DBInUseConns)
}
