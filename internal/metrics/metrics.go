// Package metrics exposes Prometheus collectors for the USSD pipeline and
// the alert distribution engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts inbound USSD requests by outcome
	// (ok, invalid, expired, terminal, error, timeout, panic).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dawacall_ussd_requests_total",
		Help: "Inbound USSD requests by outcome.",
	}, []string{"outcome"})

	// RequestDuration observes end-to-end request processing time.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dawacall_ussd_request_duration_seconds",
		Help:    "USSD request processing time.",
		Buckets: prometheus.DefBuckets,
	})

	// MenuTransitionsTotal counts state machine transitions by the level the
	// request arrived at.
	MenuTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dawacall_menu_transitions_total",
		Help: "Menu state machine transitions by source level.",
	}, []string{"level"})

	// AlertsCreatedTotal counts shortage alerts created by completed
	// reporting sessions.
	AlertsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dawacall_alerts_created_total",
		Help: "Shortage alerts created.",
	})

	// DispatchAttemptsTotal counts notification attempts by channel and
	// delivery status.
	DispatchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dawacall_dispatch_attempts_total",
		Help: "Supplier notification attempts by channel and status.",
	}, []string{"channel", "status"})
)
