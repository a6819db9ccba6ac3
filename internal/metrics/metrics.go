package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rule evaluation
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cockpit_rule_evaluations_total",
			Help: "Rule evaluations by outcome kind",
		},
		[]string{"kind"}, // passed, not_met, no_data, insufficient_data, config_error
	)

	// Aggregation
	CategoryAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cockpit_category_alerts",
			Help: "Alert count per category in the latest snapshot",
		},
		[]string{"category"},
	)

	CategoryLookupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cockpit_category_lookup_failures_total",
			Help: "Category lookups that failed and degraded to zero",
		},
		[]string{"category"},
	)

	// Dispatch
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cockpit_dispatch_total",
			Help: "Dispatch attempts by result status",
		},
		[]string{"status"}, // no_change, sent
	)

	TransportDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cockpit_transport_deliveries_total",
			Help: "Transport delivery attempts by transport and status",
		},
		[]string{"transport", "status"}, // status: ok, error, skipped
	)

	TransportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cockpit_transport_duration_seconds",
			Help:    "Time spent delivering one notification",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"transport"},
	)

	StateWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cockpit_state_write_failures_total",
			Help: "Dispatch state writes that failed",
		},
	)
)
