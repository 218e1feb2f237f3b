package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Price aggregator ============

var PriceTicksIngested = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "priceagg",
		Name:      "ticks_ingested_total",
		Help:      "Total number of price ticks successfully ingested",
	},
	[]string{"venue"},
)

var PriceParseErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "priceagg",
		Name:      "parse_errors_total",
		Help:      "Total number of price messages discarded for failing to parse",
	},
	[]string{"venue"},
)

var PriceStaleVenue = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "beskarliquidator",
		Subsystem: "priceagg",
		Name:      "venue_stale",
		Help:      "Whether the latest tick for a venue is older than the staleness window (1=stale)",
	},
	[]string{"venue"},
)

// ============ Lifecycle engine ============

var LoanApplications = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "lifecycle",
		Name:      "loan_applications_total",
		Help:      "Total number of loan application requests by outcome",
	},
	[]string{"outcome"},
)

var CollateralTopUps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "lifecycle",
		Name:      "collateral_top_ups_total",
		Help:      "Total number of collateral top-up requests by outcome",
	},
	[]string{"outcome"},
)

var LoansByStatus = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "beskarliquidator",
		Subsystem: "lifecycle",
		Name:      "loans_by_status",
		Help:      "Current number of loans in each status",
	},
	[]string{"status"},
)

// ============ LTV evaluator ============

var LtvSweeps = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "ltv",
		Name:      "sweeps_total",
		Help:      "Total number of LTV evaluation sweeps performed",
	},
)

var LtvActivations = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "ltv",
		Name:      "activations_total",
		Help:      "Total number of loans activated by LTV evaluation",
	},
)

var LtvLiquidationsTriggered = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "ltv",
		Name:      "liquidations_triggered_total",
		Help:      "Total number of loans transitioned to liquidating by LTV evaluation",
	},
)

// ============ Liquidation worker ============

var LiquidationJobsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "beskarliquidator",
		Subsystem: "liquidation",
		Name:      "jobs_active",
		Help:      "Current number of loans being liquidated by the worker pool",
	},
)

var LiquidationLotAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "liquidation",
		Name:      "lot_attempts_total",
		Help:      "Total number of lot sell attempts by venue and result",
	},
	[]string{"venue", "result"},
)

var LiquidationDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "beskarliquidator",
		Subsystem: "liquidation",
		Name:      "duration_seconds",
		Help:      "Wall-clock time from liquidation start to finalization",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
)

var LiquidationLeaseLost = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "liquidation",
		Name:      "lease_lost_total",
		Help:      "Total number of liquidation leases lost to another worker before completion",
	},
)

// ============ Venue clients ============

var VenueRequestLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "beskarliquidator",
		Subsystem: "venue",
		Name:      "request_latency_ms",
		Help:      "Latency of outbound venue order requests in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 5000, 15000},
	},
	[]string{"venue", "result"},
)

// ============ Event publisher ============

var EventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total number of loan lifecycle events published by outcome",
	},
	[]string{"outcome"},
)

var EventsPublishUncertain = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "beskarliquidator",
		Subsystem: "events",
		Name:      "publish_uncertain_total",
		Help:      "Total number of events whose publish outcome is unknown after retry exhaustion",
	},
)

// ============ Store ============

var StoreQueryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "beskarliquidator",
		Subsystem: "store",
		Name:      "query_duration_ms",
		Help:      "Duration of repository queries in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	},
	[]string{"repository", "op"},
)
