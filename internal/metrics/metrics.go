package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trades_recorded_total",
		Help: "Total number of trades written to the ledger",
	}, []string{"type"})

	MatchingAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_matching_anomalies_total",
		Help: "Sells whose quantity exceeded the open lots for the asset",
	}, []string{"asset"})

	SnapshotWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_snapshot_write_failures_total",
		Help: "Portfolio snapshots that could not be persisted",
	})

	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_cycles_total",
		Help: "Trading cycles by outcome",
	}, []string{"status"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trader_cycle_duration_seconds",
		Help:    "Duration of a full trading cycle",
		Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 120},
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_open_positions",
		Help: "Number of assets with open lots above the dust threshold",
	})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_request_errors_total",
		Help: "Failed calls to external services",
	}, []string{"service"})
)
