// Package metrics exposes the ledger's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger operations by name and result (ok or the error kind).
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketledger_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketledger_operation_duration_seconds",
			Help:    "Duration of ledger operations including the store transaction",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	SharesTraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketledger_shares_traded_total",
			Help: "Total number of shares bought or sold",
		},
		[]string{"side"},
	)

	TokensMoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketledger_tokens_moved_total",
			Help: "Token base units moved by the custodian",
		},
		[]string{"kind"}, // buy, sell, payout, reward
	)

	MarketsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketledger_markets_archived_total",
			Help: "Total number of settled markets written to the archive",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketledger_ws_clients",
			Help: "Connected WebSocket clients",
		},
	)
)

// RecordOperation records one ledger operation outcome.
func RecordOperation(operation, result string, duration time.Duration) {
	Operations.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTrade records shares and tokens of a committed trade.
func RecordTrade(side string, shares, tokens uint64) {
	SharesTraded.WithLabelValues(side).Add(float64(shares))
	TokensMoved.WithLabelValues(side).Add(float64(tokens))
}

// RecordTransfer records tokens moved for a payout or reward.
func RecordTransfer(kind string, tokens uint64) {
	TokensMoved.WithLabelValues(kind).Add(float64(tokens))
}
