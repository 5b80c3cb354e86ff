package chainwatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blockHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watch_tower_block_height",
			Help: "Highest block number observed by the chain watcher.",
		},
		[]string{"chain_id"},
	)

	blockTimeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watch_tower_block_time_seconds",
			Help: "Gap between consecutive block timestamps (blockProducingRate).",
		},
		[]string{"chain_id"},
	)

	reorgDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watch_tower_reorg_depth",
			Help: "Depth of the most recently detected reorg.",
		},
		[]string{"chain_id"},
	)

	reorgTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_reorg_total",
			Help: "Total number of reorgs detected.",
		},
		[]string{"chain_id"},
	)

	activeOwnersTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watch_tower_active_owners_total",
			Help: "Number of distinct owners with at least one tracked conditional order.",
		},
		[]string{"chain_id"},
	)

	activeOrdersTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watch_tower_active_orders_total",
			Help: "Number of conditional orders currently tracked.",
		},
		[]string{"chain_id"},
	)
)

// Metrics binds the package-level gauges/counters to one chain.
type Metrics struct {
	chainID string
}

func NewMetrics(chainID string) *Metrics { return &Metrics{chainID: chainID} }

func (m *Metrics) SetBlockHeight(n uint64) {
	blockHeight.WithLabelValues(m.chainID).Set(float64(n))
}

func (m *Metrics) ObserveBlockProducingRate(seconds float64) {
	blockTimeSeconds.WithLabelValues(m.chainID).Set(seconds)
}

func (m *Metrics) IncReorg(depth uint64) {
	reorgDepth.WithLabelValues(m.chainID).Set(float64(depth))
	reorgTotal.WithLabelValues(m.chainID).Inc()
}

func (m *Metrics) SetActiveOwners(n int) {
	activeOwnersTotal.WithLabelValues(m.chainID).Set(float64(n))
}

func (m *Metrics) SetActiveOrders(n int) {
	activeOrdersTotal.WithLabelValues(m.chainID).Set(float64(n))
}
