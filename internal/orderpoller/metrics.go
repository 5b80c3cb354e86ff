package orderpoller

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	discreteOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_orderbook_discrete_orders_total",
			Help: "Total number of discrete orders successfully submitted to the order book.",
		},
		[]string{"chain_id", "handler", "owner", "id"},
	)

	orderbookErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_orderbook_errors_total",
			Help: "Total number of order-book submission failures.",
		},
		[]string{"chain_id", "handler", "owner", "id", "status", "error"},
	)

	pollingFilterDropTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_polling_filter_drop_total",
			Help: "Total number of conditional orders deleted by the filter policy.",
		},
		[]string{"chain_id", "handler", "owner"},
	)

	pollingFilterSkipTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_polling_filter_skip_total",
			Help: "Total number of poll passes withheld by the filter policy.",
		},
		[]string{"chain_id", "handler", "owner"},
	)

	pollingHandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_polling_handler_errors_total",
			Help: "Total number of UNEXPECTED_ERROR results returned by the handler library.",
		},
		[]string{"chain_id", "handler", "owner"},
	)
)

// Metrics binds the package-level counters to one chain, so call sites
// don't have to thread chain_id through every label set.
type Metrics struct {
	chainID string
}

// NewMetrics returns a Metrics with an empty chain_id label, used by
// New when no chain-bound Metrics is supplied.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// NewChainMetrics binds metrics to a specific chain ID label.
func NewChainMetrics(chainID string) *Metrics {
	return &Metrics{chainID: chainID}
}

func (m *Metrics) IncDiscreteOrder(owner common.Address, handler common.Address) {
	discreteOrdersTotal.WithLabelValues(m.chainID, handler.Hex(), owner.Hex(), "").Inc()
}

func (m *Metrics) IncOrderbookError(owner common.Address, handler common.Address, status, errMsg string) {
	orderbookErrorsTotal.WithLabelValues(m.chainID, handler.Hex(), owner.Hex(), "", status, errMsg).Inc()
}

func (m *Metrics) IncFilterDrop(owner common.Address, handler common.Address) {
	pollingFilterDropTotal.WithLabelValues(m.chainID, handler.Hex(), owner.Hex()).Inc()
}

func (m *Metrics) IncFilterSkip(owner common.Address, handler common.Address) {
	pollingFilterSkipTotal.WithLabelValues(m.chainID, handler.Hex(), owner.Hex()).Inc()
}

func (m *Metrics) IncHandlerError(owner common.Address, handler common.Address) {
	pollingHandlerErrorsTotal.WithLabelValues(m.chainID, handler.Hex(), owner.Hex()).Inc()
}
