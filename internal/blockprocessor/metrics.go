package blockprocessor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processBlockDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watch_tower_process_block_duration_seconds",
			Help:    "Time spent processing one block (ingest + poll + persist).",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain_id"},
	)

	eventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_events_processed_total",
			Help: "Total number of decoded events applied to the registry.",
		},
		[]string{"chain_id"},
	)
)

// Metrics binds the package-level counters to one chain.
type Metrics struct {
	chainID string
}

func NewMetrics() *Metrics                   { return &Metrics{} }
func NewChainMetrics(chainID string) *Metrics { return &Metrics{chainID: chainID} }

func (m *Metrics) ObserveBlockDuration(d time.Duration) {
	processBlockDuration.WithLabelValues(m.chainID).Observe(d.Seconds())
}

func (m *Metrics) IncEventsProcessed(n int) {
	eventsProcessedTotal.WithLabelValues(m.chainID).Add(float64(n))
}
