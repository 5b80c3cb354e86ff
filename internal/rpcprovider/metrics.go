package rpcprovider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_rpc_calls_total",
			Help: "Total number of RPC calls by method.",
		},
		[]string{"method"},
	)

	rpcCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watch_tower_rpc_call_duration_seconds",
			Help:    "Duration of RPC calls by method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	rpcErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_rpc_errors_total",
			Help: "Total number of RPC call failures by method.",
		},
		[]string{"method"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_rpc_retries_total",
			Help: "Total number of RPC retry attempts by operation.",
		},
		[]string{"operation"},
	)

	rpcRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_tower_rpc_retry_success_total",
			Help: "Total number of operations that succeeded after at least one retry.",
		},
		[]string{"operation"},
	)
)

func rpcMethodInc(method string)                       { rpcCalls.WithLabelValues(method).Inc() }
func rpcMethodDuration(method string, d time.Duration) { rpcCallDuration.WithLabelValues(method).Observe(d.Seconds()) }
func rpcMethodError(method string)                     { rpcErrors.WithLabelValues(method).Inc() }
func rpcRetryInc(operation string)                     { rpcRetries.WithLabelValues(operation).Inc() }
func rpcRetrySuccessInc(operation string)               { rpcRetrySuccess.WithLabelValues(operation).Inc() }
