// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

var (
	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memespin_connect_attempts_total",
			Help: "Wallet transport connection attempts",
		},
		[]string{"transport", "outcome"},
	)

	RPCProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memespin_rpc_probes_total",
			Help: "RPC endpoint liveness probes",
		},
		[]string{"outcome"},
	)

	// SessionState is 0=disconnected, 1=connecting, 2=connected, 3=error
	SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memespin_session_state",
		Help: "Current wallet session state (0=disconnected, 1=connecting, 2=connected, 3=error)",
	})

	ContractCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memespin_contract_calls_total",
			Help: "Game and NFT contract operations",
		},
		[]string{"method", "outcome"},
	)

	ContractCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memespin_contract_call_duration_seconds",
			Help:    "Game and NFT contract operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Outcome maps an error to the outcome label
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
