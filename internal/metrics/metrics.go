// Package metrics holds the process wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallet"

const (
	OutcomeOk    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

var (
	engineMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_messages_total",
		Help:      "Messages handled by the wallet engine by command and outcome.",
	}, []string{"cmd", "outcome"})
	engineMessageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_message_duration_seconds",
		Help:      "Time spent handling one engine message.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"cmd"})
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Wallet events published to listeners by type.",
	}, []string{"type"})
	activeListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "listeners_active",
		Help:      "Event listeners currently registered.",
	})
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_runs_total",
		Help:      "Account sync runs by outcome.",
	}, []string{"outcome"})
	rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "JSON-RPC requests served by method and outcome.",
	}, []string{"method", "outcome"})
)

func ObserveMessage(cmd, outcome string, elapsed time.Duration) {
	engineMessages.WithLabelValues(cmd, outcome).Inc()
	engineMessageDuration.WithLabelValues(cmd).Observe(elapsed.Seconds())
}

func EventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

func ListenerAdded() {
	activeListeners.Inc()
}

func ListenersRemoved(n int) {
	activeListeners.Sub(float64(n))
}

func SyncRun(outcome string) {
	syncRuns.WithLabelValues(outcome).Inc()
}

func RPCRequest(method, outcome string) {
	rpcRequests.WithLabelValues(method, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
