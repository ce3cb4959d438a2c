package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, replayGuardChecksTotal) }

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Tracks cache hits and misses for various caches.",
		},
		[]string{"cache", "result"}, // e.g., cache="access", result="hit"
	)

	replayGuardChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_replay_guard_checks_total",
			Help: "Delivery-id lookups against the replay guard.",
		},
		[]string{"provider", "result"}, // hit|miss|error
	)
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func IncReplayGuard(provider, result string) {
	replayGuardChecksTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}
