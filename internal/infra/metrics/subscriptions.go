package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		accessGrantsTotal,
		accessSweptTotal,
	)
}

var (
	accessGrantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_grant_writes_total",
			Help: "user_access writes by resulting has_access value and write kind.",
		},
		[]string{"has_access", "kind"}, // kind: insert|update|conflict
	)

	accessSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "access_grants_swept_total",
			Help: "Access grants revoked by the expiry sweeper after the paid period ended.",
		},
	)
)

func IncAccessGrant(hasAccess bool, kind string) {
	accessGrantsTotal.WithLabelValues(strconv.FormatBool(hasAccess), norm(kind)).Inc()
}

func AddAccessSwept(n int) {
	if n > 0 {
		accessSweptTotal.Add(float64(n))
	}
}
