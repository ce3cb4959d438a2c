package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal, notificationsTotal) }

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_job_runs_total",
			Help: "Background job runs, labeled by job and status.",
		},
		[]string{"job", "status"}, // status: ok|failed|skipped
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operator_notifications_total",
			Help: "Operator notifications by delivery status.",
		},
		[]string{"status"}, // sent|error|dropped
	)
)

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}

func IncNotification(status string) {
	notificationsTotal.WithLabelValues(norm(status)).Inc()
}
