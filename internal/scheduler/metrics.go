package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	// jobTicks counts tick executions per job.
	jobTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_job_ticks_total",
			Help: "Total number of background job tick executions.",
		},
		[]string{"job"},
	)

	// jobFailures counts failed or panicked ticks per job.
	jobFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_job_failures_total",
			Help: "Total number of failed background job ticks.",
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(jobTicks, jobFailures)
}
