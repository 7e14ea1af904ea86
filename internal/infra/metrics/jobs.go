package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsEnqueuedTotal, jobsAdmittedTotal, jobsFinishedTotal, dispatchFailuresTotal) }

var jobsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "image_jobs_enqueued_total",
		Help: "Total number of image jobs enqueued, labeled by request kind.",
	},
	[]string{"kind"}, // 'generate', 'button'
)

var jobsAdmittedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "image_jobs_admitted_total",
		Help: "Total number of jobs claimed into the in-flight set.",
	},
)

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "image_jobs_finished_total",
		Help: "Total number of jobs reaching a terminal state, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var dispatchFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "image_jobs_dispatch_failures_total",
		Help: "Fire-and-forget dispatches to the external worker that errored.",
	},
)

func IncEnqueued(kind string) { jobsEnqueuedTotal.WithLabelValues(norm(kind)).Inc() }

func AddAdmitted(n int) { jobsAdmittedTotal.Add(float64(n)) }

func IncFinished(status string) { jobsFinishedTotal.WithLabelValues(norm(status)).Inc() }

func IncDispatchFailure() { dispatchFailuresTotal.Inc() }
