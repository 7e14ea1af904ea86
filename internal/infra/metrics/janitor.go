package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(janitorEvictionsTotal) }

var janitorEvictionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "image_jobs_janitor_evictions_total",
		Help: "Jobs reclaimed or evicted by janitor sweeps, labeled by sweep.",
	},
	[]string{"sweep"}, // 'stale', 'retention'
)

func AddEvicted(sweep string, n int) {
	janitorEvictionsTotal.WithLabelValues(norm(sweep)).Add(float64(n))
}
