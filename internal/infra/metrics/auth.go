package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(refreshTotal) }

var refreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credential_refresh_total",
		Help: "Refresh coordinator results (success/failure/cache_hit/self_heal).",
	},
	[]string{"result"},
)

func IncRefresh(result string) {
	refreshTotal.WithLabelValues(norm(result)).Inc()
}
