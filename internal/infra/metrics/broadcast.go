package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(broadcastDelivered, broadcastDropped) }

var (
	broadcastDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_events_delivered_total",
			Help: "Progress events delivered to registered sinks.",
		},
	)
	broadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_events_dropped_total",
			Help: "Progress events dropped because a sink was slow or gone.",
		},
	)
)

func AddBroadcastDelivered(n int) { broadcastDelivered.Add(float64(n)) }
func IncBroadcastDropped()        { broadcastDropped.Inc() }
