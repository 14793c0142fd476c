package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		pipelineStagesTotal,
		pipelineStageLatencyMs,
		pipelineTasksTotal,
		pipelineQueueDepth,
		pipelineQueueRejected,
	)
}

var (
	pipelineStagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_total",
			Help: "Stage executions by stage and outcome.",
		},
		[]string{"stage", "outcome"}, // outcome: 'ok' | 'error'
	)

	pipelineStageLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_latency_ms",
			Help:    "Per-stage latency distribution in milliseconds.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"stage"},
	)

	pipelineTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tasks_total",
			Help: "Finished pipeline runs by kind and terminal status.",
		},
		[]string{"kind", "status"}, // kind: 'generate' | 'debug'
	)

	pipelineQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Tasks currently waiting in the worker queue.",
		},
	)

	pipelineQueueRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_queue_rejected_total",
			Help: "Submissions rejected because the worker queue was full.",
		},
	)
)

func ObserveStage(stage string, latencyMs int, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	pipelineStagesTotal.WithLabelValues(norm(stage), outcome).Inc()
	pipelineStageLatencyMs.WithLabelValues(norm(stage)).Observe(float64(latencyMs))
}

func IncTaskFinished(kind, status string) {
	pipelineTasksTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func SetQueueDepth(depth int) { pipelineQueueDepth.Set(float64(depth)) }
func IncQueueRejected()       { pipelineQueueRejected.Inc() }
