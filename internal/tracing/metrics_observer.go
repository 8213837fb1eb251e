package tracing

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	prom "github.com/grand-thief-cash/yggdrasil/infra/components/prometheus"
	"github.com/grand-thief-cash/yggdrasil/internal/model"
)

// MetricsObserver publishes task transitions to the prometheus component's
// registry. Inflight only counts tasks that actually started; a task
// settled straight from the queue never touched the gauge.
type MetricsObserver struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
	running  sync.Map // ids seen by OnTaskStart
}

func NewMetricsObserver(pc *prom.Component) *MetricsObserver {
	return &MetricsObserver{
		started:  pc.NewCounter("tasks_started_total", "Tasks that began execution.", nil),
		finished: pc.NewCounter("tasks_finished_total", "Tasks settled, by terminal state.", []string{"state"}),
		duration: pc.NewHistogram("task_duration_seconds", "Wall time from start (or submission for tasks that never ran) to settle.", []string{"state"}, prometheus.DefBuckets),
		inflight: pc.NewGauge("tasks_inflight", "Tasks currently executing.", nil),
	}
}

func (mo *MetricsObserver) OnTaskStart(taskID, groupID string) {
	mo.started.WithLabelValues().Inc()
	mo.inflight.WithLabelValues().Inc()
	mo.running.Store(taskID, struct{}{})
}

func (mo *MetricsObserver) OnTaskEnd(taskID string, state model.TaskState, elapsed time.Duration) {
	mo.finished.WithLabelValues(string(state)).Inc()
	mo.duration.WithLabelValues(string(state)).Observe(elapsed.Seconds())
	if _, ok := mo.running.LoadAndDelete(taskID); ok {
		mo.inflight.WithLabelValues().Dec()
	}
}
