// Package metrics records pipeline activity as Prometheus metrics. The
// recorder doubles as an event sink so the engine emits once and both the
// JSONL log and the metrics stay in sync.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"contentflow/pkg/events"
)

// Recorder holds the pipeline's Prometheus collectors. It implements
// events.Sink; register it alongside the event writer.
type Recorder struct {
	stagesTotal    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	toolCallsTotal *prometheus.CounterVec
	pausesTotal    prometheus.Counter
	completions    prometheus.Counter
	errorsTotal    *prometheus.CounterVec

	mu     sync.Mutex
	starts map[string]time.Time // thread/stage -> start time
}

// NewRecorder registers the pipeline collectors with the given registerer.
// Pass prometheus.DefaultRegisterer outside tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		stagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_runs_total",
				Help: "Total stage executions by thread and stage name",
			},
			[]string{"thread", "stage"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Duration of stage executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_tool_calls_total",
				Help: "Total tool invocations by thread and tool name",
			},
			[]string{"thread", "tool"},
		),
		pausesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_pauses_total",
				Help: "Total workflow pauses awaiting operator input",
			},
		),
		completions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_completions_total",
				Help: "Total completed workflow runs",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_errors_total",
				Help: "Total stage failures by thread and stage name",
			},
			[]string{"thread", "stage"},
		),
		starts: make(map[string]time.Time),
	}
}

// Emit maps pipeline events onto the collectors. One recorder serves every
// concurrently running thread, so the start-time map is mutex-guarded; the
// collectors themselves are already safe.
func (r *Recorder) Emit(e events.Event) {
	switch e.Type {
	case events.TypeStageStart:
		r.mu.Lock()
		r.starts[e.ThreadID+"/"+e.Stage] = e.Timestamp
		r.mu.Unlock()
	case events.TypeStageEnd:
		r.stagesTotal.WithLabelValues(e.ThreadID, e.Stage).Inc()
		key := e.ThreadID + "/" + e.Stage
		r.mu.Lock()
		start, ok := r.starts[key]
		if ok {
			delete(r.starts, key)
		}
		r.mu.Unlock()
		if ok {
			r.stageDuration.WithLabelValues(e.Stage).Observe(e.Timestamp.Sub(start).Seconds())
		}
	case events.TypeToolCall:
		if name, ok := e.Payload["name"].(string); ok {
			r.toolCallsTotal.WithLabelValues(e.ThreadID, name).Inc()
		}
	case events.TypeWorkflowPaused:
		r.pausesTotal.Inc()
	case events.TypeWorkflowComplete:
		r.completions.Inc()
	case events.TypeError:
		r.errorsTotal.WithLabelValues(e.ThreadID, e.Stage).Inc()
	}
}
