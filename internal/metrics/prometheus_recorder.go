package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "cicdsim"

// PrometheusRecorder implements Recorder using Prometheus collectors.
type PrometheusRecorder struct {
	stageDuration    *prom.HistogramVec
	stageResults     *prom.CounterVec
	buildDuration    prom.Histogram
	buildOutcome     *prom.CounterVec
	triggers         *prom.CounterVec
	triggerCoalesced *prom.CounterVec
	recordsEvicted   prom.Counter
	eventsDropped    *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil registry gets a private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total pipeline duration from pending to a terminal status",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 1800},
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		triggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Pipeline triggers fired after a quiet window",
		}, []string{"root"}),
		triggerCoalesced: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_coalesced_total",
			Help:      "Triggers folded into a pending follow-up build because a build was running",
		}, []string{"root"}),
		recordsEvicted: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "records_evicted_total",
			Help:      "Terminal build records removed by retention",
		}),
		eventsDropped: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Lifecycle events dropped because a subscriber was full",
		}, []string{"event"}),
	}
	reg.MustRegister(
		pr.stageDuration, pr.stageResults, pr.buildDuration, pr.buildOutcome,
		pr.triggers, pr.triggerCoalesced, pr.recordsEvicted, pr.eventsDropped,
	)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncTrigger(root string) {
	p.triggers.WithLabelValues(root).Inc()
}

func (p *PrometheusRecorder) IncTriggerCoalesced(root string) {
	p.triggerCoalesced.WithLabelValues(root).Inc()
}

func (p *PrometheusRecorder) AddRecordsEvicted(n int) {
	p.recordsEvicted.Add(float64(n))
}

func (p *PrometheusRecorder) IncEventsDropped(event string) {
	p.eventsDropped.WithLabelValues(event).Inc()
}
