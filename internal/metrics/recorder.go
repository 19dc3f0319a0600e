package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines observability hooks for triggers, stages and builds.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome string)
	IncTrigger(root string)
	IncTriggerCoalesced(root string)
	AddRecordsEvicted(n int)
	IncEventsDropped(event string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncTrigger(string)                          {}
func (NoopRecorder) IncTriggerCoalesced(string)                 {}
func (NoopRecorder) AddRecordsEvicted(int)                      {}
func (NoopRecorder) IncEventsDropped(string)                    {}
