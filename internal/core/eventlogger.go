package core

import "time"

// EventLogger is the subset of the observability event log that the engine
// writes pipeline events to. Defining it here avoids importing the
// observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// PipelineRecorder receives pipeline measurements, typically for export as
// metrics.
type PipelineRecorder interface {
	TracesBuilt(traces, events, dropped, failed int)
	Encoded(rung string, degraded bool)
	RunFinished(stage string, complete bool, elapsed time.Duration, produced int)
}

type nopRecorder struct{}

func (nopRecorder) TracesBuilt(int, int, int, int)                {}
func (nopRecorder) Encoded(string, bool)                          {}
func (nopRecorder) RunFinished(string, bool, time.Duration, int) {}
