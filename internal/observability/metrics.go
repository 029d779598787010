package observability

import (
	"fmt"
	"time"
)

// Metrics holds pipeline health figures derived from the event log.
type Metrics struct {
	TracesBuilt       int            `json:"traces_built"`
	FailedTraces      int            `json:"failed_traces"`
	EventsAccepted    int            `json:"events_accepted"`
	EventsDropped     int            `json:"events_dropped"`
	DropRatePercent   float64        `json:"drop_rate_percent"`
	Encodings         int            `json:"encodings"`
	DegradedEncodings int            `json:"degraded_encodings"`
	DegradedPercent   float64        `json:"degraded_percent"`
	EncodingsByRung   map[string]int `json:"encodings_by_rung"`
	MiningRuns        int            `json:"mining_runs"`
	ClusteringRuns    int            `json:"clustering_runs"`
	IncompleteRuns    int            `json:"incomplete_runs"`
	BudgetExceeded    int            `json:"budget_exceeded"`
	MotifsMined       int            `json:"motifs_mined"`
	ClustersBuilt     int            `json:"clusters_built"`
	EventsImported    int            `json:"events_imported"`
	LastMining        *time.Time     `json:"last_mining,omitempty"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event since the given time. Motif and
// cluster counts reflect the most recent run of each kind.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}
	return metricsFrom(events), nil
}

func metricsFrom(events []Event) *Metrics {
	m := &Metrics{EncodingsByRung: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case EventTraceBuilt:
			m.TracesBuilt += intField(event.Data, "traces")
			m.EventsAccepted += intField(event.Data, "events")
			m.FailedTraces += intField(event.Data, "failed")
		case EventDropped:
			m.EventsDropped += intField(event.Data, "count")
		case EventRungEncoded:
			total := intField(event.Data, "total")
			m.Encodings += total
			m.DegradedEncodings += intField(event.Data, "degraded")
			if rung, ok := event.Data["rung"].(string); ok {
				m.EncodingsByRung[rung] += total
			}
		case EventMiningCompleted:
			m.MiningRuns++
			m.MotifsMined = intField(event.Data, "produced")
			if !boolField(event.Data, "complete") {
				m.IncompleteRuns++
			}
			m.LastMining = &t
		case EventClusterCompleted:
			m.ClusteringRuns++
			m.ClustersBuilt = intField(event.Data, "produced")
			if !boolField(event.Data, "complete") {
				m.IncompleteRuns++
			}
		case EventBudgetExceeded:
			m.BudgetExceeded++
		case EventTranscriptImported:
			m.EventsImported += intField(event.Data, "events")
		}
	}

	if seen := m.EventsAccepted + m.EventsDropped; seen > 0 {
		m.DropRatePercent = 100 * float64(m.EventsDropped) / float64(seen)
	}
	if m.Encodings > 0 {
		m.DegradedPercent = 100 * float64(m.DegradedEncodings) / float64(m.Encodings)
	}
	return m
}
